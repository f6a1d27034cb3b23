package hunt

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Coordinator owns the agent pool for one search at a time. It assigns
// targets round-robin, starts all agents concurrently, aggregates their
// statistics, and propagates pause/resume/stop to the whole pool.
type Coordinator struct {
	cfg        Config
	store      Store
	classifier Classifier
	sessions   SessionFactory
	logger     *slog.Logger
	events     EventSink

	mu      sync.RWMutex
	running bool
	agents  []*Agent
	cancel  context.CancelFunc
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithEvents attaches an event sink for search and agent lifecycle events.
func WithEvents(sink EventSink) Option {
	return func(c *Coordinator) { c.events = sink }
}

// NewCoordinator wires a Coordinator from its collaborators. The store,
// classifier, and session factory are shared by every agent of every
// search this coordinator runs.
func NewCoordinator(cfg Config, store Store, classifier Classifier, sessions SessionFactory, logger *slog.Logger, opts ...Option) *Coordinator {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		cfg:        cfg,
		store:      store,
		classifier: classifier,
		sessions:   sessions,
		logger:     logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StartSearch builds the shared filter, spawns agentCount agents with
// round-robin target assignment (agent i gets targets[i mod len]), and
// blocks until every agent reaches a terminal state. Individual agent
// failures are logged and aggregated; one agent's error never stops the
// pool. Returns ErrAlreadyRunning if a search is in progress.
func (c *Coordinator) StartSearch(ctx context.Context, targets, exclusions []string, agentCount int) error {
	targets = cleanTerms(targets)
	if len(targets) == 0 {
		return ErrNoTargets
	}
	if agentCount <= 0 {
		agentCount = c.cfg.AgentCount
	}

	filter := NewFilter(FilterConfig{
		Targets:     targets,
		Exclusions:  cleanTerms(exclusions),
		RequireLock: true,
	})

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	agents := make([]*Agent, agentCount)
	for i := range agents {
		target := targets[i%len(targets)]
		agents[i] = newAgent(i, target, filter, c.store, c.classifier, c.sessions, c.cfg, c.logger, c.events)
	}
	c.agents = agents
	c.mu.Unlock()

	c.logger.Info("search started", "agents", agentCount, "targets", strings.Join(targets, ","))
	if c.events != nil {
		c.events.Record(ctx, Event{Type: "search", Action: "start", Details: strings.Join(targets, ","), Success: true})
	}

	var wg sync.WaitGroup
	for _, a := range agents {
		wg.Add(1)
		go func(a *Agent) {
			defer wg.Done()
			if err := a.Run(runCtx); err != nil {
				c.logger.Error("agent failed", "agent", a.id, "error", err)
			}
		}(a)
	}
	wg.Wait()

	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()
	cancel()

	c.logger.Info("search finished")
	if c.events != nil {
		c.events.Record(ctx, Event{Type: "search", Action: "done", Success: true})
	}
	return nil
}

// StopSearch moves every agent toward Stopped and cancels in-flight work.
// Idempotent: stopping an idle coordinator is a no-op.
func (c *Coordinator) StopSearch() {
	c.mu.Lock()
	agents := c.agents
	cancel := c.cancel
	c.mu.Unlock()

	for _, a := range agents {
		a.Stop()
	}
	if cancel != nil {
		cancel()
	}
}

// PauseSearch broadcasts pause to every agent; agents already paused or
// terminal are unaffected. Returns ErrNoSearch when nothing is running.
func (c *Coordinator) PauseSearch() error {
	c.mu.RLock()
	running, agents := c.running, c.agents
	c.mu.RUnlock()
	if !running {
		return ErrNoSearch
	}
	for _, a := range agents {
		a.Pause()
	}
	return nil
}

// ResumeSearch broadcasts resume to every paused agent. Returns
// ErrNoSearch when nothing is running.
func (c *Coordinator) ResumeSearch() error {
	c.mu.RLock()
	running, agents := c.running, c.agents
	c.mu.RUnlock()
	if !running {
		return ErrNoSearch
	}
	for _, a := range agents {
		a.Resume()
	}
	return nil
}

// Running reports whether a search is in progress.
func (c *Coordinator) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// GetStatus returns the pool-level snapshot: run flag, per-agent stats,
// and store statistics. Safe to call concurrently with an active search.
func (c *Coordinator) GetStatus() Status {
	c.mu.RLock()
	running, agents := c.running, c.agents
	c.mu.RUnlock()

	st := Status{
		Running:     running,
		TotalAgents: len(agents),
		Agents:      make([]AgentStats, 0, len(agents)),
		Store:       c.store.Stats(),
	}
	for _, a := range agents {
		s := a.GetStats()
		if s.Running {
			st.ActiveAgents++
		}
		if s.Paused {
			st.PausedAgents++
		}
		st.Agents = append(st.Agents, s)
	}
	return st
}

func cleanTerms(terms []string) []string {
	var out []string
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
