package hunt

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// Agent is a single search worker bound to one target identifier. It owns
// one PageSession and drives a search-browse-classify-filter-store cycle.
//
// Control is cooperative: Stop, Pause, and Resume take effect at the next
// checkpoint (top of the page loop, top of the listing loop, around
// navigation), never preemptively.
type Agent struct {
	id         int
	target     string
	filter     *Filter
	store      Store
	classifier Classifier
	sessions   SessionFactory
	cfg        Config
	logger     *slog.Logger
	events     EventSink

	state         atomic.Int32
	pagesSearched atomic.Int64
	analyzed      atomic.Int64
	added         atomic.Int64
	errs          atomic.Int64
}

func newAgent(id int, target string, filter *Filter, store Store, classifier Classifier, sessions SessionFactory, cfg Config, logger *slog.Logger, events EventSink) *Agent {
	a := &Agent{
		id:         id,
		target:     target,
		filter:     filter,
		store:      store,
		classifier: classifier,
		sessions:   sessions,
		cfg:        cfg,
		logger:     logger.With("agent", id, "target", target),
		events:     events,
	}
	a.state.Store(int32(StateIdle))
	return a
}

// State returns the agent's current lifecycle state.
func (a *Agent) State() AgentState {
	return AgentState(a.state.Load())
}

func (a *Agent) setState(s AgentState) {
	a.state.Store(int32(s))
}

// transition moves from exactly one state to another; a no-op if the
// agent is not in the from state.
func (a *Agent) transition(from, to AgentState) bool {
	return a.state.CompareAndSwap(int32(from), int32(to))
}

// Stop moves the agent toward Stopped from any non-terminal state. The
// running loop observes it at its next checkpoint.
func (a *Agent) Stop() {
	for {
		cur := a.State()
		if cur.Terminal() {
			return
		}
		if a.transition(cur, StateStopped) {
			return
		}
	}
}

// Pause suspends a running agent; a no-op in any other state.
func (a *Agent) Pause() {
	if a.transition(StateRunning, StatePaused) {
		a.logger.Info("agent paused")
	}
}

// Resume unpauses a paused agent; a no-op in any other state.
func (a *Agent) Resume() {
	if a.transition(StatePaused, StateRunning) {
		a.logger.Info("agent resumed")
	}
}

// GetStats returns a snapshot of the agent's counters. Safe to call
// concurrently with a running agent.
func (a *Agent) GetStats() AgentStats {
	st := a.State()
	return AgentStats{
		AgentID:       a.id,
		Target:        a.target,
		State:         st.String(),
		Running:       st == StateRunning,
		Paused:        st == StatePaused,
		PagesSearched: a.pagesSearched.Load(),
		Analyzed:      a.analyzed.Load(),
		Added:         a.added.Load(),
		Errors:        a.errs.Load(),
	}
}

// Run executes the agent's search cycle until the results run out, the
// page limit is reached, a block page pauses it, or it is stopped. The
// returned error describes why this agent gave up; it never affects
// sibling agents.
func (a *Agent) Run(ctx context.Context) error {
	a.setState(StateRunning)
	defer func() {
		// A block page leaves the agent Paused for the operator to
		// resume; every other exit is terminal.
		if a.State() == StateRunning {
			a.setState(StateStopped)
		}
	}()

	sess, err := a.sessions(ctx)
	if err != nil {
		a.errs.Add(1)
		a.setState(StateErrored)
		return fmt.Errorf("hunt: agent %d: open session: %w", a.id, err)
	}
	defer sess.Close()

	query := a.cfg.QueryPrefix + " " + a.target
	a.logger.Info("starting search", "query", query)
	a.record(ctx, Event{Type: "agent", AgentID: a.id, Target: a.target, Action: "start", Success: true})

	if err := sess.SearchQuery(ctx, query); err != nil {
		a.errs.Add(1)
		a.setState(StateStopped)
		return fmt.Errorf("hunt: agent %d: search navigation: %w", a.id, err)
	}

	if sess.DetectBlockPage(ctx) {
		a.blockDetected(ctx)
		return nil
	}

	a.pageLoop(ctx, sess)

	a.logger.Info("search complete",
		"pages", a.pagesSearched.Load(),
		"analyzed", a.analyzed.Load(),
		"added", a.added.Load(),
		"errors", a.errs.Load())
	a.record(ctx, Event{Type: "agent", AgentID: a.id, Target: a.target, Action: "done", Success: true})
	return nil
}

func (a *Agent) pageLoop(ctx context.Context, sess PageSession) {
	for page := 0; page < a.cfg.MaxPages; page++ {
		if !a.waitWhilePaused(ctx) {
			return
		}

		listings, err := sess.ExtractListings(ctx)
		if err != nil {
			a.errs.Add(1)
			a.logger.Warn("extract listings failed", "page", page+1, "error", err)
			return
		}
		if len(listings) == 0 {
			a.logger.Info("no listings on page", "page", page+1)
			return
		}
		a.logger.Info("listings found", "page", page+1, "count", len(listings))

		for _, l := range listings {
			if !a.waitWhilePaused(ctx) {
				return
			}
			a.processListing(ctx, sess, l)
			if !a.sleepJitter(ctx, a.cfg.RequestDelayMin, a.cfg.RequestDelayMax) {
				return
			}
		}

		a.pagesSearched.Add(1)

		if !sess.HasNextPage(ctx) {
			a.logger.Info("no more pages", "pages", page+1)
			return
		}
		if err := sess.ClickNextPage(ctx); err != nil {
			a.errs.Add(1)
			a.logger.Warn("next page navigation failed", "error", err)
			return
		}
		if sess.DetectBlockPage(ctx) {
			a.blockDetected(ctx)
			return
		}
		if !a.sleepJitter(ctx, a.cfg.PageDelayMin, a.cfg.PageDelayMax) {
			return
		}
	}
}

// processListing runs one listing through enrich, classify, filter, and
// store. Failures are counted and contained here: one bad listing never
// aborts the page loop.
func (a *Agent) processListing(ctx context.Context, sess PageSession, l Listing) {
	a.analyzed.Add(1)

	if l.Description == "" && l.URL != "" {
		desc, full, err := sess.ExtractDetails(ctx, l.URL)
		if err != nil {
			a.errs.Add(1)
			a.logger.Warn("detail extraction failed", "url", l.URL, "error", err)
		} else {
			l.Description = desc
			l.FullText = full
		}
	}

	description := l.Description
	if description == "" {
		description = l.FullText
	}

	verdict := a.classifier.Classify(ctx, l.Title, description, l.URL, a.target)

	include, reason := a.filter.ShouldInclude(l, verdict)
	if !include {
		a.logger.Debug("listing excluded", "title", truncate(l.Title, 50), "reason", reason)
		return
	}

	added, err := a.store.Add(NewEntry(l, verdict, time.Now()))
	if err != nil {
		a.errs.Add(1)
		a.logger.Warn("store add failed", "url", l.URL, "error", err)
		return
	}
	if !added {
		a.logger.Debug("duplicate listing skipped", "title", truncate(l.Title, 50))
		return
	}
	a.added.Add(1)
	a.logger.Info("listing added", "title", truncate(l.Title, 50), "confidence", verdict.Confidence)
	a.record(ctx, Event{Type: "listing", AgentID: a.id, Target: a.target, Action: "added", Details: l.URL, Success: true})
}

// waitWhilePaused blocks at a checkpoint while the agent is paused,
// polling its state at the configured interval. It returns false when
// the agent should exit the loop (stopped or context cancelled).
func (a *Agent) waitWhilePaused(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		switch a.State() {
		case StateRunning:
			return true
		case StatePaused:
			if !sleepCtx(ctx, a.cfg.PausePoll) {
				return false
			}
		default:
			return false
		}
	}
}

func (a *Agent) blockDetected(ctx context.Context) {
	a.logger.Warn("block page detected, pausing")
	a.transition(StateRunning, StatePaused)
	a.record(ctx, Event{Type: "agent", AgentID: a.id, Target: a.target, Action: "blocked", Success: false})
}

// sleepJitter pauses for a random duration in [min, max]. This paces
// requests toward the marketplace; it is an anti-throttling measure, not
// a correctness requirement.
func (a *Agent) sleepJitter(ctx context.Context, min, max time.Duration) bool {
	d := min
	if max > min {
		d += time.Duration(rand.Int64N(int64(max - min)))
	}
	return sleepCtx(ctx, d)
}

func (a *Agent) record(ctx context.Context, e Event) {
	if a.events != nil {
		a.events.Record(ctx, e)
	}
}

// sleepCtx sleeps for d or until ctx is done, reporting whether the full
// sleep elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
