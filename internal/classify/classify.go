// Package classify submits listing text to an OpenAI-compatible
// chat-completions backend and parses a structured verdict. Transient
// failures are retried with exponential backoff; when the backend stays
// unusable the package degrades to a deterministic keyword classifier so
// the pipeline always gets a verdict.
package classify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/lockhunt/hunt"
)

// Backend submits one prompt to the model-inference transport and
// returns the raw response text.
type Backend interface {
	Submit(ctx context.Context, prompt, system string) (string, error)
}

// RetryPolicy bounds backend attempts. Backoff receives the zero-based
// attempt index of the attempt that just failed.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

func (p *RetryPolicy) defaults() {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Backoff == nil {
		p.Backoff = func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		}
	}
}

// Classifier turns listings into verdicts. Backend calls are serialized
// through one mutex because the backend enforces account-level rate
// limits; per-agent pacing does not help there.
type Classifier struct {
	backend Backend
	retry   RetryPolicy
	logger  *slog.Logger
	mu      sync.Mutex
}

// Option customises a Classifier.
type Option func(*Classifier)

// WithRetryPolicy overrides the default retry policy (3 attempts,
// 2^attempt seconds backoff).
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Classifier) { c.retry = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New creates a Classifier over the given backend.
func New(backend Backend, opts ...Option) *Classifier {
	c := &Classifier{backend: backend}
	for _, o := range opts {
		o(c)
	}
	c.retry.defaults()
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Classify analyzes one listing. It never fails outward: after the retry
// budget is spent, or when the last response stays unparseable, it
// returns the deterministic fallback verdict.
func (c *Classifier) Classify(ctx context.Context, title, description, url, target string) hunt.Verdict {
	prompt := buildPrompt(title, description, target)

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		raw, err := c.submit(ctx, prompt)
		if err == nil {
			v, perr := parseVerdict(raw)
			if perr == nil {
				return v
			}
			err = perr
		}
		c.logger.Warn("classify: attempt failed",
			"attempt", attempt+1,
			"max_attempts", c.retry.MaxAttempts,
			"url", url,
			"error", err)
		if attempt < c.retry.MaxAttempts-1 {
			if !sleepCtx(ctx, c.retry.Backoff(attempt)) {
				break
			}
		}
	}

	c.logger.Warn("classify: falling back to keyword analysis", "url", url)
	return Fallback(title, description)
}

func (c *Classifier) submit(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend.Submit(ctx, prompt, systemInstruction)
}

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
