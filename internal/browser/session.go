// Package browser implements the marketplace page session on a stealth
// Chrome tab driven via Rod. Extraction is best-effort: fields that
// cannot be parsed come back as "N/A" and never fail the page.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/microcosm-cc/bluemonday"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
)

// Config configures a browser session.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Headless controls the local Chrome mode. Default: true.
	Headless *bool

	// SearchURL is the marketplace query endpoint; the URL-escaped query
	// is appended. Default: eBay search.
	SearchURL string

	// NavTimeout bounds every navigation. Default: 30s.
	NavTimeout time.Duration

	// OpTimeout bounds non-navigation page operations. Default: 10s.
	OpTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Headless == nil {
		t := true
		c.Headless = &t
	}
	if c.SearchURL == "" {
		c.SearchURL = "https://www.ebay.com/sch/i.html?_nkw="
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session is one stealth tab plus the Chrome that hosts it. Each agent
// owns one Session for its lifetime.
type Session struct {
	cfg      Config
	lnch     *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	sanitize *bluemonday.Policy
	md       *converter.Converter
}

// Open launches Chrome (or connects to a remote instance), creates a
// stealth page, and returns the session.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	cfg.defaults()
	s := &Session{
		cfg:      cfg,
		sanitize: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}

	var wsURL string
	if cfg.RemoteURL != "" {
		wsURL = cfg.RemoteURL
	} else {
		l := launcher.New().
			Headless(*cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		s.lnch = l
		wsURL = u
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	s.browser = b

	page, err := stealth.Page(b)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("browser: stealth page: %w", err)
	}
	s.page = page

	return s, nil
}

// Navigate loads a URL with the configured timeout and a short settle
// delay afterwards.
func (s *Session) Navigate(ctx context.Context, pageURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavTimeout)
	defer cancel()

	if err := s.page.Context(navCtx).Navigate(pageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := s.page.Context(navCtx).WaitLoad(); err != nil {
		s.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	s.settle(ctx, 500*time.Millisecond, 1500*time.Millisecond)
	return nil
}

// SearchQuery navigates to the marketplace's query page for query.
func (s *Session) SearchQuery(ctx context.Context, query string) error {
	return s.Navigate(ctx, s.cfg.SearchURL+url.QueryEscape(query))
}

// HasNextPage reports whether an enabled next-page control exists.
func (s *Session) HasNextPage(ctx context.Context) bool {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	res, err := s.page.Context(opCtx).Eval(`() => {
		const next = document.querySelector("a.pagination__next");
		return !!next && next.getAttribute("aria-disabled") !== "true";
	}`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

// ClickNextPage clicks the next-page control and waits for the result
// page to load.
func (s *Session) ClickNextPage(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.NavTimeout)
	defer cancel()

	page := s.page.Context(opCtx)
	has, el, err := page.Has("a.pagination__next")
	if err != nil {
		return fmt.Errorf("browser: find next page: %w", err)
	}
	if !has {
		return fmt.Errorf("browser: no next page control")
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click next page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		s.cfg.Logger.Warn("browser: wait load after pagination", "error", err)
	}
	s.settle(ctx, time.Second, 2*time.Second)
	return nil
}

// DetectBlockPage checks the current page for CAPTCHA / verification
// challenges. Best-effort: evaluation failures report no block.
func (s *Session) DetectBlockPage(ctx context.Context) bool {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	res, err := s.page.Context(opCtx).Eval(`() => {
		const selectors = ["iframe[src*='captcha']", ".g-recaptcha", "#captcha"];
		if (selectors.some((sel) => document.querySelector(sel))) return "selector";
		return document.body ? document.body.innerText : "";
	}`)
	if err != nil {
		return false
	}
	v := res.Value.Str()
	if v == "selector" {
		return true
	}
	return looksBlocked(v)
}

// Close shuts down the page, the browser, and any local Chrome.
func (s *Session) Close() error {
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			s.cfg.Logger.Warn("browser: page close", "error", err)
		}
	}
	return s.cleanup()
}

func (s *Session) cleanup() error {
	if s.browser != nil {
		s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
	return nil
}

// settle sleeps a random duration in [lo, hi] to mimic human pacing.
func (s *Session) settle(ctx context.Context, lo, hi time.Duration) {
	d := lo
	if hi > lo {
		d += time.Duration(rand.Int64N(int64(hi - lo)))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
