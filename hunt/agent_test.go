package hunt

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeSession serves canned result pages. Page index advances only on
// ClickNextPage, mirroring how a real browser tab behaves.
type fakeSession struct {
	mu      sync.Mutex
	pages   [][]Listing
	pageIdx int

	searchErr        error
	nextErr          error
	blockAfterSearch bool
	blockAfterPage   int // block when reaching this page index, 0 = never
	searchStarted    chan struct{}
	holdSearch       chan struct{} // SearchQuery blocks until closed

	closed bool
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error { return nil }

func (s *fakeSession) SearchQuery(ctx context.Context, query string) error {
	if s.searchStarted != nil {
		close(s.searchStarted)
		s.searchStarted = nil
	}
	if s.holdSearch != nil {
		select {
		case <-s.holdSearch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.searchErr
}

func (s *fakeSession) ExtractListings(ctx context.Context) ([]Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pageIdx >= len(s.pages) {
		return nil, nil
	}
	return s.pages[s.pageIdx], nil
}

func (s *fakeSession) ExtractDetails(ctx context.Context, url string) (string, string, error) {
	return "detail for " + url, "full text for " + url, nil
}

func (s *fakeSession) HasNextPage(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageIdx+1 < len(s.pages)
}

func (s *fakeSession) ClickNextPage(ctx context.Context) error {
	if s.nextErr != nil {
		return s.nextErr
	}
	s.mu.Lock()
	s.pageIdx++
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) DetectBlockPage(ctx context.Context) bool {
	if s.blockAfterSearch {
		s.blockAfterSearch = false
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockAfterPage > 0 && s.pageIdx == s.blockAfterPage
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func factoryFor(s *fakeSession) SessionFactory {
	return func(ctx context.Context) (PageSession, error) { return s, nil }
}

// fakeClassifier returns the same verdict for every listing.
type fakeClassifier struct {
	verdict Verdict
	calls   int
	mu      sync.Mutex
}

func (c *fakeClassifier) Classify(ctx context.Context, title, description, url, target string) Verdict {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.verdict
}

func acceptAll() *fakeClassifier {
	return &fakeClassifier{verdict: Verdict{Matches: true, LockMentioned: true, LockType: LockExplicit, Confidence: 0.9}}
}

// memStore is an in-memory Store deduplicating by URL.
type memStore struct {
	mu      sync.Mutex
	entries []Entry
	seen    map[string]struct{}
	addErr  error
}

func newMemStore() *memStore {
	return &memStore{seen: make(map[string]struct{})}
}

func (m *memStore) Add(e Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return false, m.addErr
	}
	if _, dup := m.seen[e.URL]; dup {
		return false, nil
	}
	m.seen[e.URL] = struct{}{}
	m.entries = append(m.entries, e)
	return true, nil
}

func (m *memStore) Stats() StoreStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return StoreStats{Total: len(m.entries), Path: "memory", Exists: true}
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func testConfig() Config {
	return Config{
		AgentCount:      1,
		MaxPages:        10,
		QueryPrefix:     "MacBook",
		RequestDelayMin: time.Millisecond,
		RequestDelayMax: time.Millisecond,
		PageDelayMin:    time.Millisecond,
		PageDelayMax:    time.Millisecond,
		PausePoll:       5 * time.Millisecond,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func listing(title, url string) Listing {
	return Listing{Title: title, URL: url, Price: "$100", Seller: "seller1", Description: "icloud locked " + title}
}

func TestAgentRun_FullCycle(t *testing.T) {
	// WHAT: two pages of two listings each run the whole
	// search-classify-filter-store cycle and the agent terminates clean.
	sess := &fakeSession{pages: [][]Listing{
		{listing("MacBook A1706 locked #1", "u1"), listing("MacBook A1706 locked #2", "u2")},
		{listing("MacBook A1706 locked #3", "u3"), listing("MacBook A1706 locked #4", "u4")},
	}}
	store := newMemStore()
	filter := NewFilter(FilterConfig{Targets: []string{"A1706"}, RequireLock: true})
	a := newAgent(0, "A1706", filter, store, acceptAll(), factoryFor(sess), testConfig(), testLogger(), nil)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := a.State(); got != StateStopped {
		t.Fatalf("state = %v, want stopped", got)
	}
	st := a.GetStats()
	if st.Analyzed != 4 || st.Added != 4 || st.PagesSearched != 2 || st.Errors != 0 {
		t.Fatalf("stats = %+v", st)
	}
	if store.len() != 4 {
		t.Fatalf("store has %d entries, want 4", store.len())
	}
	if !sess.closed {
		t.Fatal("session not closed")
	}
}

func TestAgentRun_DuplicateNotCounted(t *testing.T) {
	sess := &fakeSession{pages: [][]Listing{
		{listing("MacBook A1706 locked", "same"), listing("MacBook A1706 locked again", "same")},
	}}
	store := newMemStore()
	filter := NewFilter(FilterConfig{Targets: []string{"A1706"}, RequireLock: true})
	a := newAgent(0, "A1706", filter, store, acceptAll(), factoryFor(sess), testConfig(), testLogger(), nil)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	st := a.GetStats()
	if st.Analyzed != 2 || st.Added != 1 {
		t.Fatalf("analyzed=%d added=%d, want 2 and 1", st.Analyzed, st.Added)
	}
}

func TestAgentRun_FilteredOut(t *testing.T) {
	// WHY: listings without a lock mention are analyzed but never stored.
	sess := &fakeSession{pages: [][]Listing{
		{listing("MacBook A1706 pristine", "u1")},
	}}
	store := newMemStore()
	filter := NewFilter(FilterConfig{Targets: []string{"A1706"}, RequireLock: true})
	cl := &fakeClassifier{verdict: Verdict{Matches: true, LockMentioned: false}}
	a := newAgent(0, "A1706", filter, store, cl, factoryFor(sess), testConfig(), testLogger(), nil)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	st := a.GetStats()
	if st.Analyzed != 1 || st.Added != 0 {
		t.Fatalf("analyzed=%d added=%d, want 1 and 0", st.Analyzed, st.Added)
	}
}

func TestAgentRun_SessionFactoryFailure(t *testing.T) {
	factory := func(ctx context.Context) (PageSession, error) {
		return nil, errors.New("chrome did not start")
	}
	filter := NewFilter(FilterConfig{Targets: []string{"A1706"}, RequireLock: true})
	a := newAgent(0, "A1706", filter, newMemStore(), acceptAll(), factory, testConfig(), testLogger(), nil)

	err := a.Run(context.Background())
	if err == nil {
		t.Fatal("Run returned nil, want session error")
	}
	if got := a.State(); got != StateErrored {
		t.Fatalf("state = %v, want errored", got)
	}
	if a.GetStats().Errors != 1 {
		t.Fatalf("errors = %d, want 1", a.GetStats().Errors)
	}
}

func TestAgentRun_SearchNavigationFailure(t *testing.T) {
	sess := &fakeSession{searchErr: errors.New("navigation timeout")}
	filter := NewFilter(FilterConfig{Targets: []string{"A1706"}, RequireLock: true})
	a := newAgent(0, "A1706", filter, newMemStore(), acceptAll(), factoryFor(sess), testConfig(), testLogger(), nil)

	err := a.Run(context.Background())
	if err == nil {
		t.Fatal("Run returned nil, want navigation error")
	}
	if got := a.State(); got != StateStopped {
		t.Fatalf("state = %v, want stopped", got)
	}
}

func TestAgentRun_BlockPagePauses(t *testing.T) {
	// WHAT: a block page parks the agent in Paused without error, leaving
	// the resume decision to the operator.
	sess := &fakeSession{blockAfterSearch: true}
	filter := NewFilter(FilterConfig{Targets: []string{"A1706"}, RequireLock: true})
	a := newAgent(0, "A1706", filter, newMemStore(), acceptAll(), factoryFor(sess), testConfig(), testLogger(), nil)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := a.State(); got != StatePaused {
		t.Fatalf("state = %v, want paused after block page", got)
	}
}

func TestAgent_PauseResumeStop(t *testing.T) {
	filter := NewFilter(FilterConfig{Targets: []string{"A1706"}, RequireLock: true})
	a := newAgent(0, "A1706", filter, newMemStore(), acceptAll(), factoryFor(&fakeSession{}), testConfig(), testLogger(), nil)

	// Pause is a no-op on an idle agent.
	a.Pause()
	if got := a.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}

	a.setState(StateRunning)
	a.Pause()
	if got := a.State(); got != StatePaused {
		t.Fatalf("state = %v, want paused", got)
	}
	a.Resume()
	if got := a.State(); got != StateRunning {
		t.Fatalf("state = %v, want running", got)
	}

	a.Stop()
	if got := a.State(); got != StateStopped {
		t.Fatalf("state = %v, want stopped", got)
	}
	// Stop on a terminal agent stays terminal.
	a.Stop()
	if got := a.State(); got != StateStopped {
		t.Fatalf("state = %v, want stopped", got)
	}
}

func TestWaitWhilePaused(t *testing.T) {
	// WHAT: a paused agent blocks at the checkpoint until resumed, then
	// the checkpoint reports it may continue.
	filter := NewFilter(FilterConfig{Targets: []string{"A1706"}, RequireLock: true})
	a := newAgent(0, "A1706", filter, newMemStore(), acceptAll(), factoryFor(&fakeSession{}), testConfig(), testLogger(), nil)
	a.setState(StatePaused)

	done := make(chan bool, 1)
	go func() { done <- a.waitWhilePaused(context.Background()) }()

	select {
	case <-done:
		t.Fatal("waitWhilePaused returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	a.Resume()
	select {
	case ok := <-done:
		if !ok {
			t.Fatal("waitWhilePaused = false after resume, want true")
		}
	case <-time.After(time.Second):
		t.Fatal("waitWhilePaused did not return after resume")
	}
}

func TestWaitWhilePaused_StopExits(t *testing.T) {
	filter := NewFilter(FilterConfig{Targets: []string{"A1706"}, RequireLock: true})
	a := newAgent(0, "A1706", filter, newMemStore(), acceptAll(), factoryFor(&fakeSession{}), testConfig(), testLogger(), nil)
	a.setState(StatePaused)

	done := make(chan bool, 1)
	go func() { done <- a.waitWhilePaused(context.Background()) }()

	a.Stop()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("waitWhilePaused = true after stop, want false")
		}
	case <-time.After(time.Second):
		t.Fatal("waitWhilePaused did not return after stop")
	}
}

func TestAgentRun_DetailEnrichment(t *testing.T) {
	// WHAT: listings without a description get one fetched from their
	// detail page before classification.
	sess := &fakeSession{pages: [][]Listing{
		{{Title: "MacBook A1706 locked", URL: "u1", Price: "$100", Seller: "s"}},
	}}
	store := newMemStore()
	filter := NewFilter(FilterConfig{Targets: []string{"A1706"}, RequireLock: true})
	a := newAgent(0, "A1706", filter, store, acceptAll(), factoryFor(sess), testConfig(), testLogger(), nil)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.len() != 1 {
		t.Fatalf("store has %d entries, want 1", store.len())
	}
}
