// Package hunt coordinates a pool of marketplace search agents that scan
// listing pages for target model numbers, classify each candidate, filter
// by inclusion/exclusion rules, and persist deduplicated matches.
package hunt

import (
	"context"
	"time"
)

// Listing is one raw marketplace listing as extracted from a results page.
// All text fields are untrusted free text; extraction substitutes "N/A"
// for fields it could not parse.
type Listing struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Price       string `json:"price"`
	Condition   string `json:"condition"`
	Shipping    string `json:"shipping"`
	Seller      string `json:"seller"`
	Description string `json:"description"`
	FullText    string `json:"full_text"`
}

// Activation-lock mention types as reported by the classifier.
const (
	LockExplicit = "explicit"
	LockImplicit = "implicit"
	LockNone     = "none"
)

// Verdict is the structured output of content classification for one
// listing. It is never partially populated: when the backend is unusable
// the classifier fills every field from its deterministic fallback.
type Verdict struct {
	Matches          bool     `json:"matches"`
	LockMentioned    bool     `json:"activation_lock_mentioned"`
	LockType         string   `json:"activation_lock_type"`
	ModelNumber      string   `json:"model_number"`
	HasExclusions    bool     `json:"has_exclusions"`
	ExclusionReasons []string `json:"exclusion_reasons"`
	Price            string   `json:"price"`
	Condition        string   `json:"condition"`
	Confidence       float64  `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
}

// Entry is the flattened union of a Listing and its Verdict, the unit
// written to the results store.
type Entry struct {
	Title         string    `json:"title"`
	Price         string    `json:"price"`
	ModelNumber   string    `json:"model_number"`
	URL           string    `json:"url"`
	Condition     string    `json:"condition"`
	LockMentioned bool      `json:"activation_lock_mentioned"`
	LockType      string    `json:"activation_lock_type"`
	Seller        string    `json:"seller"`
	DateFound     time.Time `json:"date_found"`
	Confidence    float64   `json:"confidence"`
	Reasoning     string    `json:"reasoning"`
}

// NewEntry merges a listing and its verdict into a persistable Entry.
// Verdict fields win over raw listing fields where both carry a value.
func NewEntry(l Listing, v Verdict, found time.Time) Entry {
	price := v.Price
	if price == "" {
		price = l.Price
	}
	condition := v.Condition
	if condition == "" {
		condition = l.Condition
	}
	lockType := v.LockType
	if lockType == "" {
		lockType = LockNone
	}
	return Entry{
		Title:         l.Title,
		Price:         price,
		ModelNumber:   v.ModelNumber,
		URL:           l.URL,
		Condition:     condition,
		LockMentioned: v.LockMentioned,
		LockType:      lockType,
		Seller:        l.Seller,
		DateFound:     found,
		Confidence:    v.Confidence,
		Reasoning:     v.Reasoning,
	}
}

// AgentState is the lifecycle state of one search agent.
type AgentState int32

const (
	StateIdle AgentState = iota
	StateRunning
	StatePaused
	StateStopped
	StateErrored
)

func (s AgentState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further work happens in this state.
func (s AgentState) Terminal() bool {
	return s == StateStopped || s == StateErrored
}

// AgentStats is a point-in-time snapshot of one agent's counters.
type AgentStats struct {
	AgentID       int    `json:"agent_id"`
	Target        string `json:"model_number"`
	State         string `json:"state"`
	Running       bool   `json:"is_running"`
	Paused        bool   `json:"is_paused"`
	PagesSearched int64  `json:"pages_searched"`
	Analyzed      int64  `json:"listings_analyzed"`
	Added         int64  `json:"listings_added"`
	Errors        int64  `json:"errors"`
}

// StoreStats describes the results store.
type StoreStats struct {
	Total  int    `json:"total_listings"`
	Path   string `json:"csv_path"`
	Exists bool   `json:"csv_exists"`
}

// Status is the pool-level snapshot returned by Coordinator.GetStatus.
type Status struct {
	Running      bool         `json:"is_running"`
	TotalAgents  int          `json:"total_agents"`
	ActiveAgents int          `json:"active_agents"`
	PausedAgents int          `json:"paused_agents"`
	Agents       []AgentStats `json:"agents"`
	Store        StoreStats   `json:"data_stats"`
}

// PageSession drives one browser tab against the marketplace. Extraction
// is best-effort: implementations return as many records as could be
// parsed and never fail on individual missing fields.
type PageSession interface {
	Navigate(ctx context.Context, url string) error
	SearchQuery(ctx context.Context, query string) error
	ExtractListings(ctx context.Context) ([]Listing, error)
	ExtractDetails(ctx context.Context, url string) (description, fullText string, err error)
	HasNextPage(ctx context.Context) bool
	ClickNextPage(ctx context.Context) error
	DetectBlockPage(ctx context.Context) bool
	Close() error
}

// SessionFactory opens a fresh PageSession for one agent. Each agent owns
// exactly one session for its lifetime.
type SessionFactory func(ctx context.Context) (PageSession, error)

// Classifier produces a verdict for one listing. Classify never fails
// outward: implementations degrade to a deterministic fallback rather
// than returning an error, since the filter cannot operate on an absent
// verdict.
type Classifier interface {
	Classify(ctx context.Context, title, description, url, target string) Verdict
}

// Store persists accepted listings. Add reports true when the entry was
// newly added and false when it was a duplicate; the duplicate check and
// the insert are atomic as a unit.
type Store interface {
	Add(entry Entry) (bool, error)
	Stats() StoreStats
}

// Event is a domain-level occurrence recorded for observability.
type Event struct {
	Type    string
	AgentID int
	Target  string
	Action  string
	Details string
	Success bool
}

// EventSink receives events. Implementations must never block or
// propagate failures into the search pipeline.
type EventSink interface {
	Record(ctx context.Context, e Event)
}
