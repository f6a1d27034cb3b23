// Package store persists accepted listings to an append-only CSV file
// with in-memory deduplication by URL and by a (title, price, seller)
// content fingerprint. Seen keys are preloaded from the file on open so
// dedup holds across process restarts.
package store

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/hazyhaar/lockhunt/hunt"
)

// header lists the CSV columns. Written exactly once per file; reopening
// an existing file only ever appends rows.
var header = []string{
	"title", "price", "model_number", "url", "condition",
	"activation_lock_mentioned", "activation_lock_type", "seller",
	"date_found", "confidence", "reasoning",
}

// Store is safe for concurrent use: the duplicate check and the insert
// run as one unit under the mutex, so two agents racing on the same
// listing cannot both persist it.
type Store struct {
	mu       sync.Mutex
	path     string
	seenURLs map[string]struct{}
	seenFPs  map[string]struct{}
	logger   *slog.Logger
}

// Open creates a Store over the CSV file at path, creating parent
// directories and preloading seen keys from any existing file.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}
	s := &Store{
		path:     path,
		seenURLs: make(map[string]struct{}),
		seenFPs:  make(map[string]struct{}),
		logger:   logger,
	}
	if err := s.loadSeen(); err != nil {
		return nil, err
	}
	return s, nil
}

// Add persists the entry unless its URL or content fingerprint was seen
// before. Returns true when a new row was appended. On a write failure
// nothing is marked seen, so the entry can be retried.
func (s *Store) Add(e hunt.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp := fingerprint(e.Title, e.Price, e.Seller)
	if e.URL != "" {
		if _, dup := s.seenURLs[e.URL]; dup {
			return false, nil
		}
	}
	if _, dup := s.seenFPs[fp]; dup {
		return false, nil
	}

	if err := s.appendRow(e); err != nil {
		return false, err
	}

	if e.URL != "" {
		s.seenURLs[e.URL] = struct{}{}
	}
	s.seenFPs[fp] = struct{}{}
	return true, nil
}

// GetAll reads every persisted entry, oldest first.
func (s *Store) GetAll() ([]hunt.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var entries []hunt.Entry
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("store: read: %w", err)
		}
		if first {
			first = false
			continue // header
		}
		if len(row) < len(header) {
			continue
		}
		entries = append(entries, rowToEntry(row))
	}
	return entries, nil
}

// Stats returns total count, backing path, and file existence.
func (s *Store) Stats() hunt.StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := os.Stat(s.path)
	return hunt.StoreStats{
		Total:  len(s.seenFPs),
		Path:   s.path,
		Exists: err == nil,
	}
}

// loadSeen restores dedup keys from the backing file. Unreadable rows
// are skipped; the store stays usable with whatever could be recovered.
func (s *Store) loadSeen() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: open existing: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	first := true
	loaded := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Warn("store: skipping malformed row", "error", err)
			continue
		}
		if first {
			first = false
			continue
		}
		if len(row) < len(header) {
			continue
		}
		if url := row[3]; url != "" {
			s.seenURLs[url] = struct{}{}
		}
		s.seenFPs[fingerprint(row[0], row[1], row[7])] = struct{}{}
		loaded++
	}
	if loaded > 0 {
		s.logger.Info("store: preloaded existing results", "rows", loaded, "path", s.path)
	}
	return nil
}

func (s *Store) appendRow(e hunt.Entry) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: open append: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("store: stat: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("store: write header: %w", err)
		}
	}
	if err := w.Write(entryToRow(e)); err != nil {
		return fmt.Errorf("store: write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("store: flush: %w", err)
	}
	return nil
}

func entryToRow(e hunt.Entry) []string {
	return []string{
		e.Title,
		e.Price,
		e.ModelNumber,
		e.URL,
		e.Condition,
		strconv.FormatBool(e.LockMentioned),
		e.LockType,
		e.Seller,
		e.DateFound.Format(time.RFC3339),
		strconv.FormatFloat(e.Confidence, 'f', -1, 64),
		e.Reasoning,
	}
}

func rowToEntry(row []string) hunt.Entry {
	lock, _ := strconv.ParseBool(row[5])
	conf, _ := strconv.ParseFloat(row[9], 64)
	found, _ := time.Parse(time.RFC3339, row[8])
	return hunt.Entry{
		Title:         row[0],
		Price:         row[1],
		ModelNumber:   row[2],
		URL:           row[3],
		Condition:     row[4],
		LockMentioned: lock,
		LockType:      row[6],
		Seller:        row[7],
		DateFound:     found,
		Confidence:    conf,
		Reasoning:     row[10],
	}
}

// fingerprint derives the secondary dedup key from non-URL fields. Not a
// security boundary; it only needs to be stable and collision-resistant
// enough for duplicate identification.
func fingerprint(title, price, seller string) string {
	h := sha256.Sum256([]byte(title + "\x00" + price + "\x00" + seller))
	return hex.EncodeToString(h[:])
}
