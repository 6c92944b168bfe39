// Package dlq implements the DLQ Store (spec §4.1/§3, C3) and the
// Retry/DLQ Policy (§4.2/§7, C7). The store is a JSON-lines log rewritten
// atomically (write-to-temp, fsync, then os.Rename) on every mutation.
// Append adds a record; Reprocess deletes the record from the file rather
// than appending a new one. This follows the teacher's internal/task/state.go StateManager
// idiom generalized from a pipe-delimited single-status file to a JSONL
// record-per-dead-lettered-item log.
package dlq

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/abz10m/mrctl/internal/workitem"
)

// Record is one dead-lettered item's permanent entry: its data, full
// failure history, and the timestamp it was exhausted.
type Record struct {
	Item           workitem.Item          `json:"item"`
	Failure        workitem.FailureRecord `json:"failure"`
	DeadLetteredAt time.Time              `json:"dead_lettered_at"`
	// ManualReviewRequired is true for a permanent-classification failure
	// (§4.6: "permanent → DLQ with manual_review_required = true regardless
	// of attempts") and false for one that merely exhausted its transient
	// retry budget.
	ManualReviewRequired bool `json:"manual_review_required"`
	// ReprocessEligible seeds from dlq.reprocess_eligible_default at the
	// moment an item is dead-lettered; an operator can still reprocess an
	// ineligible record explicitly via "mrctl dlq reprocess", but this flag
	// is what a future eligibility-filtered listing would key off.
	ReprocessEligible bool `json:"reprocess_eligible"`
}

// Store persists dead-lettered items to a JSONL file at Path, serialized by
// a mutex and written atomically so a crash mid-write never corrupts the
// prior contents.
type Store struct {
	mu   sync.Mutex
	Path string
}

// NewStore returns a Store backed by path. The file is created on first
// Append; List on a missing file returns an empty slice, not an error.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Append adds rec to the log, rewriting the file atomically.
func (s *Store) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	records = append(records, rec)
	return s.writeAtomic(records)
}

// List returns every record currently in the DLQ.
func (s *Store) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Reprocess removes itemID's record from the DLQ and returns it, so the
// caller can reinsert the item into the WorkItemSet with origin from-DLQ
// (spec §4.2's "reprocess" operation). Returns an error if itemID is not
// present.
func (s *Store) Reprocess(itemID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, r := range records {
		if r.Item.ID == itemID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, fmt.Errorf("dlq: item %q not found", itemID)
	}

	rec := records[idx]
	records = append(records[:idx], records[idx+1:]...)
	if err := s.writeAtomic(records); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) load() ([]Record, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("dlq: opening %q: %w", s.Path, err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("dlq: decoding record: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dlq: scanning %q: %w", s.Path, err)
	}
	return records, nil
}

func (s *Store) writeAtomic(records []Record) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("dlq: creating directory %q: %w", dir, err)
	}

	tmp := s.Path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("dlq: creating temp file %q: %w", tmp, err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("dlq: encoding record for item %q: %w", rec.Item.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("dlq: flushing %q: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("dlq: syncing %q: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("dlq: closing %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("dlq: renaming %q to %q: %w", tmp, s.Path, err)
	}
	return nil
}
