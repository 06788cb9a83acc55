// Package runstate persists the daily scan checkpoint: the date of the
// last completed pass and the index of the next symbol to process.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DateLayout is the calendar-date form of LastRunDate.
const DateLayout = "2006-01-02"

// State is the persisted scan checkpoint. Mid-pass checkpoints carry
// the date of the pass and the next symbol index; a finalized pass is
// the pair {today, 0}. NextStartIndex is only meaningful relative to
// the day in LastRunDate.
type State struct {
	LastRunDate    string `json:"last_run_date"`
	NextStartIndex int    `json:"next_start_index"`
}

// Checkpoint builds the mid-pass state written after each symbol.
func Checkpoint(day time.Time, nextIndex int) State {
	return State{LastRunDate: day.Format(DateLayout), NextStartIndex: nextIndex}
}

// Finalized builds the end-of-pass state: today's scan is complete and
// the index is primed for tomorrow's restart.
func Finalized(day time.Time) State {
	return State{LastRunDate: day.Format(DateLayout), NextStartIndex: 0}
}

// CompletedOn reports whether the scan for the given day has finished.
// A same-day record with a non-zero index is a pass still in flight.
func (s State) CompletedOn(day time.Time) bool {
	return s.LastRunDate == day.Format(DateLayout) && s.NextStartIndex == 0
}

// StartIndexFor returns the resume index for the given day: the
// persisted index for a same-day partial pass, else 0 (a new day
// discards any stale partial-day index).
func (s State) StartIndexFor(day time.Time) int {
	if s.LastRunDate != day.Format(DateLayout) {
		return 0
	}
	if s.NextStartIndex < 0 {
		return 0
	}
	return s.NextStartIndex
}

// Store reads and writes the run-state file.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Read returns the persisted state, or the zero state if the file is
// missing or unreadable. It never fails: corrupt state means "start
// over", which is always safe for the scan.
func (s *Store) Read() State {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return State{}
	}

	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}
	}
	if st.NextStartIndex < 0 {
		st.NextStartIndex = 0
	}
	return st
}

// Write persists the state atomically: marshal to a temp file in the
// same directory, then rename over the target. A crash leaves either
// the old or the new state on disk, never a partial record.
func (s *Store) Write(st State) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".run_state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}
