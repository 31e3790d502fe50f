// Package events is the calendar event store: a JSON document keyed by
// date, each date holding an ordered list of events. It is independent of
// the task engine and carries no materialization logic, but shares the
// same atomic save-with-backup discipline.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"touchcal/internal/atomicfile"
	appLog "touchcal/internal/log"
	"touchcal/internal/model"
)

const (
	fileName     = "calendar_events.json"
	backupPrefix = "events"
	backupSubdir = "backups"
)

// Store owns the persisted events, keyed by date. Not safe for concurrent
// use; callers serialize access.
type Store struct {
	path      string
	backupDir string
	backups   bool
	byDate    map[string][]model.Event
}

// Open loads (or initializes) the event store under dataDir. An
// undecodable file is logged and replaced with an empty store; events are
// display data and are not worth refusing startup over, and the previous
// file survives as a backup on the next save.
func Open(dataDir string, backups bool) (*Store, error) {
	s := &Store{
		path:      filepath.Join(dataDir, fileName),
		backupDir: filepath.Join(dataDir, backupSubdir),
		backups:   backups,
		byDate:    map[string][]model.Event{},
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, &s.byDate); err != nil {
		appLog.Warn("event store corrupt, starting empty", "path", s.path, "err", err)
		s.byDate = map[string][]model.Event{}
	}
	return s, nil
}

// Save writes the full event state, backing up the previous version first.
func (s *Store) Save() error {
	if s.backups {
		backup, err := atomicfile.Backup(s.path, s.backupDir, backupPrefix, time.Now())
		if err != nil {
			return fmt.Errorf("event store backup: %w", err)
		}
		if backup != "" {
			appLog.Debug("event store backed up", "path", backup)
		}
	}

	data, err := json.MarshalIndent(s.byDate, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(s.path, data, 0o644)
}

// ForDate returns a copy of the events on date, in stored order.
func (s *Store) ForDate(date string) []model.Event {
	evs := s.byDate[date]
	out := make([]model.Event, len(evs))
	copy(out, evs)
	return out
}

// Dates returns every date with at least one event, ascending.
func (s *Store) Dates() []string {
	out := make([]string, 0, len(s.byDate))
	for date, evs := range s.byDate {
		if len(evs) > 0 {
			out = append(out, date)
		}
	}
	sort.Strings(out)
	return out
}

// Add appends ev to date's list.
func (s *Store) Add(date string, ev model.Event) {
	s.byDate[date] = append(s.byDate[date], ev)
}

// AddUnique appends ev unless an event with the same title and start
// timestamp already exists on date. Reports whether ev was added. The ICS
// importer relies on this to stay idempotent across repeated imports.
func (s *Store) AddUnique(date string, ev model.Event) bool {
	for _, existing := range s.byDate[date] {
		if existing.Title == ev.Title && existing.Date == ev.Date {
			return false
		}
	}
	s.byDate[date] = append(s.byDate[date], ev)
	return true
}

// Update replaces the event at index on date.
func (s *Store) Update(date string, index int, ev model.Event) error {
	evs := s.byDate[date]
	if index < 0 || index >= len(evs) {
		return fmt.Errorf("no event at index %d on %s", index, date)
	}
	evs[index] = ev
	return nil
}

// Remove deletes the event at index on date. Dates left empty are dropped.
func (s *Store) Remove(date string, index int) error {
	evs := s.byDate[date]
	if index < 0 || index >= len(evs) {
		return fmt.Errorf("no event at index %d on %s", index, date)
	}
	s.byDate[date] = append(evs[:index], evs[index+1:]...)
	if len(s.byDate[date]) == 0 {
		delete(s.byDate, date)
	}
	return nil
}
