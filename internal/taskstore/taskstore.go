// Package taskstore persists materialized task instances and their
// completion flags. The whole state lives in one JSON document keyed by
// date, then class name; saves are atomic and preceded by a timestamped
// backup of the previous on-disk version.
package taskstore

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
	fileName     = "calendar_tasks.json"
	backupPrefix = "tasks"
	backupSubdir = "backups"
)

// CorruptStoreError reports a task store file that could not be decoded.
type CorruptStoreError struct {
	Path string
	Err  error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("task store %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }

// NotFoundError reports a toggle/lookup against a non-existent
// (date, class, title, origin) key.
type NotFoundError struct {
	Date   string
	Class  string
	Title  string
	Origin model.Origin
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s task %q in class %q on %s", e.Origin, e.Title, e.Class, e.Date)
}

// fileState is the on-disk document shape. The top-level wrapper object
// matches the historical task file format.
type fileState struct {
	DailyTasks map[string]model.DayTasks `json:"daily_tasks"`
}

// Store owns the persisted daily task sets. It is not safe for concurrent
// use; the planner engine serializes access.
type Store struct {
	path      string
	backupDir string
	backups   bool
	state     fileState
}

// Open loads (or initializes) the task store under dataDir. Decoding
// failures are recovered from the newest backup; if every backup also
// fails, the store starts empty. A warning is logged in either case and
// the *CorruptStoreError for the primary file is returned alongside the
// usable store so the caller can surface it.
func Open(dataDir string, backups bool) (*Store, error) {
	s := &Store{
		path:      filepath.Join(dataDir, fileName),
		backupDir: filepath.Join(dataDir, backupSubdir),
		backups:   backups,
		state:     fileState{DailyTasks: map[string]model.DayTasks{}},
	}

	err := s.load()
	if err == nil {
		return s, nil
	}

	var corrupt *CorruptStoreError
	if !errors.As(err, &corrupt) {
		return nil, err
	}

	appLog.Warn("task store corrupt, trying backups", "path", s.path, "err", corrupt.Err)
	if s.recoverFromBackups() {
		return s, corrupt
	}

	appLog.Warn("no usable task store backup, starting empty", "path", s.path)
	s.state = fileState{DailyTasks: map[string]model.DayTasks{}}
	return s, corrupt
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.state = fileState{DailyTasks: map[string]model.DayTasks{}}
			return nil
		}
		return err
	}
	return s.decode(data, s.path)
}

func (s *Store) decode(data []byte, path string) error {
	var loaded fileState
	if err := json.Unmarshal(data, &loaded); err != nil {
		return &CorruptStoreError{Path: path, Err: err}
	}
	if loaded.DailyTasks == nil {
		loaded.DailyTasks = map[string]model.DayTasks{}
	}
	for date, day := range loaded.DailyTasks {
		for class, instances := range day {
			for i := range instances {
				// Normalize legacy records missing these fields.
				instances[i].Origin = model.ParseOrigin(string(instances[i].Origin))
				if instances[i].Priority == "" {
					instances[i].Priority = model.PriorityMedium
				}
				if instances[i].DateCreated == "" {
					instances[i].DateCreated = date
				}
			}
			day[class] = instances
		}
	}
	s.state = loaded
	return nil
}

// recoverFromBackups walks backups newest-first and loads the first one
// that decodes. Reports whether any backup was usable.
func (s *Store) recoverFromBackups() bool {
	backups, err := atomicfile.ListBackups(s.backupDir, backupPrefix)
	if err != nil {
		appLog.Error("failed to list task store backups", err, "dir", s.backupDir)
		return false
	}

	for _, path := range backups {
		data, err := os.ReadFile(path)
		if err != nil {
			appLog.Warn("task store backup unreadable", "path", path, "err", err)
			continue
		}
		if err := s.decode(data, path); err != nil {
			appLog.Warn("task store backup corrupt", "path", path, "err", err)
			continue
		}
		appLog.Warn("task store recovered from backup", "path", path)
		return true
	}
	return false
}

// Save writes the full current state. The previous on-disk version is
// first copied to a timestamped backup (when backups are enabled), then
// the new state is written via temp file + rename.
func (s *Store) Save() error {
	if s.backups {
		backup, err := atomicfile.Backup(s.path, s.backupDir, backupPrefix, time.Now())
		if err != nil {
			return fmt.Errorf("task store backup: %w", err)
		}
		if backup != "" {
			appLog.Debug("task store backed up", "path", backup)
		}
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(s.path, data, 0o644)
}

// Day returns a deep copy of the task set for date, or nil if the date has
// never been materialized.
func (s *Store) Day(date string) model.DayTasks {
	return s.state.DailyTasks[date].Clone()
}

// PutDay replaces the task set for date. The store takes ownership of day.
func (s *Store) PutDay(date string, day model.DayTasks) {
	s.state.DailyTasks[date] = day
}

// DeleteDay removes the task set for date, if any.
func (s *Store) DeleteDay(date string) {
	delete(s.state.DailyTasks, date)
}

// HasDay reports whether date has been materialized before.
func (s *Store) HasDay(date string) bool {
	_, ok := s.state.DailyTasks[date]
	return ok
}

// Dates returns every date present in the store, in ascending order.
func (s *Store) Dates() []string {
	out := make([]string, 0, len(s.state.DailyTasks))
	for date := range s.state.DailyTasks {
		out = append(out, date)
	}
	sort.Strings(out)
	return out
}

// SetCompleted toggles completion on the first instance matching the
// composite key (date, class, title, origin) in insertion order. The
// change is in-memory only; callers persist via Save.
func (s *Store) SetCompleted(date, class, title string, origin model.Origin, value bool) error {
	day, ok := s.state.DailyTasks[date]
	if !ok {
		return &NotFoundError{Date: date, Class: class, Title: title, Origin: origin}
	}
	instances := day[class]
	for i := range instances {
		if instances[i].Title == title && instances[i].Origin == origin {
			instances[i].Completed = value
			return nil
		}
	}
	return &NotFoundError{Date: date, Class: class, Title: title, Origin: origin}
}
