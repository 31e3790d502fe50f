package template

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	appLog "touchcal/internal/log"
	"touchcal/internal/model"
)

// Store holds the current in-memory template set. A reload replaces the
// whole set atomically: a broken parse leaves the previous set in effect.
type Store struct {
	classes []model.ClassTemplate
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Classes returns the current template set in document order. Callers must
// not mutate the returned slice; reloads build a fresh one.
func (s *Store) Classes() []model.ClassTemplate {
	return s.classes
}

// Replace swaps in a previously obtained template set without parsing.
// The planner uses it to undo a reload whose persistence step failed.
func (s *Store) Replace(classes []model.ClassTemplate) {
	s.classes = classes
}

// Reload parses document and swaps the template set on success. On a
// *ParseError the previous set remains authoritative and the error is
// returned for display.
func (s *Store) Reload(document string) error {
	classes, err := Parse(document)
	if err != nil {
		return err
	}
	s.classes = classes

	taskCount := 0
	for _, c := range classes {
		taskCount += len(c.TaskTemplates)
	}
	appLog.Info("templates reloaded", "class_count", len(classes), "task_count", taskCount)
	return nil
}

// LoadFiles reads the manual template document at classesPath plus, when
// present, the auto-generated ICS appendix at icsClassesPath, and reloads
// the store from their concatenation (manual first, so appendix classes
// with the same name append tasks rather than define a new class).
//
// A missing manual document is not an error; the kiosk starts with an
// empty class list until one is created.
func (s *Store) LoadFiles(classesPath, icsClassesPath string) error {
	var parts []string

	for _, path := range []string{classesPath, icsClassesPath} {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				appLog.Debug("template document not found, skipping", "path", path)
				continue
			}
			return err
		}
		parts = append(parts, string(data))
	}

	return s.Reload(strings.Join(parts, "\n"))
}
