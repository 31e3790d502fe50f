package planner

import (
	"fmt"
	"sync"
	"time"

	"touchcal/internal/clock"
	appLog "touchcal/internal/log"
	"touchcal/internal/model"
	"touchcal/internal/taskstore"
	"touchcal/internal/template"
)

// Engine is the reload/merge coordinator: the one place where the template
// store and the completion store interact. All operations are synchronous
// and serialized; the engine is safe to call from HTTP handlers and the
// cron scheduler.
type Engine struct {
	mu        sync.Mutex
	templates *template.Store
	tasks     *taskstore.Store
	clock     clock.Clock
	loc       *time.Location
}

// NewEngine wires the engine. loc resolves "today"; nil means time.Local.
func NewEngine(templates *template.Store, tasks *taskstore.Store, clk clock.Clock, loc *time.Location) *Engine {
	if clk == nil {
		clk = clock.Real{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		templates: templates,
		tasks:     tasks,
		clock:     clk,
		loc:       loc,
	}
}

// Today returns the current date key in the engine's display timezone.
func (e *Engine) Today() string {
	return model.DateOf(e.clock.Now().In(e.loc))
}

// GetTasksForDate returns the task set for date, materializing and
// persisting it first if the date has never been seen.
func (e *Engine) GetTasksForDate(date string) (model.DayTasks, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tasks.HasDay(date) {
		return e.tasks.Day(date), nil
	}

	day := Materialize(date, e.templates.Classes(), nil)
	e.tasks.PutDay(date, day)
	if err := e.tasks.Save(); err != nil {
		e.tasks.DeleteDay(date)
		return nil, fmt.Errorf("persist materialized tasks for %s: %w", date, err)
	}

	appLog.Info("materialized new date", "date", date, "class_count", len(day))
	return day.Clone(), nil
}

// ToggleCompletion sets the completed flag of the instance matching
// (date, class, title, origin) and persists. A *taskstore.NotFoundError is
// returned, and nothing is written, when no instance matches.
func (e *Engine) ToggleCompletion(date, class, title string, origin model.Origin, value bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	previous := e.tasks.Day(date)
	if err := e.tasks.SetCompleted(date, class, title, origin, value); err != nil {
		return err
	}
	if err := e.tasks.Save(); err != nil {
		e.tasks.PutDay(date, previous)
		return err
	}
	return nil
}

// AddAdhocTask appends a one-off task to date's set and persists. The date
// is materialized first when needed so the adhoc task lands next to the
// day's template tasks.
func (e *Engine) AddAdhocTask(date, class, title, description string, priority model.Priority) (model.TaskInstance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if title == "" {
		return model.TaskInstance{}, fmt.Errorf("adhoc task title is empty")
	}
	if class == "" {
		return model.TaskInstance{}, fmt.Errorf("adhoc task class is empty")
	}

	previous := e.tasks.Day(date)
	day := previous.Clone()
	if day == nil {
		day = Materialize(date, e.templates.Classes(), nil)
	}

	day, inst := AddAdhoc(day, date, class, title, description, priority)
	e.tasks.PutDay(date, day)
	if err := e.tasks.Save(); err != nil {
		if previous == nil {
			e.tasks.DeleteDay(date)
		} else {
			e.tasks.PutDay(date, previous)
		}
		return model.TaskInstance{}, err
	}

	appLog.Info("adhoc task added", "date", date, "class", class, "title", title)
	return inst, nil
}

// ReloadTemplates re-parses the template document(s) and re-materializes
// every active date: today plus every date already present in the store,
// so historical days pick up renamed/added templates going forward only.
//
// The reload is a single logical transaction. A parse error aborts before
// anything is touched; the merge happens on copies and is persisted with
// one atomic save. If the save fails, both the task store and the template
// set are restored, so either every active date is re-materialized or
// nothing observable changes.
func (e *Engine) ReloadTemplates(document string) (map[string]model.DayTasks, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	previous := e.templates.Classes()
	if err := e.templates.Reload(document); err != nil {
		return nil, err
	}

	merged, err := e.rematerializeLocked()
	if err != nil {
		e.templates.Replace(previous)
		return nil, err
	}
	return merged, nil
}

// ReloadTemplateFiles is ReloadTemplates reading from the configured
// document paths (manual file plus optional ICS appendix).
func (e *Engine) ReloadTemplateFiles(classesPath, icsClassesPath string) (map[string]model.DayTasks, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	previous := e.templates.Classes()
	if err := e.templates.LoadFiles(classesPath, icsClassesPath); err != nil {
		return nil, err
	}

	merged, err := e.rematerializeLocked()
	if err != nil {
		e.templates.Replace(previous)
		return nil, err
	}
	return merged, nil
}

func (e *Engine) rematerializeLocked() (map[string]model.DayTasks, error) {
	templates := e.templates.Classes()

	active := e.tasks.Dates()
	today := model.DateOf(e.clock.Now().In(e.loc))
	if !e.tasks.HasDay(today) {
		active = append(active, today)
	}

	// Stage the merge before touching the store so a failed save can be
	// rolled back and a subsequent read sees the pre-reload state.
	staged := make(map[string]model.DayTasks, len(active))
	previous := make(map[string]model.DayTasks, len(active))
	for _, date := range active {
		existing := e.tasks.Day(date)
		previous[date] = existing
		staged[date] = Materialize(date, templates, existing)
	}

	result := make(map[string]model.DayTasks, len(active))
	for date, day := range staged {
		e.tasks.PutDay(date, day)
		result[date] = day.Clone()
	}

	if err := e.tasks.Save(); err != nil {
		for date, day := range previous {
			if day == nil {
				e.tasks.DeleteDay(date)
			} else {
				e.tasks.PutDay(date, day)
			}
		}
		return nil, fmt.Errorf("persist reloaded tasks: %w", err)
	}

	appLog.Info("templates reloaded and merged", "active_dates", len(active))
	return result, nil
}
