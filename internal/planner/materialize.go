// Package planner expands class templates into per-date task instances and
// coordinates template reloads against the completion store.
package planner

import (
	"touchcal/internal/model"
)

// Materialize produces the task set that should exist for date under
// templates, preserving whatever is already recorded in existing.
//
// Semantics:
//   - existing == nil (date never materialized): one template-origin
//     instance per (class, template) pair, completed=false.
//   - otherwise: only (class, title) pairs absent among existing
//     template-origin instances are appended. Every existing instance is
//     retained unmodified, template or adhoc, whether or not its template
//     still exists, so a template being removed or renamed never deletes
//     or silently completes recorded work.
//
// The result is a fresh copy; existing is never mutated, completion flags
// are never touched, and re-running with the same inputs is a no-op. The
// caller persists the result.
func Materialize(date string, templates []model.ClassTemplate, existing model.DayTasks) model.DayTasks {
	day := existing.Clone()
	if day == nil {
		day = model.DayTasks{}
	}

	for _, class := range templates {
		have := templateTitles(day[class.ClassName])
		for _, tpl := range class.TaskTemplates {
			if have[tpl.Title] {
				continue
			}
			day[class.ClassName] = append(day[class.ClassName], model.TaskInstance{
				Title:       tpl.Title,
				Description: tpl.Description,
				Priority:    tpl.Priority,
				Completed:   false,
				DateCreated: date,
				Origin:      model.OriginTemplate,
			})
			have[tpl.Title] = true
		}
	}

	return day
}

// templateTitles indexes the titles of template-origin instances. Adhoc
// instances are invisible to materialization diffs.
func templateTitles(instances []model.TaskInstance) map[string]bool {
	titles := make(map[string]bool, len(instances))
	for _, inst := range instances {
		if inst.Origin == model.OriginTemplate {
			titles[inst.Title] = true
		}
	}
	return titles
}

// AddAdhoc appends a one-off instance to day. It participates in
// completion tracking identically to template-origin instances but is
// never matched against templates on later materializations.
func AddAdhoc(day model.DayTasks, date, class, title, description string, priority model.Priority) (model.DayTasks, model.TaskInstance) {
	if day == nil {
		day = model.DayTasks{}
	}
	inst := model.TaskInstance{
		Title:       title,
		Description: description,
		Priority:    priority,
		Completed:   false,
		DateCreated: date,
		Origin:      model.OriginAdhoc,
	}
	day[class] = append(day[class], inst)
	return day, inst
}
