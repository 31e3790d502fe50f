package model

import (
	"strings"
	"time"
)

// DateLayout is the canonical form of a calendar date key ("2025-09-15").
// Every date exchanged between the stores, the planner and the HTTP API
// uses this string form.
const DateLayout = "2006-01-02"

// DateOf formats t as a canonical date key in t's own location.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

// ValidDate reports whether s is a well-formed canonical date key.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// Priority classifies a task template or instance.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps a raw tag value to a Priority. Matching is
// case-insensitive; anything unrecognized (including the empty string)
// falls back to medium.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

// Origin records how a task instance came to exist on its date.
type Origin string

const (
	// OriginTemplate marks instances spawned from a class template.
	OriginTemplate Origin = "template"
	// OriginAdhoc marks one-off instances added by the user for a single
	// date. Adhoc instances are never re-created on other days and never
	// participate in materialization diffs.
	OriginAdhoc Origin = "adhoc"
)

// ParseOrigin maps a raw string to an Origin. Empty defaults to template
// so that task files written before the origin field existed still load.
func ParseOrigin(s string) Origin {
	if strings.EqualFold(strings.TrimSpace(s), string(OriginAdhoc)) {
		return OriginAdhoc
	}
	return OriginTemplate
}

// TaskTemplate is a reusable, class-scoped task definition with no date
// attached. Templates are immutable once parsed; their identity for merge
// purposes is (class name, title).
type TaskTemplate struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
}

// ClassTemplate groups the task templates of one class, in display order.
type ClassTemplate struct {
	ClassName     string         `json:"class_name"`
	TaskTemplates []TaskTemplate `json:"task_templates"`
}

// TaskInstance is a concrete, date-scoped materialization of a template
// (or an adhoc equivalent). Title, description and priority are copied
// from the originating template at materialization time; later template
// edits do not retroactively change instances that already exist.
type TaskInstance struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
	Completed   bool     `json:"completed"`
	DateCreated string   `json:"date_created"`
	Origin      Origin   `json:"origin"`
}

// DayTasks holds all task instances of a single date, keyed by class name.
// Slice order within a class is insertion order and is significant for
// composite-key lookups (first match wins).
type DayTasks map[string][]TaskInstance

// Clone returns a deep copy of d. The planner works on copies so that a
// failed reload never leaks half-merged state into the store.
func (d DayTasks) Clone() DayTasks {
	if d == nil {
		return nil
	}
	out := make(DayTasks, len(d))
	for class, instances := range d {
		cp := make([]TaskInstance, len(instances))
		copy(cp, instances)
		out[class] = cp
	}
	return out
}

// Event is a calendar event, independent of the task engine. Events live
// in their own date-keyed store and carry no completion state.
type Event struct {
	Title        string `json:"title"`
	Date         string `json:"date"`     // RFC3339 start timestamp
	Duration     int    `json:"duration"` // minutes
	Description  string `json:"description"`
	Location     string `json:"location,omitempty"`
	Category     string `json:"category,omitempty"`
	ImportedFrom string `json:"imported_from,omitempty"`
}
