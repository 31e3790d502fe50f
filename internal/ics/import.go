package ics

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"touchcal/internal/events"
	appLog "touchcal/internal/log"
	"touchcal/internal/model"
)

// ImportConfig bounds the import window around "now".
type ImportConfig struct {
	// DisplayLocation is the timezone event dates are keyed in. Nil means
	// time.Local.
	DisplayLocation *time.Location

	// WindowPast / WindowFuture bound the occurrence window relative to
	// the import time. Zero values default to 7 and 365 days.
	WindowPast   time.Duration
	WindowFuture time.Duration
}

// Result summarizes one import run.
type Result struct {
	// EventsImported counts occurrences newly added to the event store
	// (duplicates by title+start are skipped).
	EventsImported int

	// ClassesSeeded lists class names for which seed templates were
	// generated, in sorted order.
	ClassesSeeded []string
}

// Importer turns ICS payloads into calendar events and seed class
// templates. It writes into the event store in memory; the caller saves
// the store and reloads templates afterwards so the whole import is
// persisted in one step per store.
type Importer struct {
	events *events.Store
	cfg    ImportConfig
}

func NewImporter(store *events.Store, cfg ImportConfig) *Importer {
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.WindowPast <= 0 {
		cfg.WindowPast = 7 * 24 * time.Hour
	}
	if cfg.WindowFuture <= 0 {
		cfg.WindowFuture = 365 * 24 * time.Hour
	}
	return &Importer{events: store, cfg: cfg}
}

// Import parses body, expands recurrences within the configured window
// around now, appends the resulting events to the event store (category
// "class", de-duplicated), and returns the class names derived from the
// imported titles.
func (imp *Importer) Import(body []byte, now time.Time) (Result, error) {
	var res Result

	parsed, err := Parse(body)
	if err != nil {
		return res, err
	}

	occs, err := Expand(parsed, ExpandConfig{
		DisplayLocation: imp.cfg.DisplayLocation,
		RangeStart:      now.Add(-imp.cfg.WindowPast),
		RangeEnd:        now.Add(imp.cfg.WindowFuture),
	})
	if err != nil {
		return res, err
	}

	classes := map[string]bool{}
	for _, occ := range occs {
		date := model.DateOf(occ.Start)
		ev := model.Event{
			Title:        occ.Summary,
			Date:         occ.Start.Format(time.RFC3339),
			Duration:     int(occ.End.Sub(occ.Start) / time.Minute),
			Description:  occ.Description,
			Location:     occ.Location,
			Category:     "class",
			ImportedFrom: "ics",
		}
		if imp.events.AddUnique(date, ev) {
			res.EventsImported++
		}
		if name := ParseClassName(occ.Summary); name != "" {
			classes[name] = true
		}
	}

	res.ClassesSeeded = make([]string, 0, len(classes))
	for name := range classes {
		res.ClassesSeeded = append(res.ClassesSeeded, name)
	}
	sort.Strings(res.ClassesSeeded)

	appLog.Info("ics import finished",
		"occurrences", len(occs),
		"events_imported", res.EventsImported,
		"classes_seeded", len(res.ClassesSeeded),
	)
	return res, nil
}

// SeedTemplateDocument renders the auto-generated template appendix for
// the given class names: a commented header plus one class block with the
// standard starter tasks per class. The output round-trips through the
// template parser.
func SeedTemplateDocument(classNames []string) string {
	var b strings.Builder
	b.WriteString("# Classes extracted from ICS calendar import\n")
	b.WriteString("# This file was auto-generated from your imported calendar\n\n")

	for _, name := range classNames {
		b.WriteString(name + "\n")
		for _, t := range starterTasks(name) {
			fmt.Fprintf(&b, "  [%s] %s - %s\n", t.Priority, t.Title, t.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func starterTasks(className string) []model.TaskTemplate {
	return []model.TaskTemplate{
		{
			Title:       "Review today's material",
			Description: fmt.Sprintf("Review notes and materials from %s", className),
			Priority:    model.PriorityMedium,
		},
		{
			Title:       "Complete homework/assignments",
			Description: fmt.Sprintf("Work on any assignments for %s", className),
			Priority:    model.PriorityHigh,
		},
		{
			Title:       "Prepare for next class",
			Description: fmt.Sprintf("Read ahead and prepare for next %s session", className),
			Priority:    model.PriorityMedium,
		},
		{
			Title:       "Study/practice problems",
			Description: fmt.Sprintf("Practice problems or study concepts from %s", className),
			Priority:    model.PriorityMedium,
		},
	}
}

var (
	// "Intro to Algs & Models of Comp ECE 374 BYA" -> "ECE 374 - Intro to ..."
	subjectCodeSection = regexp.MustCompile(`^(.+?)\s+([A-Z]{2,4}\s+\d{3})\s+[A-Z]{1,3}\d*$`)
	// "ECE374 Applied Programming AL1" -> "ECE374 - Applied Programming"
	codeSubject = regexp.MustCompile(`^([A-Z]{2,4}\s*\d{3})\s+(.+?)(\s+[A-Z]{1,3}\d*)?$`)
	// bare course code anywhere, e.g. "MATH 101" or "HK 104"
	bareCode = regexp.MustCompile(`[A-Z]{2,4}\s+\d{3}`)
	// loose code for the fallback check, allows 2-digit numbers
	looseCode      = regexp.MustCompile(`[A-Z]{2,4}\s+\d{2,3}`)
	sectionSuffix  = regexp.MustCompile(`\s+[A-Z]{1,3}\d*$`)
	sectionMiddles = regexp.MustCompile(`\s+(AL\d*|AD\d*|Lab|Discussion|Lecture|BYA|BL\d*|AB\d*).*$`)
)

// ParseClassName derives a "CODE - Subject" class name from a
// course-shaped event title, or returns "" when the title does not look
// like a class. The patterns follow common university calendar exports:
//
//	"Intro to Algs & Models of Comp ECE 374 BYA" -> "ECE 374 - Intro to Algs & Models of Comp"
//	"Applied Parallel Programming ECE 408 AL1"   -> "ECE 408 - Applied Parallel Programming"
//	"Ice Skating HK 104 A3"                      -> "HK 104 - Ice Skating"
func ParseClassName(eventTitle string) string {
	title := strings.TrimSpace(eventTitle)
	if title == "" {
		return ""
	}

	// Subject name followed by course code and section.
	if m := subjectCodeSection.FindStringSubmatch(title); m != nil {
		return fmt.Sprintf("%s - %s", strings.TrimSpace(m[2]), strings.TrimSpace(m[1]))
	}

	// Course code followed by subject name (section optional).
	if m := codeSubject.FindStringSubmatch(title); m != nil {
		subject := sectionMiddles.ReplaceAllString(strings.TrimSpace(m[2]), "")
		return fmt.Sprintf("%s - %s", strings.TrimSpace(m[1]), subject)
	}

	// Bare course code somewhere in the title.
	if code := bareCode.FindString(title); code != "" {
		remaining := strings.TrimSpace(strings.Replace(title, code, "", 1))
		remaining = strings.TrimSpace(sectionSuffix.ReplaceAllString(remaining, ""))
		if len(remaining) > 2 {
			return fmt.Sprintf("%s - %s", code, remaining)
		}
		return code
	}

	// Fallback: anything that still looks like a class title, minus the
	// trailing section code.
	if looseCode.MatchString(title) {
		return strings.TrimSpace(sectionSuffix.ReplaceAllString(title, ""))
	}

	return ""
}
