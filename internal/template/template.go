// Package template parses the class template document: a line-oriented,
// human-editable text file that defines the recurring tasks of each class.
//
// Grammar:
//
//	# comment lines and blank lines are ignored everywhere
//	Class Name                      <- unindented line opens a class
//	  [high] Title - Description   <- indented lines are task lines
//	  Title with no tag - Desc     <- priority defaults to medium
//
// The priority tag is optional and case-insensitive; unrecognized values
// fall back to medium. The title/description separator is the first " - "
// after the tag. An empty title is a parse error.
package template

import (
	"fmt"
	"strings"

	"touchcal/internal/model"
)

// ParseError reports a malformed template document. Line numbers are
// 1-based and refer to the raw document, comments and blanks included.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("template parse error at line %d: %s", e.Line, e.Reason)
}

// Parse turns a template document into the ordered class template set.
// It never partially applies: on error the returned slice is nil.
//
// Duplicate class names append their tasks to the earlier class. Duplicate
// (class, title) pairs overwrite the earlier definition in place, keeping
// its position, so "last one wins" without reshuffling display order.
func Parse(document string) ([]model.ClassTemplate, error) {
	var (
		classes    []model.ClassTemplate
		classIndex = map[string]int{}
		current    = -1 // index into classes of the open class block
	)

	lines := strings.Split(document, "\n")
	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimRight(raw, " \t\r")

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		indented := strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
		if !indented {
			// New class block.
			name := trimmed
			idx, seen := classIndex[name]
			if !seen {
				classes = append(classes, model.ClassTemplate{ClassName: name})
				idx = len(classes) - 1
				classIndex[name] = idx
			}
			current = idx
			continue
		}

		// Task line.
		if current < 0 {
			return nil, &ParseError{Line: lineNo, Reason: "task line before any class name"}
		}

		task, err := parseTaskLine(trimmed, lineNo)
		if err != nil {
			return nil, err
		}

		cls := &classes[current]
		if j := taskIndexByTitle(cls.TaskTemplates, task.Title); j >= 0 {
			cls.TaskTemplates[j] = task
		} else {
			cls.TaskTemplates = append(cls.TaskTemplates, task)
		}
	}

	return classes, nil
}

// parseTaskLine parses one trimmed task line: "[priority] Title - Description".
func parseTaskLine(line string, lineNo int) (model.TaskTemplate, error) {
	priority := model.PriorityMedium
	rest := line

	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return model.TaskTemplate{}, &ParseError{Line: lineNo, Reason: "unterminated priority tag"}
		}
		priority = model.ParsePriority(rest[1:end])
		// Keep rest untrimmed: the title/description separator is the
		// first " - " after the tag, and trimming here could eat it.
		rest = rest[end+1:]
	}

	title := strings.TrimSpace(rest)
	description := ""
	if sep := strings.Index(rest, " - "); sep >= 0 {
		title = strings.TrimSpace(rest[:sep])
		description = strings.TrimSpace(rest[sep+3:])
	} else if strings.HasSuffix(rest, " -") {
		// A trailing separator marks an explicitly empty description
		// ("Organize binder -"); trailing whitespace was already stripped.
		title = strings.TrimSpace(rest[:len(rest)-2])
	}

	if title == "" {
		return model.TaskTemplate{}, &ParseError{Line: lineNo, Reason: "task title is empty"}
	}

	return model.TaskTemplate{
		Title:       title,
		Description: description,
		Priority:    priority,
	}, nil
}

func taskIndexByTitle(tasks []model.TaskTemplate, title string) int {
	for i, t := range tasks {
		if t.Title == title {
			return i
		}
	}
	return -1
}
