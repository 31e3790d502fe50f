package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"touchcal/internal/model"
)

func TestParse_SingleClass(t *testing.T) {
	doc := "MATH\n  [high] Finish worksheet - pages 3-4\n"

	classes, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, classes, 1)

	assert.Equal(t, "MATH", classes[0].ClassName)
	require.Len(t, classes[0].TaskTemplates, 1)
	assert.Equal(t, model.TaskTemplate{
		Title:       "Finish worksheet",
		Description: "pages 3-4",
		Priority:    model.PriorityHigh,
	}, classes[0].TaskTemplates[0])
}

func TestParse_PriorityDefaultsToMedium(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"no tag", "  Read chapter - sections 1-3"},
		{"unrecognized tag", "  [urgent] Read chapter - sections 1-3"},
		{"empty tag", "  [] Read chapter - sections 1-3"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			classes, err := Parse("SCI\n" + tc.line + "\n")
			require.NoError(t, err)
			require.Len(t, classes[0].TaskTemplates, 1)
			assert.Equal(t, model.PriorityMedium, classes[0].TaskTemplates[0].Priority)
		})
	}
}

func TestParse_PriorityCaseInsensitive(t *testing.T) {
	classes, err := Parse("SCI\n  [HIGH] A - b\n  [Low] C - d\n")
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh, classes[0].TaskTemplates[0].Priority)
	assert.Equal(t, model.PriorityLow, classes[0].TaskTemplates[1].Priority)
}

func TestParse_NoSeparatorMeansEmptyDescription(t *testing.T) {
	classes, err := Parse("SCI\n  [low] Organize binder\n")
	require.NoError(t, err)

	task := classes[0].TaskTemplates[0]
	assert.Equal(t, "Organize binder", task.Title)
	assert.Equal(t, "", task.Description)
}

func TestParse_TrailingSeparatorMeansEmptyDescription(t *testing.T) {
	classes, err := Parse("SCI\n  [low] Organize binder -\n")
	require.NoError(t, err)

	task := classes[0].TaskTemplates[0]
	assert.Equal(t, "Organize binder", task.Title)
	assert.Equal(t, "", task.Description)
}

func TestParse_SeparatorSplitsOnFirstOccurrence(t *testing.T) {
	classes, err := Parse("SCI\n  Title here - desc - with - dashes\n")
	require.NoError(t, err)

	task := classes[0].TaskTemplates[0]
	assert.Equal(t, "Title here", task.Title)
	assert.Equal(t, "desc - with - dashes", task.Description)
}

func TestParse_CommentsAndBlanksIgnored(t *testing.T) {
	doc := `# header comment

MATH
  # indented comment
  [high] A - b

  C - d
`
	classes, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Len(t, classes[0].TaskTemplates, 2)
}

func TestParse_EmptyTitleIsError(t *testing.T) {
	_, err := Parse("MATH\n  [high]  - only a description\n")

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 2, parseErr.Line)
}

func TestParse_UnterminatedTagIsError(t *testing.T) {
	_, err := Parse("MATH\n  [high task without closing bracket\n")

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 2, parseErr.Line)
}

func TestParse_TaskBeforeClassIsError(t *testing.T) {
	_, err := Parse("  [high] Orphan - task\n")

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 1, parseErr.Line)
}

func TestParse_ErrorLineCountsCommentsAndBlanks(t *testing.T) {
	doc := "# comment\n\nMATH\n  good - task\n  [x]  - bad\n"

	_, err := Parse(doc)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 5, parseErr.Line)
}

func TestParse_DuplicateClassAppends(t *testing.T) {
	doc := "MATH\n  A - 1\nSCI\n  B - 2\nMATH\n  C - 3\n"

	classes, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, classes, 2)

	assert.Equal(t, "MATH", classes[0].ClassName)
	require.Len(t, classes[0].TaskTemplates, 2)
	assert.Equal(t, "A", classes[0].TaskTemplates[0].Title)
	assert.Equal(t, "C", classes[0].TaskTemplates[1].Title)
}

func TestParse_DuplicateTitleLastWinsKeepsPosition(t *testing.T) {
	doc := "MATH\n  [low] A - old\n  B - other\n  [high] A - new\n"

	classes, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, classes[0].TaskTemplates, 2)

	assert.Equal(t, "A", classes[0].TaskTemplates[0].Title)
	assert.Equal(t, "new", classes[0].TaskTemplates[0].Description)
	assert.Equal(t, model.PriorityHigh, classes[0].TaskTemplates[0].Priority)
	assert.Equal(t, "B", classes[0].TaskTemplates[1].Title)
}

func TestParse_TabIndentationAndCRLF(t *testing.T) {
	doc := "MATH\r\n\t[high] A - b\r\n"

	classes, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	require.Len(t, classes[0].TaskTemplates, 1)
	assert.Equal(t, "A", classes[0].TaskTemplates[0].Title)
}

func TestParse_EmptyDocument(t *testing.T) {
	classes, err := Parse("")
	require.NoError(t, err)
	assert.Empty(t, classes)
}

func TestStore_ReloadKeepsOldSetOnParseError(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Reload("MATH\n  A - 1\n"))
	require.Len(t, s.Classes(), 1)

	err := s.Reload("MATH\n  [x]  - broken\n")
	require.Error(t, err)
	assert.True(t, errors.As(err, new(*ParseError)))

	// Previous set still authoritative.
	require.Len(t, s.Classes(), 1)
	assert.Equal(t, "A", s.Classes()[0].TaskTemplates[0].Title)
}

func TestStore_ReloadReplacesWholeSet(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Reload("MATH\n  A - 1\n"))
	require.NoError(t, s.Reload("SCI\n  B - 2\n"))

	require.Len(t, s.Classes(), 1)
	assert.Equal(t, "SCI", s.Classes()[0].ClassName)
}
