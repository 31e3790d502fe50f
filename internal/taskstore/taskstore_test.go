package taskstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"touchcal/internal/model"
)

func sampleDay(date string) model.DayTasks {
	return model.DayTasks{
		"MATH": {
			{Title: "Finish worksheet", Description: "pages 3-4", Priority: model.PriorityHigh,
				Completed: false, DateCreated: date, Origin: model.OriginTemplate},
			{Title: "Buy calculator", Priority: model.PriorityLow,
				Completed: true, DateCreated: date, Origin: model.OriginAdhoc},
		},
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, true)
	require.NoError(t, err)

	s.PutDay("2025-09-15", sampleDay("2025-09-15"))
	s.PutDay("2025-09-16", sampleDay("2025-09-16"))
	require.NoError(t, s.Save())

	reopened, err := Open(dir, true)
	require.NoError(t, err)

	assert.Equal(t, s.Day("2025-09-15"), reopened.Day("2025-09-15"))
	assert.Equal(t, s.Day("2025-09-16"), reopened.Day("2025-09-16"))
	assert.Equal(t, []string{"2025-09-15", "2025-09-16"}, reopened.Dates())
}

func TestStore_BackupOnSave(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, true)
	require.NoError(t, err)

	s.PutDay("2025-09-15", sampleDay("2025-09-15"))
	require.NoError(t, s.Save())

	day := s.Day("2025-09-15")
	day["MATH"][0].Completed = true
	s.PutDay("2025-09-15", day)
	require.NoError(t, s.Save())

	// The second save must have backed up the first save's file.
	backups, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	require.NotEmpty(t, backups)

	// And the live file reflects the second save exactly.
	reopened, err := Open(dir, true)
	require.NoError(t, err)
	assert.True(t, reopened.Day("2025-09-15")["MATH"][0].Completed)
}

func TestStore_BackupsDisabled(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, false)
	require.NoError(t, err)
	s.PutDay("2025-09-15", sampleDay("2025-09-15"))
	require.NoError(t, s.Save())
	require.NoError(t, s.Save())

	_, err = os.ReadDir(filepath.Join(dir, "backups"))
	assert.True(t, os.IsNotExist(err))
}

func TestStore_CorruptPrimaryRecoversFromBackup(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, true)
	require.NoError(t, err)
	s.PutDay("2025-09-15", sampleDay("2025-09-15"))
	require.NoError(t, s.Save())
	// Second save creates a backup of the good first state.
	require.NoError(t, s.Save())

	// Corrupt the live file.
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte("{not json"), 0o644))

	recovered, err := Open(dir, true)
	var corrupt *CorruptStoreError
	require.ErrorAs(t, err, &corrupt)
	require.NotNil(t, recovered, "a usable store must be returned alongside the error")

	assert.Equal(t, sampleDay("2025-09-15"), recovered.Day("2025-09-15"))
}

func TestStore_AllBackupsCorruptFallsBackToEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte("{not json"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "backups"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backups", "tasks-20250915-120000.json"), []byte("also bad"), 0o644))

	s, err := Open(dir, true)
	var corrupt *CorruptStoreError
	require.ErrorAs(t, err, &corrupt)
	require.NotNil(t, s)
	assert.Empty(t, s.Dates())
}

func TestStore_MissingFileStartsEmpty(t *testing.T) {
	s, err := Open(t.TempDir(), true)
	require.NoError(t, err)
	assert.Empty(t, s.Dates())
	assert.Nil(t, s.Day("2025-09-15"))
	assert.False(t, s.HasDay("2025-09-15"))
}

func TestStore_SetCompleted(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, true)
	require.NoError(t, err)
	s.PutDay("2025-09-15", sampleDay("2025-09-15"))

	require.NoError(t, s.SetCompleted("2025-09-15", "MATH", "Finish worksheet", model.OriginTemplate, true))
	assert.True(t, s.Day("2025-09-15")["MATH"][0].Completed)

	require.NoError(t, s.SetCompleted("2025-09-15", "MATH", "Finish worksheet", model.OriginTemplate, false))
	assert.False(t, s.Day("2025-09-15")["MATH"][0].Completed)
}

func TestStore_SetCompletedMatchesOrigin(t *testing.T) {
	s, err := Open(t.TempDir(), true)
	require.NoError(t, err)

	day := model.DayTasks{
		"MATH": {
			{Title: "Same title", Origin: model.OriginTemplate, DateCreated: "2025-09-15"},
			{Title: "Same title", Origin: model.OriginAdhoc, DateCreated: "2025-09-15"},
		},
	}
	s.PutDay("2025-09-15", day)

	require.NoError(t, s.SetCompleted("2025-09-15", "MATH", "Same title", model.OriginAdhoc, true))

	got := s.Day("2025-09-15")["MATH"]
	assert.False(t, got[0].Completed, "template twin must be untouched")
	assert.True(t, got[1].Completed)
}

func TestStore_SetCompletedNotFound(t *testing.T) {
	s, err := Open(t.TempDir(), true)
	require.NoError(t, err)
	s.PutDay("2025-09-15", sampleDay("2025-09-15"))

	cases := []struct {
		name   string
		date   string
		class  string
		title  string
		origin model.Origin
	}{
		{"wrong date", "2025-09-16", "MATH", "Finish worksheet", model.OriginTemplate},
		{"wrong class", "2025-09-15", "SCI", "Finish worksheet", model.OriginTemplate},
		{"wrong title", "2025-09-15", "MATH", "Nope", model.OriginTemplate},
		{"wrong origin", "2025-09-15", "MATH", "Finish worksheet", model.OriginAdhoc},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.SetCompleted(tc.date, tc.class, tc.title, tc.origin, true)
			var notFound *NotFoundError
			assert.ErrorAs(t, err, &notFound)
		})
	}
}

func TestStore_LegacyRecordNormalization(t *testing.T) {
	dir := t.TempDir()
	legacy := map[string]any{
		"daily_tasks": map[string]any{
			"2025-09-15": map[string]any{
				"MATH": []map[string]any{
					{"title": "Old task", "description": "", "completed": false},
				},
			},
		},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), data, 0o644))

	s, err := Open(dir, true)
	require.NoError(t, err)

	inst := s.Day("2025-09-15")["MATH"][0]
	assert.Equal(t, model.OriginTemplate, inst.Origin)
	assert.Equal(t, model.PriorityMedium, inst.Priority)
	assert.Equal(t, "2025-09-15", inst.DateCreated)
}

func TestStore_DayReturnsCopy(t *testing.T) {
	s, err := Open(t.TempDir(), true)
	require.NoError(t, err)
	s.PutDay("2025-09-15", sampleDay("2025-09-15"))

	got := s.Day("2025-09-15")
	got["MATH"][0].Completed = true

	assert.False(t, s.Day("2025-09-15")["MATH"][0].Completed)
}
