package atomicfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile_CreatesAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	require.NoError(t, WriteFile(path, []byte("one"), 0o644))
	require.NoError(t, WriteFile(path, []byte("two"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestWriteFile_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, WriteFile(path, []byte("data"), 0o644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestBackup_MissingLiveFileIsNoop(t *testing.T) {
	dir := t.TempDir()

	name, err := Backup(filepath.Join(dir, "absent.json"), filepath.Join(dir, "backups"), "tasks", time.Now())
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestBackup_CopiesCurrentContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	now := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	backup, err := Backup(path, filepath.Join(dir, "backups"), "tasks", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "backups", "tasks-20250915-120000.json"), backup)

	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestBackup_SameSecondDoesNotCollide(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	now := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	first, err := Backup(path, filepath.Join(dir, "backups"), "tasks", now)
	require.NoError(t, err)
	second, err := Backup(path, filepath.Join(dir, "backups"), "tasks", now)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestListBackups_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	backupDir := filepath.Join(dir, "backups")

	for i, stamp := range []time.Time{
		time.Date(2025, 9, 13, 12, 0, 0, 0, time.UTC),
		time.Date(2025, 9, 14, 12, 0, 0, 0, time.UTC),
		time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC),
	} {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i)}, 0o644))
		_, err := Backup(path, backupDir, "tasks", stamp)
		require.NoError(t, err)
	}

	backups, err := ListBackups(backupDir, "tasks")
	require.NoError(t, err)
	require.Len(t, backups, 3)
	assert.Contains(t, backups[0], "20250915")
	assert.Contains(t, backups[2], "20250913")
}

func TestListBackups_SameSecondNewestFirst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	backupDir := filepath.Join(dir, "backups")

	// Twelve saves in the same second: the unsuffixed backup is oldest,
	// then .1 through .11, and .10 must not sort ahead of .2.
	now := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	var written []string
	for i := 0; i < 12; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i)}, 0o644))
		name, err := Backup(path, backupDir, "tasks", now)
		require.NoError(t, err)
		written = append(written, name)
	}

	backups, err := ListBackups(backupDir, "tasks")
	require.NoError(t, err)
	require.Len(t, backups, 12)
	for i := range backups {
		assert.Equal(t, written[len(written)-1-i], backups[i])
	}

	newest, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, []byte{'l'}, newest)
}

func TestListBackups_FiltersByPrefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	backupDir := filepath.Join(dir, "backups")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	now := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	_, err := Backup(path, backupDir, "tasks", now)
	require.NoError(t, err)
	_, err = Backup(path, backupDir, "events", now)
	require.NoError(t, err)

	tasksOnly, err := ListBackups(backupDir, "tasks")
	require.NoError(t, err)
	require.Len(t, tasksOnly, 1)
	assert.Contains(t, tasksOnly[0], "tasks-")
}

func TestListBackups_MissingDir(t *testing.T) {
	backups, err := ListBackups(filepath.Join(t.TempDir(), "nope"), "tasks")
	require.NoError(t, err)
	assert.Empty(t, backups)
}
