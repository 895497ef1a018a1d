package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerSaveAndDetect(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	assert.False(t, m.IsFetched("alice"))

	require.NoError(t, m.SaveRecord("alice", []byte(`{"name":"alice"}`)))

	assert.True(t, m.IsFetched("alice"))
	assert.Equal(t, 1, m.GetFetchedCount())
	assert.FileExists(t, filepath.Join(dir, "alice.json"))
	assert.NoFileExists(t, filepath.Join(dir, "alice.json.tmp"))
}

func TestManagerScansExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bob.json"), []byte(`{}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report-20250101-000000.json"), []byte(`{}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	m, err := NewManager(dir)
	require.NoError(t, err)

	assert.True(t, m.IsFetched("bob"))
	// Reports and unrelated files are not fetch records
	assert.Equal(t, 1, m.GetFetchedCount())
}

func TestManagerSanitizesTargets(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	require.NoError(t, m.SaveRecord("user/with:odd*chars", []byte(`{}`)))

	assert.True(t, m.IsFetched("user/with:odd*chars"))
	assert.FileExists(t, filepath.Join(dir, "user_with_odd_chars.json"))
}

func TestManagerCreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "results")
	_, err := NewManager(dir)
	require.NoError(t, err)
	assert.DirExists(t, dir)
}

func TestManagerSaveReport(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	finished := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	report := &Report{
		Job:         "profiles",
		StartedAt:   finished.Add(-time.Minute),
		FinishedAt:  finished,
		Targets:     3,
		Succeeded:   2,
		Failed:      1,
		SuccessRate: 66.67,
		Failures:    map[string]string{"carol": "fetch failed: not found"},
	}
	require.NoError(t, m.SaveReport(report))

	path := filepath.Join(dir, "report-20250601-123000.json")
	require.FileExists(t, path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded Report
	require.NoError(t, json.Unmarshal(content, &loaded))
	assert.Equal(t, "profiles", loaded.Job)
	assert.Equal(t, 2, loaded.Succeeded)
	assert.Equal(t, "fetch failed: not found", loaded.Failures["carol"])
}
