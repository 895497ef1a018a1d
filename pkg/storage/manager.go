package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Manager handles result storage and duplicate detection. Each fetched
// target is saved as <target>.json in the output directory, and targets
// with an existing file are skipped on later runs.
type Manager struct {
	outputDir string
	fetched   map[string]bool
	mu        sync.RWMutex
}

// Report summarizes a finished batch job
type Report struct {
	Job         string            `json:"job"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Targets     int               `json:"targets"`
	Succeeded   int               `json:"succeeded"`
	Failed      int               `json:"failed"`
	Skipped     int               `json:"skipped"`
	SuccessRate float64           `json:"success_rate"`
	Failures    map[string]string `json:"failures,omitempty"`
}

// NewManager creates a storage manager rooted at outputDir
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := &Manager{
		outputDir: outputDir,
		fetched:   make(map[string]bool),
	}

	if err := manager.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return manager, nil
}

// scanExistingFiles indexes already fetched targets for duplicate detection
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		if strings.HasPrefix(name, "report-") {
			continue
		}
		m.fetched[name[:len(name)-5]] = true
	}

	return nil
}

// IsFetched checks if a target already has a saved result
func (m *Manager) IsFetched(target string) bool {
	key := sanitizeFilename(target)

	m.mu.RLock()
	known := m.fetched[key]
	m.mu.RUnlock()
	if known {
		return true
	}

	// Double-check file existence
	if _, err := os.Stat(m.recordPath(key)); err == nil {
		m.mu.Lock()
		m.fetched[key] = true
		m.mu.Unlock()
		return true
	}

	return false
}

// SaveRecord writes a fetched record atomically
func (m *Manager) SaveRecord(target string, data []byte) error {
	key := sanitizeFilename(target)
	filename := m.recordPath(key)

	tempFile := filename + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.fetched[key] = true
	m.mu.Unlock()

	return nil
}

// SaveReport writes the batch report alongside the records
func (m *Manager) SaveReport(report *Report) error {
	content, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	filename := filepath.Join(m.outputDir, fmt.Sprintf("report-%s.json", report.FinishedAt.Format("20060102-150405")))

	tempFile := filename + ".tmp"
	if err := os.WriteFile(tempFile, content, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename report: %w", err)
	}

	return nil
}

// GetOutputDir returns the output directory path
func (m *Manager) GetOutputDir() string {
	return m.outputDir
}

// GetFetchedCount returns the number of targets with saved results
func (m *Manager) GetFetchedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.fetched)
}

func (m *Manager) recordPath(key string) string {
	return filepath.Join(m.outputDir, key+".json")
}

// sanitizeFilename maps a target name to a safe filename
func sanitizeFilename(target string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	name := replacer.Replace(target)
	if name == "" {
		name = "_"
	}
	return name
}
