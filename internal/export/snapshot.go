// Package export persists pipeline results: crash-safe incremental JSON
// snapshots during a run, and an Excel workbook for the final set.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/litscout/litscout/internal/domain"
)

// DefaultDir is where snapshots and workbooks land unless configured
// otherwise.
const DefaultDir = "literature_results"

// snapshotFile is the on-disk snapshot layout.
type snapshotFile struct {
	RunID     string           `json:"run_id"`
	WrittenAt time.Time        `json:"written_at"`
	Count     int              `json:"count"`
	Records   []*domain.Record `json:"records"`
}

// SnapshotStore writes incremental result snapshots. Each write replaces the
// run's snapshot file atomically, so a crash mid-write never leaves a
// corrupt or half-written snapshot visible; the previous complete snapshot
// survives.
type SnapshotStore struct {
	dir string
	now func() time.Time
}

// NewSnapshotStore creates a store writing into dir. An empty dir means
// DefaultDir.
func NewSnapshotStore(dir string) *SnapshotStore {
	if dir == "" {
		dir = DefaultDir
	}
	return &SnapshotStore{
		dir: dir,
		now: time.Now,
	}
}

// WriteSnapshot persists the records for the run and returns the path
// written. The write goes to a temp file in the same directory first and is
// renamed into place.
func (s *SnapshotStore) WriteSnapshot(runID string, records []*domain.Record) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}

	payload := snapshotFile{
		RunID:     runID,
		WrittenAt: s.now().UTC(),
		Count:     len(records),
		Records:   records,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("literature_results_%s.json", runID))

	tmp, err := os.CreateTemp(s.dir, ".snapshot-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("closing snapshot temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("publishing snapshot: %w", err)
	}

	return path, nil
}

// ReadSnapshot loads a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) ([]*domain.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var payload snapshotFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return payload.Records, nil
}
