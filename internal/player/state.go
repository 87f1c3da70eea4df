package player

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// StateFile is the snapshot file name inside the data directory.
const StateFile = "now.json"

// persistedState is the on-disk form of the last published snapshot
type persistedState struct {
	Version  int      `json:"version"`
	Snapshot Snapshot `json:"snapshot"`
}

const stateVersion = 1

// WriteSnapshot saves s to path
func WriteSnapshot(path string, s Snapshot) error {
	data, err := json.MarshalIndent(persistedState{Version: stateVersion, Snapshot: s}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	// Write atomically via temp file + rename
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// ReadSnapshot loads the snapshot saved at path. A missing file returns an
// error satisfying os.IsNotExist.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}

	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if ps.Version != stateVersion {
		return Snapshot{}, fmt.Errorf("decode %s: unsupported version %d", path, ps.Version)
	}
	return ps.Snapshot, nil
}
