package aegis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FileCheckpointer is a file-based implementation that persists checkpoints
// to disk, one directory per thread with numbered version files. Useful for
// local runs without a database.
type FileCheckpointer struct {
	dataDir string
}

// NewFileCheckpointer creates a new file-based checkpointer
func NewFileCheckpointer(dataDir string) (*FileCheckpointer, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".aegis", "threads")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	return &FileCheckpointer{dataDir: dataDir}, nil
}

// Save persists the state as a new checkpoint version for the thread
func (c *FileCheckpointer) Save(ctx context.Context, state *WorkflowState) (*Checkpoint, error) {
	threadDir := filepath.Join(c.dataDir, state.ThreadID)
	if err := os.MkdirAll(threadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create thread directory: %w", err)
	}

	version, err := c.latestVersion(threadDir)
	if err != nil {
		return nil, err
	}
	checkpoint := &Checkpoint{
		ThreadID:  state.ThreadID,
		Version:   version + 1,
		State:     state.Copy(),
		CreatedAt: time.Now(),
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	// Write to a temp file first so a crash mid-write never leaves a partial
	// snapshot behind the version number.
	path := filepath.Join(threadDir, fmt.Sprintf("checkpoint-%012d.json", checkpoint.Version))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("failed to finalize checkpoint file: %w", err)
	}
	return checkpoint, nil
}

// Latest loads the most recent checkpoint for a thread
func (c *FileCheckpointer) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	threadDir := filepath.Join(c.dataDir, threadID)
	version, err := c.latestVersion(threadDir)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, nil // no checkpoint found
	}

	path := filepath.Join(threadDir, fmt.Sprintf("checkpoint-%012d.json", version))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// Delete removes all checkpoint data for a thread
func (c *FileCheckpointer) Delete(ctx context.Context, threadID string) error {
	threadDir := filepath.Join(c.dataDir, threadID)
	if err := os.RemoveAll(threadDir); err != nil {
		return fmt.Errorf("failed to delete thread directory: %w", err)
	}
	return nil
}

// ListThreads returns the IDs of all threads with at least one checkpoint,
// newest first by latest checkpoint time.
func (c *FileCheckpointer) ListThreads(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(c.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read threads directory: %w", err)
	}

	type threadInfo struct {
		id      string
		modTime time.Time
	}
	var threads []threadInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		threads = append(threads, threadInfo{id: entry.Name(), modTime: info.ModTime()})
	}
	sort.Slice(threads, func(i, j int) bool {
		return threads[i].modTime.After(threads[j].modTime)
	})

	ids := make([]string, 0, len(threads))
	for _, t := range threads {
		ids = append(ids, t.id)
	}
	return ids, nil
}

// latestVersion scans the thread directory for the highest version number.
// Returns 0 when no checkpoints exist.
func (c *FileCheckpointer) latestVersion(threadDir string) (int64, error) {
	entries, err := os.ReadDir(threadDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read thread directory: %w", err)
	}

	var latest int64
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "checkpoint-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, "checkpoint-"), ".json")
		version, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if version > latest {
			latest = version
		}
	}
	return latest, nil
}
