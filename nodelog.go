package aegis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// NodeLogEntry records a single node execution for a thread
type NodeLogEntry struct {
	ThreadID    string    `json:"thread_id"`
	NodeName    string    `json:"node_name"`
	RoutingHint string    `json:"routing_hint,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartTime   time.Time `json:"start_time"`
	Duration    float64   `json:"duration"`
}

// NodeLogger defines simple node execution logging interface
type NodeLogger interface {
	// LogNode logs a completed node execution
	LogNode(ctx context.Context, entry *NodeLogEntry) error

	// GetNodeHistory retrieves the node log for a thread
	GetNodeHistory(ctx context.Context, threadID string) ([]*NodeLogEntry, error)
}

// NullNodeLogger is a no-op implementation
type NullNodeLogger struct{}

func NewNullNodeLogger() *NullNodeLogger {
	return &NullNodeLogger{}
}

func (l *NullNodeLogger) LogNode(ctx context.Context, entry *NodeLogEntry) error {
	return nil
}

func (l *NullNodeLogger) GetNodeHistory(ctx context.Context, threadID string) ([]*NodeLogEntry, error) {
	return nil, nil
}

// FileNodeLogger logs node executions to a file per thread, formatted as
// newline-delimited JSON.
type FileNodeLogger struct {
	directory string
}

func NewFileNodeLogger(directory string) *FileNodeLogger {
	return &FileNodeLogger{directory: directory}
}

func (l *FileNodeLogger) threadLogPath(threadID string) string {
	return filepath.Join(l.directory, fmt.Sprintf("%s.jsonl", threadID))
}

func (l *FileNodeLogger) LogNode(ctx context.Context, entry *NodeLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	filePath := l.threadLogPath(entry.ThreadID)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

func (l *FileNodeLogger) GetNodeHistory(ctx context.Context, threadID string) ([]*NodeLogEntry, error) {
	data, err := os.ReadFile(l.threadLogPath(threadID))
	if err != nil {
		return nil, err
	}
	var entries []*NodeLogEntry
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var entry NodeLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}
