package format

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// QueueInfo represents the persistent identity and checkpoint of a queue.
//
// This structure is serialized to JSON for debuggability and extensibility.
// Updates use double-buffering (write to .tmp, then atomic rename) for crash safety.
type QueueInfo struct {
	// Version is the metadata format version
	Version uint16 `json:"version"`

	// QueueID is a random identifier stamped at creation
	QueueID string `json:"queue_id"`

	// Name is the queue name
	Name string `json:"name"`

	// CreatedAt is the Unix timestamp (nanoseconds) of queue creation
	CreatedAt int64 `json:"created_at"`

	// CountPushed is the number of records up to EndPosition
	CountPushed uint64 `json:"count_pushed"`

	// EndPosition is the log end at the last checkpoint. Everything before it is durable.
	EndPosition uint64 `json:"end_position"`

	// UpdatedAt is the Unix timestamp (nanoseconds) of the last checkpoint
	UpdatedAt int64 `json:"updated_at"`
}

// NewQueueInfo creates queue info for a freshly created queue.
func NewQueueInfo(name, queueID string) *QueueInfo {
	now := time.Now().UnixNano()
	return &QueueInfo{
		Version:   CurrentVersion,
		QueueID:   queueID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks if the queue info is consistent.
func (m *QueueInfo) Validate() error {
	if m.Version == 0 {
		return fmt.Errorf("invalid version: %d", m.Version)
	}
	if m.Version > CurrentVersion {
		return fmt.Errorf("unsupported version: %d (current=%d)", m.Version, CurrentVersion)
	}
	if m.QueueID == "" {
		return fmt.Errorf("queue id cannot be empty")
	}
	if m.Name == "" {
		return fmt.Errorf("queue name cannot be empty")
	}
	if m.CountPushed > 0 && m.EndPosition < m.CountPushed*RecordHeaderSize {
		return fmt.Errorf("end position (%d) too small for %d records", m.EndPosition, m.CountPushed)
	}
	return nil
}

// ReadQueueInfo reads and validates queue info from a file.
func ReadQueueInfo(path string) (*QueueInfo, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is user-provided for queue data
	if err != nil {
		return nil, fmt.Errorf("failed to read queue info: %w", err)
	}

	info := &QueueInfo{}
	if err := json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue info: %w", err)
	}
	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("invalid queue info: %w", err)
	}
	return info, nil
}

// WriteQueueInfo atomically writes queue info to a file.
func WriteQueueInfo(path string, info *QueueInfo) error {
	if err := info.Validate(); err != nil {
		return fmt.Errorf("invalid queue info: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, true)
}

// CursorState is the persisted position of one consumer over one queue.
type CursorState struct {
	// Version is the metadata format version
	Version uint16 `json:"version"`

	// Consumer is the consumer name
	Consumer string `json:"consumer"`

	// Queue is the queue name
	Queue string `json:"queue"`

	// QueueID is the id of the queue the position refers to
	QueueID string `json:"queue_id"`

	// Position is the logical offset of the next unread record
	Position uint64 `json:"position"`

	// Committed is the total number of records committed over the cursor's life
	Committed uint64 `json:"committed"`

	// UpdatedAt is the Unix timestamp (nanoseconds) of the last commit
	UpdatedAt int64 `json:"updated_at"`
}

// Validate checks if the cursor state is consistent.
func (c *CursorState) Validate() error {
	if c.Version == 0 || c.Version > CurrentVersion {
		return fmt.Errorf("unsupported version: %d", c.Version)
	}
	if c.Consumer == "" || c.Queue == "" {
		return fmt.Errorf("cursor state requires consumer and queue names")
	}
	if c.QueueID == "" {
		return fmt.Errorf("cursor state requires a queue id")
	}
	if c.Committed > 0 && c.Position < c.Committed*RecordHeaderSize {
		return fmt.Errorf("position (%d) too small for %d committed records", c.Position, c.Committed)
	}
	return nil
}

// MarshalCursorState encodes cursor state to JSON.
func MarshalCursorState(c *CursorState) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cursor state: %w", err)
	}
	return json.Marshal(c)
}

// UnmarshalCursorState decodes and validates cursor state.
func UnmarshalCursorState(data []byte) (*CursorState, error) {
	c := &CursorState{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cursor state: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cursor state: %w", err)
	}
	return c, nil
}

// WriteFileAtomic writes data to path using double-buffering.
//
// Process:
//  1. Write to temporary file (.tmp)
//  2. Fsync temporary file (when sync is set)
//  3. Atomic rename to final path
//  4. Fsync directory (when sync is set)
//
// If the process crashes during write, the old file remains intact, or the new one is complete.
func WriteFileAtomic(path string, data []byte, sync bool) error {
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644) //nolint:gosec // G304: Path is user-provided for queue data
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if sync {
		if err := f.Sync(); err != nil {
			_ = f.Close()
			_ = os.Remove(tmpPath)
			return fmt.Errorf("failed to sync temporary file: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	if sync {
		if err := SyncDir(filepath.Dir(path)); err != nil {
			return fmt.Errorf("failed to sync directory: %w", err)
		}
	}

	return nil
}

// SyncDir fsyncs a directory so that renames and creations inside it are durable.
func SyncDir(path string) error {
	d, err := os.Open(path) //nolint:gosec // G304: Path is user-provided for queue data
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	return d.Sync()
}
