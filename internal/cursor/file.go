package cursor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vnykmshr/vqueue/internal/format"
)

const fileExtension = ".json"

// FileStore keeps each cursor in basePath/<queue>/cursors/<consumer>.json.
type FileStore struct {
	basePath string
	sync     bool
}

// NewFileStore creates a file store rooted at basePath. With sync set every
// Save is fsynced before it returns.
func NewFileStore(basePath string, sync bool) *FileStore {
	return &FileStore{basePath: basePath, sync: sync}
}

func (s *FileStore) path(key Key) string {
	return filepath.Join(Dir(s.basePath, key.Queue), key.Consumer+fileExtension)
}

// Load reads the cursor file of key.
func (s *FileStore) Load(key Key) (*format.CursorState, error) {
	data, err := os.ReadFile(s.path(key)) //nolint:gosec // G304: Path built from validated names
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read cursor %s: %w", key, err)
	}

	state, err := format.UnmarshalCursorState(data)
	if err != nil {
		return nil, fmt.Errorf("cursor %s: %w", key, err)
	}
	return state, nil
}

// Save atomically replaces the cursor file of key.
func (s *FileStore) Save(key Key, state *format.CursorState) error {
	data, err := format.MarshalCursorState(state)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(Dir(s.basePath, key.Queue), 0755); err != nil {
		return fmt.Errorf("failed to create cursor directory: %w", err)
	}

	if err := format.WriteFileAtomic(s.path(key), data, s.sync); err != nil {
		return fmt.Errorf("failed to save cursor %s: %w", key, err)
	}
	return nil
}

// List returns the consumers with a cursor file under queue.
func (s *FileStore) List(queue string) ([]string, error) {
	entries, err := os.ReadDir(Dir(s.basePath, queue))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list cursors: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExtension) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), fileExtension))
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op; files are not held open.
func (s *FileStore) Close() error {
	return nil
}
