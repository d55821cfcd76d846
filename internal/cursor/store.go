// Package cursor persists consumer read positions.
//
// A cursor is identified by a queue name and a consumer name. Two stores are
// provided: FileStore keeps one JSON file per cursor next to the queue it
// reads, and PebbleStore keeps all cursors in a single Pebble database.
package cursor

import (
	"errors"
	"path/filepath"

	"github.com/vnykmshr/vqueue/internal/format"
)

// DirName is the directory under a queue holding its cursors.
const DirName = "cursors"

// ErrNotFound indicates no cursor has been saved under the key.
var ErrNotFound = errors.New("vqueue: cursor not found")

// Key identifies one cursor.
type Key struct {
	Queue    string
	Consumer string
}

// String returns "queue/consumer".
func (k Key) String() string {
	return k.Queue + "/" + k.Consumer
}

// Store loads and saves cursor state.
//
// Save must be durable when it returns nil: a committed position is never
// lost across a crash.
type Store interface {
	// Load returns the saved state or an error wrapping ErrNotFound.
	Load(key Key) (*format.CursorState, error)

	// Save replaces the state under key.
	Save(key Key, state *format.CursorState) error

	// List returns the consumer names with a saved cursor over queue, sorted.
	List(queue string) ([]string, error)

	// Close releases the store.
	Close() error
}

// Dir returns the cursor directory of queue under basePath.
func Dir(basePath, queue string) string {
	return filepath.Join(basePath, queue, DirName)
}

// LockPath returns the lock file guarding the cursor of key under basePath.
// Locks always live on the filesystem, whatever the store.
func LockPath(basePath string, key Key) string {
	return filepath.Join(Dir(basePath, key.Queue), key.Consumer+".lock")
}
