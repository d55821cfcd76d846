package cursor

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/vnykmshr/vqueue/internal/format"
)

const keyPrefix = "cursor/"

// PebbleStore keeps cursors in a Pebble database under cursor/<queue>/<consumer>.
// Every Save is a synced write.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebbleStore opens or creates the database in dir.
func OpenPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open cursor database: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func pebbleKey(key Key) []byte {
	return []byte(keyPrefix + key.Queue + "/" + key.Consumer)
}

func queuePrefix(queue string) []byte {
	return []byte(keyPrefix + queue + "/")
}

// Load reads the cursor of key.
func (s *PebbleStore) Load(key Key) (*format.CursorState, error) {
	data, closer, err := s.db.Get(pebbleKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read cursor %s: %w", key, err)
	}
	defer func() { _ = closer.Close() }()

	state, err := format.UnmarshalCursorState(data)
	if err != nil {
		return nil, fmt.Errorf("cursor %s: %w", key, err)
	}
	return state, nil
}

// Save writes the cursor of key with a WAL sync.
func (s *PebbleStore) Save(key Key, state *format.CursorState) error {
	data, err := format.MarshalCursorState(state)
	if err != nil {
		return err
	}
	if err := s.db.Set(pebbleKey(key), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save cursor %s: %w", key, err)
	}
	return nil
}

// List returns the consumers with a cursor over queue.
func (s *PebbleStore) List(queue string) ([]string, error) {
	prefix := queuePrefix(queue)
	hi := append(append([]byte{}, prefix...), 0xFF)

	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: hi})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer func() { _ = it.Close() }()

	var names []string
	for ok := it.First(); ok; ok = it.Next() {
		names = append(names, string(it.Key()[len(prefix):]))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("failed to list cursors: %w", err)
	}
	return names, nil
}

// Close flushes and closes the database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}
