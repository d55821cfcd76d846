package cursor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/vqueue/internal/format"
)

func testState(consumer, queue string, pos, committed uint64) *format.CursorState {
	return &format.CursorState{
		Version:   format.CurrentVersion,
		Consumer:  consumer,
		Queue:     queue,
		QueueID:   "5f0c3c2e-8d0b-4b6f-9b7e-2f6d1a0e4c11",
		Position:  pos,
		Committed: committed,
		UpdatedAt: 1,
	}
}

func storesUnderTest(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			return NewFileStore(t.TempDir(), true)
		},
		"pebble": func(t *testing.T) Store {
			s, err := OpenPebbleStore(filepath.Join(t.TempDir(), "cursors.db"))
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_SaveLoad(t *testing.T) {
	for name, open := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer func() { _ = s.Close() }()

			key := Key{Queue: "orders", Consumer: "billing"}

			_, err := s.Load(key)
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Save(key, testState("billing", "orders", 0, 0)))
			require.NoError(t, s.Save(key, testState("billing", "orders", 42, 2)))

			got, err := s.Load(key)
			require.NoError(t, err)
			assert.Equal(t, uint64(42), got.Position)
			assert.Equal(t, uint64(2), got.Committed)
			assert.Equal(t, "billing", got.Consumer)

			// Keys are independent
			_, err = s.Load(Key{Queue: "orders", Consumer: "audit"})
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.Load(Key{Queue: "other", Consumer: "billing"})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_RejectsInvalidState(t *testing.T) {
	for name, open := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer func() { _ = s.Close() }()

			bad := testState("c", "q", 0, 0)
			bad.QueueID = ""
			assert.Error(t, s.Save(Key{Queue: "q", Consumer: "c"}, bad))
		})
	}
}

func TestStore_List(t *testing.T) {
	for name, open := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer func() { _ = s.Close() }()

			names, err := s.List("orders")
			require.NoError(t, err)
			assert.Empty(t, names)

			for _, c := range []string{"zeta", "alpha", "mid"} {
				require.NoError(t, s.Save(Key{Queue: "orders", Consumer: c}, testState(c, "orders", 0, 0)))
			}
			require.NoError(t, s.Save(Key{Queue: "orders2", Consumer: "x"}, testState("x", "orders2", 0, 0)))

			names, err = s.List("orders")
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
		})
	}
}

func TestFileStore_Layout(t *testing.T) {
	base := t.TempDir()
	s := NewFileStore(base, false)
	key := Key{Queue: "orders", Consumer: "billing"}

	require.NoError(t, s.Save(key, testState("billing", "orders", 7, 0)))

	_, err := os.Stat(filepath.Join(base, "orders", DirName, "billing.json"))
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "orders", DirName, "billing.lock"), LockPath(base, key))

	// A lock file is not a cursor
	require.NoError(t, os.WriteFile(LockPath(base, key), nil, 0644))
	names, err := s.List("orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"billing"}, names)
}

func TestFileStore_CorruptFile(t *testing.T) {
	base := t.TempDir()
	s := NewFileStore(base, false)
	key := Key{Queue: "orders", Consumer: "billing"}

	require.NoError(t, os.MkdirAll(Dir(base, "orders"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(Dir(base, "orders"), "billing.json"), []byte("{"), 0644))

	_, err := s.Load(key)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestPebbleStore_Reopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cursors.db")
	key := Key{Queue: "orders", Consumer: "billing"}

	s, err := OpenPebbleStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(key, testState("billing", "orders", 99, 3)))
	require.NoError(t, s.Close())

	s, err = OpenPebbleStore(dir)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.Load(key)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), got.Position)
}
