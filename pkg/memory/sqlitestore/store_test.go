package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/agentrun/pkg/chat"
	"github.com/harun/agentrun/pkg/memory"
	"github.com/harun/agentrun/pkg/memory/memorytest"
)

func setupTestStore(t *testing.T, clock *memorytest.Clock) *Store {
	t.Helper()
	s, err := New(Config{Path: filepath.Join(t.TempDir(), "memory.db"), Now: clock.Now})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestContract(t *testing.T) {
	clock := memorytest.NewClock()
	memorytest.Run(t, memorytest.Harness{
		NewStore: func(t *testing.T) memory.Store { return setupTestStore(t, clock) },
		Advance:  func(t *testing.T, d time.Duration) { clock.Advance(d) },
	})
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should provision the table idempotently", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "memory.db")
		first, err := New(Config{Path: path})
		require.NoError(t, err)
		require.NoError(t, first.Put(ctx, "a", []chat.Message{chat.User("hi")}, 0))
		require.NoError(t, first.Close())

		second, err := New(Config{Path: path})
		require.NoError(t, err)
		defer second.Close()

		rec, err := second.Get(ctx, "a")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, []chat.Message{chat.User("hi")}, rec.Messages)
	})

	t.Run("should delete the stale row as a side effect of reading it", func(t *testing.T) {
		clock := memorytest.NewClock()
		s := setupTestStore(t, clock)
		require.NoError(t, s.Put(ctx, "a", []chat.Message{chat.User("hi")}, time.Second))

		clock.Advance(2 * time.Second)
		rec, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Nil(t, rec)

		var n int
		require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM chat_memory").Scan(&n))
		assert.Equal(t, 0, n)
	})

	t.Run("should not sweep unread expired rows", func(t *testing.T) {
		clock := memorytest.NewClock()
		s := setupTestStore(t, clock)
		require.NoError(t, s.Put(ctx, "a", []chat.Message{chat.User("hi")}, time.Second))
		require.NoError(t, s.Put(ctx, "b", []chat.Message{chat.User("yo")}, time.Second))

		clock.Advance(time.Minute)
		_, err := s.Get(ctx, "a")
		require.NoError(t, err)

		var n int
		require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM chat_memory").Scan(&n))
		assert.Equal(t, 1, n)
	})

	t.Run("should reject unsafe table names", func(t *testing.T) {
		_, err := New(Config{Path: filepath.Join(t.TempDir(), "m.db"), Table: "x; DROP TABLE y"})
		require.Error(t, err)
	})

	t.Run("should surface query failures", func(t *testing.T) {
		s := setupTestStore(t, memorytest.NewClock())
		require.NoError(t, s.Close())

		_, err := s.Get(ctx, "a")
		require.Error(t, err)
	})
}
