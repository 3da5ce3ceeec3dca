package memorytest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/agentrun/pkg/chat"
	"github.com/harun/agentrun/pkg/memory"
)

// Harness adapts a backend to the contract suite.
type Harness struct {
	// NewStore returns a store ready for use. It is called once per subtest.
	NewStore func(t *testing.T) memory.Store
	// Advance moves the store's notion of time forward by d.
	Advance func(t *testing.T, d time.Duration)
}

func conversation(n int) []chat.Message {
	out := make([]chat.Message, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			out = append(out, chat.User(fmt.Sprintf("question %d", i)))
		} else {
			out = append(out, chat.AI(fmt.Sprintf("answer %d", i)))
		}
	}
	return out
}

func newManager(t *testing.T, store memory.Store, policy memory.DropPolicy, window int, ttl time.Duration) *memory.Manager {
	t.Helper()
	m, err := memory.NewManager(memory.Config{
		Store:      store,
		WindowSize: window,
		TTL:        ttl,
		DropPolicy: policy,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return m
}

func newID() string { return "mem-" + uuid.New().String() }

// Run executes the contract suite against the harness.
func Run(t *testing.T, h Harness) {
	ctx := context.Background()

	t.Run("should return empty history for an unknown id", func(t *testing.T) {
		store := h.NewStore(t)
		m := newManager(t, store, memory.Keep, 5, time.Hour)

		got, err := m.Load(ctx, newID())
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("should round trip under KEEP", func(t *testing.T) {
		store := h.NewStore(t)
		m := newManager(t, store, memory.Keep, 10, time.Hour)
		id := newID()
		msgs := conversation(4)

		require.NoError(t, m.Save(ctx, id, msgs))
		got, err := m.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, msgs, got)
	})

	t.Run("should truncate to the window keeping the newest messages", func(t *testing.T) {
		store := h.NewStore(t)
		m := newManager(t, store, memory.Keep, 3, time.Hour)
		id := newID()
		msgs := conversation(7)

		require.NoError(t, m.Save(ctx, id, msgs))
		got, err := m.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, msgs[4:], got)
	})

	t.Run("should read idempotently under KEEP", func(t *testing.T) {
		store := h.NewStore(t)
		m := newManager(t, store, memory.Keep, 5, time.Hour)
		id := newID()
		require.NoError(t, m.Save(ctx, id, conversation(6)))

		first, err := m.Load(ctx, id)
		require.NoError(t, err)
		second, err := m.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Len(t, first, 5)
	})

	t.Run("should replace content on save", func(t *testing.T) {
		store := h.NewStore(t)
		m := newManager(t, store, memory.Keep, 10, time.Hour)
		id := newID()

		require.NoError(t, m.Save(ctx, id, conversation(4)))
		replacement := []chat.Message{chat.User("only"), chat.AI("this")}
		require.NoError(t, m.Save(ctx, id, replacement))

		got, err := m.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, replacement, got)
	})

	t.Run("should never persist system messages", func(t *testing.T) {
		store := h.NewStore(t)
		m := newManager(t, store, memory.Keep, 10, time.Hour)
		id := newID()

		require.NoError(t, m.Save(ctx, id, []chat.Message{chat.System("rules"), chat.User("hi"), chat.AI("hello")}))

		rec, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, []chat.Message{chat.User("hi"), chat.AI("hello")}, rec.Messages)
	})

	t.Run("should drop existing history before the run", func(t *testing.T) {
		store := h.NewStore(t)
		id := newID()
		require.NoError(t, newManager(t, store, memory.Keep, 10, time.Hour).Save(ctx, id, conversation(3)))

		m := newManager(t, store, memory.BeforeTaskRun, 10, time.Hour)
		got, err := m.Load(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, got)

		rec, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, rec, "record should be gone right after the load")
	})

	t.Run("should delete instead of saving after the run", func(t *testing.T) {
		store := h.NewStore(t)
		id := newID()
		require.NoError(t, newManager(t, store, memory.Keep, 10, time.Hour).Save(ctx, id, conversation(2)))

		m := newManager(t, store, memory.AfterTaskRun, 10, time.Hour)
		require.NoError(t, m.Save(ctx, id, conversation(4)))

		got, err := m.Load(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("should treat expired records as absent", func(t *testing.T) {
		store := h.NewStore(t)
		m := newManager(t, store, memory.Keep, 10, 2*time.Second)
		id := newID()
		require.NoError(t, m.Save(ctx, id, conversation(2)))

		h.Advance(t, 3*time.Second)

		got, err := m.Load(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, got)

		rec, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("should keep records without ttl", func(t *testing.T) {
		store := h.NewStore(t)
		m := newManager(t, store, memory.Keep, 10, 0)
		id := newID()
		require.NoError(t, m.Save(ctx, id, conversation(2)))

		h.Advance(t, 48*time.Hour)

		got, err := m.Load(ctx, id)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("should reset expiry on every save", func(t *testing.T) {
		store := h.NewStore(t)
		m := newManager(t, store, memory.Keep, 10, 10*time.Second)
		id := newID()
		require.NoError(t, m.Save(ctx, id, conversation(2)))

		h.Advance(t, 6*time.Second)
		require.NoError(t, m.Save(ctx, id, conversation(4)))
		h.Advance(t, 6*time.Second)

		got, err := m.Load(ctx, id)
		require.NoError(t, err)
		assert.Len(t, got, 4)
	})

	t.Run("should delete on request", func(t *testing.T) {
		store := h.NewStore(t)
		m := newManager(t, store, memory.Keep, 10, time.Hour)
		id := newID()
		require.NoError(t, m.Save(ctx, id, conversation(2)))

		require.NoError(t, m.Delete(ctx, id))
		require.NoError(t, m.Delete(ctx, id), "deleting an absent record is not an error")

		got, err := m.Load(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
