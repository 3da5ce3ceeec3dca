package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/agentrun/pkg/chat"
	"github.com/harun/agentrun/pkg/memory"
	"github.com/harun/agentrun/pkg/memory/memorytest"
)

func setupTestManager(t *testing.T, policy memory.DropPolicy) (*memory.Manager, *memorytest.MapStore) {
	t.Helper()
	store := memorytest.NewMapStore(nil)
	m, err := memory.NewManager(memory.Config{
		Store:      store,
		WindowSize: 5,
		TTL:        time.Hour,
		DropPolicy: policy,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return m, store
}

func TestMapStoreContract(t *testing.T) {
	clock := memorytest.NewClock()
	memorytest.Run(t, memorytest.Harness{
		NewStore: func(t *testing.T) memory.Store { return memorytest.NewMapStore(clock.Now) },
		Advance:  func(t *testing.T, d time.Duration) { clock.Advance(d) },
	})
}

func TestParseDropPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    memory.DropPolicy
		wantErr bool
	}{
		{in: "", want: memory.Keep},
		{in: "keep", want: memory.Keep},
		{in: "BEFORE_TASKRUN", want: memory.BeforeTaskRun},
		{in: " after_taskrun ", want: memory.AfterTaskRun},
		{in: "sometimes", wantErr: true},
	}
	for _, tt := range tests {
		got, err := memory.ParseDropPolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("should require a store", func(t *testing.T) {
		_, err := memory.NewManager(memory.Config{})
		require.Error(t, err)
	})

	t.Run("should reject unknown policies", func(t *testing.T) {
		_, err := memory.NewManager(memory.Config{Store: memorytest.NewMapStore(nil), DropPolicy: "NEVER"})
		require.Error(t, err)
	})

	t.Run("should reject negative ttl", func(t *testing.T) {
		_, err := memory.NewManager(memory.Config{Store: memorytest.NewMapStore(nil), TTL: -time.Second})
		require.Error(t, err)
	})

	t.Run("should default policy to KEEP", func(t *testing.T) {
		m, err := memory.NewManager(memory.Config{Store: memorytest.NewMapStore(nil)})
		require.NoError(t, err)
		assert.Equal(t, memory.Keep, m.Policy())
		assert.Equal(t, "map", m.Backend())
	})
}

func TestManagerFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")

	t.Run("should wrap load failures", func(t *testing.T) {
		m, store := setupTestManager(t, memory.Keep)
		store.Err = boom

		_, err := m.Load(ctx, "a")
		var ioErr *memory.IOError
		require.ErrorAs(t, err, &ioErr)
		assert.Equal(t, "load", ioErr.Op)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("should wrap delete failures under AFTER_TASKRUN", func(t *testing.T) {
		m, store := setupTestManager(t, memory.AfterTaskRun)
		store.Err = boom

		err := m.Save(ctx, "a", []chat.Message{chat.User("hi")})
		var ioErr *memory.IOError
		require.ErrorAs(t, err, &ioErr)
		assert.Equal(t, "delete", ioErr.Op)
	})

	t.Run("should require a memory id", func(t *testing.T) {
		m, _ := setupTestManager(t, memory.Keep)
		_, err := m.Load(ctx, "")
		require.Error(t, err)
		require.Error(t, m.Save(ctx, "", nil))
		require.Error(t, m.Delete(ctx, ""))
	})
}

func TestChatMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("should load on open and save once on close", func(t *testing.T) {
		m, store := setupTestManager(t, memory.Keep)
		require.NoError(t, store.Put(ctx, "a", []chat.Message{chat.User("hello"), chat.AI("hi")}, 0))

		cm, err := m.Open(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "a", cm.ID())
		assert.Len(t, cm.Messages(), 2)

		cm.Add(chat.System("ignored"), chat.User("again"), chat.AI("yes"))
		require.NoError(t, cm.Close(ctx))

		store.Err = errors.New("closed twice")
		require.NoError(t, cm.Close(ctx), "second close must not touch the store")
		store.Err = nil

		rec, err := store.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []chat.Message{chat.User("hello"), chat.AI("hi"), chat.User("again"), chat.AI("yes")}, rec.Messages)
	})

	t.Run("should start fresh and leave nothing behind under BEFORE_TASKRUN", func(t *testing.T) {
		m, store := setupTestManager(t, memory.BeforeTaskRun)
		require.NoError(t, store.Put(ctx, "x", []chat.Message{chat.User("1"), chat.AI("2"), chat.User("3")}, 0))

		cm, err := m.Open(ctx, "x")
		require.NoError(t, err)
		assert.Empty(t, cm.Messages())
		assert.Equal(t, 0, store.Len())
	})

	t.Run("should not write back a history nothing was added to", func(t *testing.T) {
		m, store := setupTestManager(t, memory.Keep)
		require.NoError(t, store.Put(ctx, "a", []chat.Message{chat.User("hello")}, time.Minute))
		before, err := store.Get(ctx, "a")
		require.NoError(t, err)

		cm, err := m.Open(ctx, "a")
		require.NoError(t, err)
		cm.Add(chat.System("ignored"))
		store.PutErr = errors.New("unexpected write")
		require.NoError(t, cm.Close(ctx))
		store.PutErr = nil

		after, err := store.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, before.ExpiresAt, after.ExpiresAt)
	})

	t.Run("should not recreate a dropped record on close under BEFORE_TASKRUN", func(t *testing.T) {
		m, store := setupTestManager(t, memory.BeforeTaskRun)
		require.NoError(t, store.Put(ctx, "x", []chat.Message{chat.User("1")}, 0))

		cm, err := m.Open(ctx, "x")
		require.NoError(t, err)
		require.NoError(t, cm.Close(ctx))

		rec, err := store.Get(ctx, "x")
		require.NoError(t, err)
		assert.Nil(t, rec)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("should still delete on close under AFTER_TASKRUN", func(t *testing.T) {
		m, store := setupTestManager(t, memory.AfterTaskRun)
		require.NoError(t, store.Put(ctx, "y", []chat.Message{chat.User("1")}, 0))

		cm, err := m.Open(ctx, "y")
		require.NoError(t, err)
		require.NoError(t, cm.Close(ctx))
		assert.Equal(t, 0, store.Len())
	})

	t.Run("should return a copy of messages", func(t *testing.T) {
		m, _ := setupTestManager(t, memory.Keep)
		cm, err := m.Open(ctx, "copy")
		require.NoError(t, err)
		cm.Add(chat.User("hi"))

		msgs := cm.Messages()
		msgs[0].Content = "changed"
		assert.Equal(t, "hi", cm.Messages()[0].Content)
	})
}
