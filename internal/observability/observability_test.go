package observability

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/agentrun/internal/tracing"
)

func TestListenerLifecycle(t *testing.T) {
	ctx := tracing.WithRunID(context.Background(), "run-a")
	other := tracing.WithRunID(context.Background(), "run-b")

	var a, b Collector
	Register("run-a", a.Listen)
	Register("run-b", b.Listen)
	defer Clear("run-b")

	t.Run("should deliver only to the emitting run", func(t *testing.T) {
		Emit(ctx, "model.chat", 10*time.Millisecond, nil)
		Emit(other, "tool.execute", time.Millisecond, map[string]string{"tool": "x"})

		require.Len(t, a.Events(), 1)
		assert.Equal(t, "model.chat", a.Events()[0].Name)
		assert.Equal(t, "run-a", a.Events()[0].RunID)
		require.Len(t, b.Events(), 1)
		assert.Equal(t, "x", b.Events()[0].Attrs["tool"])
	})

	t.Run("should stop delivering after clear", func(t *testing.T) {
		Clear("run-a")
		assert.Equal(t, 0, Registered("run-a"))

		Emit(ctx, "model.chat", time.Millisecond, nil)
		assert.Len(t, a.Events(), 1)
	})

	t.Run("should ignore contexts without a run", func(t *testing.T) {
		Emit(context.Background(), "orphan", time.Millisecond, nil)
		assert.Len(t, b.Events(), 1)
	})
}

func TestTimer(t *testing.T) {
	ctx := tracing.WithRunID(context.Background(), "run-timer")
	var c Collector
	Register("run-timer", c.Listen)
	defer Clear("run-timer")

	done := Timer(ctx, "memory.load")
	done(map[string]string{"backend": "sqlite"})

	events := c.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "memory.load", events[0].Name)
	assert.GreaterOrEqual(t, events[0].Duration, time.Duration(0))
}

func TestAuditLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, InitAuditLogger(path))
	defer func() {
		auditMu.Lock()
		_ = auditInst.Close()
		auditInst = &AuditLogger{logger: zerolog.Nop()}
		auditMu.Unlock()
	}()

	RecordRunAudit(context.Background(), "agent-1", "success", map[string]interface{}{"total_tokens": 12})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "run", entry["type"])
	assert.Equal(t, "invoke", entry["action"])
	assert.Equal(t, "agent-1", entry["actor"])
}
