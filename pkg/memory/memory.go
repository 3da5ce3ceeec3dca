package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harun/agentrun/pkg/chat"
)

// DropPolicy decides when stored history is invalidated relative to a run.
type DropPolicy string

const (
	// Keep never drops history; it only expires through TTL.
	Keep DropPolicy = "KEEP"
	// BeforeTaskRun destroys existing history when it is loaded, so the run starts fresh.
	BeforeTaskRun DropPolicy = "BEFORE_TASKRUN"
	// AfterTaskRun deletes history instead of saving it when the run ends.
	AfterTaskRun DropPolicy = "AFTER_TASKRUN"
)

// ParseDropPolicy parses a policy name case-insensitively. Empty means Keep.
func ParseDropPolicy(s string) (DropPolicy, error) {
	switch p := DropPolicy(strings.ToUpper(strings.TrimSpace(s))); p {
	case "":
		return Keep, nil
	case Keep, BeforeTaskRun, AfterTaskRun:
		return p, nil
	default:
		return "", fmt.Errorf("unknown drop policy %q", s)
	}
}

// Record is the stored history of one memory id.
type Record struct {
	MemoryID  string
	Messages  []chat.Message
	ExpiresAt *time.Time
}

// Store persists records. Get returns nil, nil for absent or expired records.
type Store interface {
	Name() string
	Get(ctx context.Context, memoryID string) (*Record, error)
	Put(ctx context.Context, memoryID string, messages []chat.Message, ttl time.Duration) error
	Delete(ctx context.Context, memoryID string) error
	Close() error
}

// IOError reports a failed backend call.
type IOError struct {
	Backend  string
	Op       string
	MemoryID string
	Err      error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("memory %s %s %q: %v", e.Backend, e.Op, e.MemoryID, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// EncodeMessages serializes a message list for storage.
func EncodeMessages(messages []chat.Message) ([]byte, error) {
	if messages == nil {
		messages = []chat.Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to encode messages: %w", err)
	}
	return data, nil
}

// DecodeMessages parses a stored payload.
func DecodeMessages(data []byte) ([]chat.Message, error) {
	var messages []chat.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

// ExpiresAt returns now+ttl, or nil when ttl is not positive.
func ExpiresAt(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := now.Add(ttl)
	return &t
}
