package memory

import (
	"context"
	"sync"

	"github.com/harun/agentrun/pkg/chat"
)

// ChatMemory is the per-run handle on one memory id. History is loaded when the handle is
// opened; new turns are appended with Add and written back once on Close.
type ChatMemory struct {
	manager *Manager
	id      string

	mu       sync.Mutex
	messages []chat.Message
	added    bool
	closed   bool
}

// Open loads the history of memoryID and returns a handle for the run.
func (m *Manager) Open(ctx context.Context, memoryID string) (*ChatMemory, error) {
	messages, err := m.Load(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	return &ChatMemory{manager: m, id: memoryID, messages: messages}, nil
}

// ID returns the memory id.
func (c *ChatMemory) ID() string { return c.id }

// Messages returns a copy of the current history.
func (c *ChatMemory) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Add appends messages to the history. System messages are ignored.
func (c *ChatMemory) Add(messages ...chat.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, msg := range messages {
		if msg.Role == chat.RoleSystem {
			continue
		}
		c.messages = append(c.messages, msg)
		c.added = true
	}
}

// Close saves the history. A handle nothing was added to leaves the record untouched, so it
// neither refreshes the TTL nor recreates a record dropped on open; only AFTER_TASKRUN still
// deletes. Subsequent calls are no-ops.
func (c *ChatMemory) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if !c.added && c.manager.policy != AfterTaskRun {
		c.mu.Unlock()
		return nil
	}
	messages := make([]chat.Message, len(c.messages))
	copy(messages, c.messages)
	c.mu.Unlock()

	return c.manager.Save(ctx, c.id, messages)
}
