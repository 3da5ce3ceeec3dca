// Package chat defines the conversation primitives shared by models, memory backends and the
// invocation orchestrator.
package chat

import (
	"errors"
	"fmt"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem Role = "SYSTEM"
	RoleUser   Role = "USER"
	RoleAI     Role = "AI"
)

var (
	// ErrEmptyMessages is returned when a completion is requested with no messages.
	ErrEmptyMessages = errors.New("message list is empty")
	// ErrMultipleSystem is returned when more than one SYSTEM message is present.
	ErrMultipleSystem = errors.New("message list contains more than one system message")
	// ErrMustEndWithUser is returned when the last message is not a USER message.
	ErrMustEndWithUser = errors.New("message list must end with a user message")
)

// Message is a single conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System builds a SYSTEM message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a USER message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// AI builds an AI message.
func AI(content string) Message { return Message{Role: RoleAI, Content: content} }

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAI:
		return true
	}
	return false
}

// Validate checks the invariants a message list must satisfy before it is sent to a model:
// at most one SYSTEM message and a trailing USER message.
func Validate(messages []Message) error {
	if len(messages) == 0 {
		return ErrEmptyMessages
	}

	systems := 0
	for i, msg := range messages {
		if !msg.Role.Valid() {
			return fmt.Errorf("message %d has unknown role %q", i, msg.Role)
		}
		if msg.Role == RoleSystem {
			systems++
		}
	}
	if systems > 1 {
		return ErrMultipleSystem
	}
	if messages[len(messages)-1].Role != RoleUser {
		return ErrMustEndWithUser
	}
	return nil
}

// WithoutSystem returns a copy of messages with every SYSTEM message removed.
func WithoutSystem(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != RoleSystem {
			out = append(out, msg)
		}
	}
	return out
}

// Window returns at most size of the most recent messages, dropping the oldest first.
// A size of zero or less returns every message.
func Window(messages []Message, size int) []Message {
	if size <= 0 || len(messages) <= size {
		out := make([]Message, len(messages))
		copy(out, messages)
		return out
	}
	out := make([]Message, size)
	copy(out, messages[len(messages)-size:])
	return out
}
