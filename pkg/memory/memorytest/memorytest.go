// Package memorytest holds the contract suite every memory.Store must pass, plus an in-memory
// store and a fake clock for tests.
package memorytest

import (
	"context"
	"sync"
	"time"

	"github.com/harun/agentrun/pkg/chat"
	"github.com/harun/agentrun/pkg/memory"
)

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock set to a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MapStore is an in-memory memory.Store with lazy expiry.
type MapStore struct {
	mu      sync.Mutex
	now     func() time.Time
	records map[string]memory.Record

	// Err, when set, is returned by every operation.
	Err error
	// PutErr, when set, is returned by Put only.
	PutErr error
}

// NewMapStore creates an in-memory store. A nil now uses time.Now.
func NewMapStore(now func() time.Time) *MapStore {
	if now == nil {
		now = time.Now
	}
	return &MapStore{now: now, records: map[string]memory.Record{}}
}

// Name returns "map".
func (s *MapStore) Name() string { return "map" }

// Get returns the record or nil when absent or expired.
func (s *MapStore) Get(ctx context.Context, memoryID string) (*memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	rec, ok := s.records[memoryID]
	if !ok {
		return nil, nil
	}
	if rec.ExpiresAt != nil && !s.now().Before(*rec.ExpiresAt) {
		delete(s.records, memoryID)
		return nil, nil
	}
	rec.Messages = append([]chat.Message(nil), rec.Messages...)
	return &rec, nil
}

// Put replaces the record.
func (s *MapStore) Put(ctx context.Context, memoryID string, messages []chat.Message, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.PutErr != nil {
		return s.PutErr
	}
	s.records[memoryID] = memory.Record{
		MemoryID:  memoryID,
		Messages:  append([]chat.Message(nil), messages...),
		ExpiresAt: memory.ExpiresAt(s.now(), ttl),
	}
	return nil
}

// Delete removes the record.
func (s *MapStore) Delete(ctx context.Context, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.records, memoryID)
	return nil
}

// Close is a no-op.
func (s *MapStore) Close() error { return nil }

// Len returns the number of stored records, expired ones included.
func (s *MapStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
