package agenttool

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed is returned for calls made after the provider was closed.
	ErrClosed = errors.New("agent tool is closed")
	// ErrKilled is returned for calls interrupted by Kill.
	ErrKilled = errors.New("agent tool was killed")
)

// inflight tracks cancel funcs of calls still running.
type inflight struct {
	mu      sync.Mutex
	cancels map[int]context.CancelFunc
	next    int
	closed  bool
}

// begin derives a cancellable context for one call. The returned func must be called when the
// call returns.
func (f *inflight) begin(ctx context.Context) (context.Context, func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		cancel()
		return nil, nil, ErrClosed
	}
	if f.cancels == nil {
		f.cancels = map[int]context.CancelFunc{}
	}
	id := f.next
	f.next++
	f.cancels[id] = cancel

	return ctx, func() {
		f.mu.Lock()
		delete(f.cancels, id)
		f.mu.Unlock()
		cancel()
	}, nil
}

func (f *inflight) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *inflight) cancelAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, cancel := range f.cancels {
		cancel()
		delete(f.cancels, id)
	}
}
