// Package emitter queues keys of orphaned blobs for the janitor.
package emitter

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("emitter closed")

// Emitter is a bounded multi-producer queue of keys. Producers block while it is full; Close releases them.
type Emitter struct {
	mu     sync.RWMutex
	closed bool
	keys   chan string

	stop     chan struct{}
	stopOnce sync.Once
}

// New returns an emitter that buffers up to size keys.
func New(size int) *Emitter {
	return &Emitter{
		keys: make(chan string, max(size, 1)),
		stop: make(chan struct{}),
	}
}

// Emit queues key, waiting for room until ctx is done or the emitter is closed.
func (e *Emitter) Emit(ctx context.Context, key string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}

	select {
	case e.keys <- key:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stop:
		return ErrClosed
	}
}

// Chan is drained by the consumer. It is closed by Close once no Emit call can still write to it.
func (e *Emitter) Chan() <-chan string {
	return e.keys
}

// Pending reports how many keys are waiting to be consumed.
func (e *Emitter) Pending() int {
	return len(e.keys)
}

func (e *Emitter) Close() {
	// wake blocked producers first so they give up their read locks
	e.stopOnce.Do(func() { close(e.stop) })

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.keys)
}
