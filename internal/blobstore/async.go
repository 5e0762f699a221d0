package blobstore

import (
	"context"
	"log/slog"
	"sync"
)

// Async wraps a Store with a write-behind queue. Put and Delete enqueue the
// operation and return immediately; a single worker goroutine applies them in
// order, so the caller never waits for durability. A pending overlay keeps
// reads consistent with queued writes (read-your-writes), and per-id operation
// order is preserved because there is exactly one worker.
//
// Individual write failures are logged and dropped, never surfaced: losing a
// photo is non-critical to the inventory itself.
//
// Callers must not issue concurrent operations for the same id; the inventory
// service serializes all mutations under its own lock.
type Async struct {
	inner  Store
	logger *slog.Logger

	ops chan asyncOp

	mu      sync.Mutex
	pending map[int64]asyncOp
	seq     uint64
	closed  bool
	senders sync.WaitGroup

	done chan struct{}
}

type asyncOp struct {
	id       int64
	remove   bool
	mimeType string
	data     []byte
	seq      uint64
	flush    chan struct{} // non-nil marks a flush barrier
}

func NewAsync(inner Store, logger *slog.Logger) *Async {
	a := &Async{
		inner:   inner,
		logger:  logger,
		ops:     make(chan asyncOp, 64),
		pending: make(map[int64]asyncOp),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for o := range a.ops {
		if o.flush != nil {
			close(o.flush)
			continue
		}

		var err error
		if o.remove {
			err = a.inner.Delete(context.Background(), o.id)
		} else {
			err = a.inner.Put(context.Background(), o.id, o.mimeType, o.data)
		}
		if err != nil {
			a.logger.Error("blob write failed", "id", o.id, "delete", o.remove, "error", err)
		}

		a.mu.Lock()
		if cur, ok := a.pending[o.id]; ok && cur.seq == o.seq {
			delete(a.pending, o.id)
		}
		a.mu.Unlock()
	}
}

// Put schedules a durable write and returns before it completes.
func (a *Async) Put(ctx context.Context, id int64, mimeType string, data []byte) error {
	a.enqueue(asyncOp{id: id, mimeType: mimeType, data: data})
	return nil
}

// Delete schedules removal and returns before it completes.
func (a *Async) Delete(ctx context.Context, id int64) error {
	a.enqueue(asyncOp{id: id, remove: true})
	return nil
}

// Get consults the pending overlay first so queued writes are visible
// immediately, then falls through to the underlying store.
func (a *Async) Get(ctx context.Context, id int64) ([]byte, string, error) {
	a.mu.Lock()
	o, ok := a.pending[id]
	a.mu.Unlock()

	if ok {
		if o.remove {
			return nil, "", nil
		}
		data := make([]byte, len(o.data))
		copy(data, o.data)
		return data, o.mimeType, nil
	}
	return a.inner.Get(ctx, id)
}

// Flush blocks until every operation enqueued before the call has been applied.
// The backup exporter calls this so the document sees all stored blobs.
func (a *Async) Flush() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	barrier := asyncOp{flush: make(chan struct{})}
	a.senders.Add(1)
	a.mu.Unlock()
	a.ops <- barrier
	a.senders.Done()
	<-barrier.flush
}

// Close flushes the queue and stops the worker. Operations submitted after
// Close are dropped.
func (a *Async) Close() {
	a.Flush()
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()
	a.senders.Wait()
	close(a.ops)
	<-a.done
}

func (a *Async) enqueue(o asyncOp) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.logger.Error("blob write dropped: store closed", "id", o.id, "delete", o.remove)
		return
	}
	a.seq++
	o.seq = a.seq
	a.pending[o.id] = o
	a.senders.Add(1)
	a.mu.Unlock()
	a.ops <- o
	a.senders.Done()
}
