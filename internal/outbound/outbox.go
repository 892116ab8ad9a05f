package outbound

import (
	"context"
	"sync"

	"github.com/rathix/workflow-engine/internal/task"
)

// Outbox implements the after-commit delivery mode: dispatches produced
// during one ingress request are buffered here, then handed to the
// in-memory Queue only if the enclosing transaction commits. On rollback the buffer
// is discarded — this is the transactional-outbox pattern called for in
// place of the source's "after-commit hook".
type Outbox struct {
	mu       sync.Mutex
	buffered []task.Dispatch
	queue    *Queue
}

// NewOutbox creates an Outbox that flushes to queue.
func NewOutbox(queue *Queue) *Outbox {
	return &Outbox{queue: queue}
}

// BufferForCommit records d for delivery once the enclosing transaction
// commits.
func (o *Outbox) BufferForCommit(d task.Dispatch) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buffered = append(o.buffered, d)
}

// BufferManyForCommit records every dispatch in ds for delivery once the
// enclosing transaction commits.
func (o *Outbox) BufferManyForCommit(ds []task.Dispatch) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buffered = append(o.buffered, ds...)
}

// Flush hands every buffered dispatch to the queue. Call this only
// after the enclosing transaction has committed successfully.
func (o *Outbox) Flush(ctx context.Context) {
	o.mu.Lock()
	buffered := o.buffered
	o.buffered = nil
	o.mu.Unlock()

	for _, d := range buffered {
		o.queue.Enqueue(ctx, d)
	}
}

// Discard drops every buffered dispatch without delivering it. Call this
// on transaction rollback.
func (o *Outbox) Discard() {
	o.mu.Lock()
	o.buffered = nil
	o.mu.Unlock()
}

// Pending returns the number of dispatches currently buffered, awaiting
// Flush or Discard.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.buffered)
}
