package comm

import (
	"context"
	"log/slog"
	"sync"
)

// deferredOp is one queued operation, replayed in FIFO order once the
// manager reaches Online (spec §4.6 "Deferred publish").
type deferredOp func(ctx context.Context) error

// deferredQueue buffers operations submitted while the manager is not
// Online. A non-zero max makes it bounded: once full, the oldest entry
// is dropped to make room, with a warning logged, rather than blocking
// the caller or growing without limit (spec §9 "a bounded queue with
// drop-oldest and a warning log is the conservative default").
type deferredQueue struct {
	mu      sync.Mutex
	max     int
	ops     []deferredOp
	logger  *slog.Logger
	dropped int
}

func newDeferredQueue(max int, logger *slog.Logger) *deferredQueue {
	return &deferredQueue{max: max, logger: logger}
}

// Push appends op, dropping the oldest queued op first if the queue is
// bounded and already full.
func (q *deferredQueue) Push(op deferredOp) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.max > 0 && len(q.ops) >= q.max {
		q.ops = q.ops[1:]
		q.dropped++
		q.logger.Warn("comm: deferred queue full, dropping oldest entry",
			"max", q.max, "dropped_total", q.dropped)
	}
	q.ops = append(q.ops, op)
}

// Len reports how many operations are currently queued.
func (q *deferredQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Drain removes and returns every queued operation, in FIFO order.
func (q *deferredQueue) Drain() []deferredOp {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops := q.ops
	q.ops = nil
	return ops
}
