package usecase

import (
	"sync"

	"github.com/allisson/posoffline/internal/outbox/domain"
)

// stagingBuffer keeps operations whose write failed until they can be
// flushed. It is bounded; when full the oldest entry is evicted.
type stagingBuffer struct {
	mu       sync.Mutex
	items    []*domain.PendingOperation
	capacity int
	evicted  int64
}

func newStagingBuffer(capacity int) *stagingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &stagingBuffer{capacity: capacity}
}

// Push appends op and returns the operation evicted to make room, if any.
func (b *stagingBuffer) Push(op *domain.PendingOperation) *domain.PendingOperation {
	b.mu.Lock()
	defer b.mu.Unlock()

	var dropped *domain.PendingOperation
	if len(b.items) >= b.capacity {
		dropped = b.items[0]
		b.items = b.items[1:]
		b.evicted++
	}
	b.items = append(b.items, op)
	return dropped
}

// Take removes and returns every staged operation, oldest first.
func (b *stagingBuffer) Take() []*domain.PendingOperation {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.items
	b.items = nil
	return items
}

// Restore puts ops back in front of anything staged meanwhile, keeping the bound.
func (b *stagingBuffer) Restore(ops []*domain.PendingOperation) {
	if len(ops) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	items := append(append([]*domain.PendingOperation(nil), ops...), b.items...)
	if over := len(items) - b.capacity; over > 0 {
		items = items[over:]
		b.evicted += int64(over)
	}
	b.items = items
}

// Len returns the number of staged operations.
func (b *stagingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Evicted returns how many operations were dropped because the buffer was full.
func (b *stagingBuffer) Evicted() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}
