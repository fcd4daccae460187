package cart

import (
	"context"
	"sync"
)

// mutationQueue serializes mutations per cart id. Waiters are served in no
// particular order; what matters is that one read-plan-write sequence
// finishes before the next one reads.
type mutationQueue struct {
	mu    sync.Mutex
	carts map[string]*cartSlot
}

type cartSlot struct {
	sem  chan struct{}
	refs int
}

func newMutationQueue() *mutationQueue {
	return &mutationQueue{carts: make(map[string]*cartSlot)}
}

// acquire blocks until cartID is free or ctx is done. The returned release
// must be called exactly once.
func (q *mutationQueue) acquire(ctx context.Context, cartID string) (func(), error) {
	q.mu.Lock()
	slot, ok := q.carts[cartID]
	if !ok {
		slot = &cartSlot{sem: make(chan struct{}, 1)}
		q.carts[cartID] = slot
	}
	slot.refs++
	q.mu.Unlock()

	select {
	case slot.sem <- struct{}{}:
		return func() {
			<-slot.sem
			q.unref(cartID, slot)
		}, nil
	case <-ctx.Done():
		q.unref(cartID, slot)
		return nil, ctx.Err()
	}
}

func (q *mutationQueue) unref(cartID string, slot *cartSlot) {
	q.mu.Lock()
	defer q.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(q.carts, cartID)
	}
}

// size returns the number of carts with holders or waiters.
func (q *mutationQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.carts)
}
