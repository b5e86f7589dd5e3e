package sync

import (
	"sync"

	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

// message is one unit of work for a sync worker.
type message struct {
	// stop tells the receiving worker to exit.
	stop bool

	// accountID is the account to sync when stop is false.
	accountID types.AccountID
}

// msgQueue is an unbounded multi-producer/multi-consumer FIFO.
type msgQueue struct {
	mu    sync.Mutex
	ready *sync.Cond
	items []message
}

func newMsgQueue() *msgQueue {
	q := &msgQueue{}
	q.ready = sync.NewCond(&q.mu)
	return q
}

// push appends a message to the back of the queue.
func (q *msgQueue) push(m message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.ready.Signal()
}

// pop blocks until a message is available and returns the front one.
func (q *msgQueue) pop() message {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.ready.Wait()
	}
	m := q.items[0]
	q.items = q.items[1:]
	return m
}

// len returns the number of queued messages.
func (q *msgQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
