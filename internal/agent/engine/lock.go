package engine

import (
	"context"
	"sync"
)

// sessionQueue serializes work per session id in arrival order. A caller
// takes a ticket when its message arrives and holds the session once every
// earlier ticket for the same id has been released. Queues are dropped when
// they empty.
type sessionQueue struct {
	mu     sync.Mutex
	queues map[string][]*ticket
}

type ticket struct {
	q     *sessionQueue
	key   string
	ready chan struct{}
	once  sync.Once
}

func newSessionQueue() *sessionQueue {
	return &sessionQueue{queues: map[string][]*ticket{}}
}

// Enqueue reserves the next place in line for key. It never blocks.
func (q *sessionQueue) Enqueue(key string) *ticket {
	t := &ticket{q: q, key: key, ready: make(chan struct{})}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[key] = append(q.queues[key], t)
	if len(q.queues[key]) == 1 {
		close(t.ready)
	}
	return t
}

// Lock waits for key and returns the matching unlock.
func (q *sessionQueue) Lock(ctx context.Context, key string) (func(), error) {
	t := q.Enqueue(key)
	if err := t.Wait(ctx); err != nil {
		t.Release()
		return nil, err
	}
	return t.Release, nil
}

// Wait blocks until every earlier ticket for the key has been released.
func (t *ticket) Wait(ctx context.Context) error {
	select {
	case <-t.ready:
		return nil
	default:
	}
	select {
	case <-t.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release gives up the ticket, whether or not it was ever served, and hands
// the session to the next ticket in line. Extra calls are no-ops.
func (t *ticket) Release() {
	t.once.Do(func() {
		q := t.q
		q.mu.Lock()
		defer q.mu.Unlock()

		line := q.queues[t.key]
		for i, other := range line {
			if other != t {
				continue
			}
			line = append(line[:i], line[i+1:]...)
			if i == 0 && len(line) > 0 {
				close(line[0].ready)
			}
			break
		}
		if len(line) == 0 {
			delete(q.queues, t.key)
			return
		}
		q.queues[t.key] = line
	})
}

func (q *sessionQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues)
}
