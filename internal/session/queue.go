package session

import (
	"context"
	"sync"
)

// taskQueue is an unbounded FIFO drained by a single goroutine. Backend
// listeners enqueue without blocking; tasks run one at a time in order.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *taskQueue) push(task func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// run executes tasks until stop is called. Tasks still queued at that point
// are discarded.
func (q *taskQueue) run() {
	for {
		select {
		case <-q.done:
			return
		case <-q.signal:
		}
		for {
			q.mu.Lock()
			if len(q.tasks) == 0 {
				q.mu.Unlock()
				break
			}
			task := q.tasks[0]
			q.tasks[0] = nil
			q.tasks = q.tasks[1:]
			q.mu.Unlock()

			select {
			case <-q.done:
				return
			default:
			}
			task()
		}
	}
}

// drain waits until every task queued before the call has run.
func (q *taskQueue) drain(ctx context.Context) error {
	reached := make(chan struct{})
	q.push(func() { close(reached) })
	select {
	case <-reached:
		return nil
	case <-q.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *taskQueue) stop() {
	q.once.Do(func() { close(q.done) })
}
