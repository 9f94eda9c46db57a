package internal

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/volt/pkg/logger"
)

// DefaultQueueDepth is the per-lane backlog of an AsyncQueue.
const DefaultQueueDepth = 32

// WorkItem is one unit of deferred work. Items with the same Key run in
// submission order; different keys run concurrently.
type WorkItem struct {
	// Run performs the work.
	Run func(ctx context.Context) error

	// Done, if set, receives Run's result on the worker goroutine.
	Done func(err error)

	// Alive, if set, is checked under the queue lock before the item is
	// queued. A false result fails Submit with ErrLaneClosed, so work for a
	// key whose owner is gone never opens a new lane. Owners must make
	// Alive report false before they call Drop.
	Alive func() bool

	// Key selects the ordering lane, usually a client ID.
	Key string
}

// AsyncQueue runs work off the request goroutine, one worker per key.
type AsyncQueue struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	logger *slog.Logger
	lanes  map[string]chan WorkItem
	depth  int
	mu     sync.Mutex
	closed bool
}

// NewAsyncQueue creates a queue whose lanes buffer depth items.
func NewAsyncQueue(depth int, log *slog.Logger) *AsyncQueue {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	if log == nil {
		log = logger.NewNope()
	}
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	return &AsyncQueue{
		ctx:    ctx,
		cancel: cancel,
		group:  g,
		logger: log,
		lanes:  make(map[string]chan WorkItem),
		depth:  depth,
	}
}

// Submit enqueues item on its lane without blocking. It fails with
// ErrQueueFull when the lane backlog is full, ErrLaneClosed when item.Alive
// reports false and ErrQueueClosed after Close.
func (q *AsyncQueue) Submit(item WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if item.Alive != nil && !item.Alive() {
		return ErrLaneClosed
	}

	lane, ok := q.lanes[item.Key]
	if !ok {
		lane = make(chan WorkItem, q.depth)
		q.lanes[item.Key] = lane
		q.group.Go(func() error {
			q.drain(lane)
			return nil
		})
	}

	select {
	case lane <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *AsyncQueue) drain(lane <-chan WorkItem) {
	for item := range lane {
		err := q.ctx.Err()
		if err == nil {
			err = item.Run(q.ctx)
		}
		if item.Done != nil {
			item.Done(err)
		} else if err != nil {
			q.logger.Debug("async work failed",
				slog.String("key", item.Key),
				slog.Any("error", err))
		}
	}
}

// Drop closes the lane for key. Items already queued still run.
func (q *AsyncQueue) Drop(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if lane, ok := q.lanes[key]; ok {
		close(lane)
		delete(q.lanes, key)
	}
}

// Lanes returns the number of open lanes.
func (q *AsyncQueue) Lanes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

// Close stops accepting work and waits for queued items to finish. If ctx
// ends first, running items see their context canceled and the remaining
// items complete with that error.
func (q *AsyncQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		for key, lane := range q.lanes {
			close(lane)
			delete(q.lanes, key)
		}
	}
	q.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- q.group.Wait() }()

	select {
	case err := <-done:
		q.cancel()
		return err
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
