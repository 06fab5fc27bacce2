package activity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"studygenie/internal/platform/metrics"
)

// Publisher captures activity events. It is append-only and writes to a Store
// plus any extra sinks. In async mode a Worker drains a bounded buffer and a
// full buffer drops the event rather than blocking the caller.
type Publisher struct {
	store   Store
	sinks   []Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time

	bufferSize int
	buffer     chan Event
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	closed     bool
}

type Option func(*Publisher)

// WithAsyncBuffer enables async mode with a buffer of size events.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.bufferSize = size
	}
}

// WithSink adds a sink that receives every event after the store.
func WithSink(sink Sink) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(p *Publisher) {
		if clock != nil {
			p.clock = clock
		}
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.buffer = make(chan Event, p.bufferSize)
		p.done = make(chan struct{})
		worker := NewWorker(p.buffer, p.logger, p.allSinks()...)
		go func() {
			defer close(p.done)
			_ = worker.Run(context.Background())
		}()
	}
	return p
}

func (p *Publisher) allSinks() []Sink {
	return append([]Sink{p.store}, p.sinks...)
}

// Emit records event. Sync mode returns sink errors; async mode only fails
// after Close.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.clock()
	}
	if p.buffer == nil {
		var errs []error
		for _, sink := range p.allSinks() {
			if err := sink.Append(ctx, event); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.New("activity publisher closed")
	}
	select {
	case p.buffer <- event:
	default:
		p.metrics.IncrementActivityDropped()
		p.logger.WarnContext(ctx, "activity buffer full, dropping event", "action", event.Action)
	}
	return nil
}

// Record emits and logs instead of returning the error, for callers whose
// outcome must not depend on activity delivery.
func (p *Publisher) Record(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if err := p.Emit(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "failed to record activity", "error", err, "action", event.Action)
	}
}

// List returns the events the store kept for userID, oldest first.
func (p *Publisher) List(ctx context.Context, userID string) ([]Event, error) {
	return p.store.ListByUser(ctx, userID)
}

// Close stops accepting events and, in async mode, waits for the buffer to drain.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		if p.buffer != nil {
			close(p.buffer)
			<-p.done
		}
	})
}
