package events

import (
	"context"
	"errors"
	"sync"

	"goa.design/parley/runtime/dialog/telemetry"
)

// Mode selects how the bus delivers events to handlers.
type Mode string

const (
	// Sync delivers events serially on the emitting goroutine.
	Sync Mode = "sync"
	// Async delivers events through a single worker goroutine in FIFO order.
	Async Mode = "async"
)

type (
	// Handler processes one event. A returned error is logged and never
	// stops delivery to other handlers.
	Handler func(ctx context.Context, event Event) error

	// Subscription is an active handler registration. Close is idempotent.
	Subscription interface {
		// Close removes the handler from the bus.
		Close() error
	}

	// Options configures a bus.
	Options struct {
		// Mode selects sync or async delivery. Defaults to Sync.
		Mode Mode
		// HistorySize bounds the event ring. Defaults to 100.
		HistorySize int
		// QueueSize bounds the async FIFO. Defaults to 256.
		QueueSize int
		// Logger reports handler failures. Defaults to a noop logger.
		Logger telemetry.Logger
	}

	// Bus publishes turn lifecycle events to registered handlers. In both
	// modes handlers observe events in emission order; in async mode they
	// run on the worker goroutine, not the emitter's.
	Bus struct {
		mode   Mode
		logger telemetry.Logger

		mu      sync.RWMutex
		subs    []*subscription
		history *ring
		stopped bool

		queue   chan Event
		done    chan struct{}
		drained chan struct{}
	}

	subscription struct {
		bus  *Bus
		kind Kind
		all  bool
		h    Handler
		once sync.Once
	}
)

// NewBus builds a bus and, in async mode, starts its worker.
func NewBus(opts Options) *Bus {
	mode := opts.Mode
	if mode == "" {
		mode = Sync
	}
	historySize := opts.HistorySize
	if historySize <= 0 {
		historySize = 100
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	b := &Bus{
		mode:    mode,
		logger:  logger,
		history: newRing(historySize),
	}
	if mode == Async {
		b.queue = make(chan Event, queueSize)
		b.done = make(chan struct{})
		b.drained = make(chan struct{})
		go b.work()
	}
	return b
}

// Subscribe registers a handler for one event kind.
func (b *Bus) Subscribe(kind Kind, h Handler) (Subscription, error) {
	return b.register(kind, false, h)
}

// SubscribeAll registers a handler for every event kind.
func (b *Bus) SubscribeAll(h Handler) (Subscription, error) {
	return b.register("", true, h)
}

func (b *Bus) register(kind Kind, all bool, h Handler) (Subscription, error) {
	if h == nil {
		return nil, errors.New("handler is required")
	}
	s := &subscription{bus: b, kind: kind, all: all, h: h}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s, nil
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		b := s.bus
		b.mu.Lock()
		for i, sub := range b.subs {
			if sub == s {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
	})
	return nil
}

// Emit records the event in history and delivers it to matching handlers.
// After Stop it is a no-op. In async mode the event is delivered later by
// the worker and the passed context is not forwarded to handlers.
func (b *Bus) Emit(ctx context.Context, e Event) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.history.add(e)
	b.mu.Unlock()

	if b.mode == Sync {
		b.dispatch(ctx, e)
		return
	}
	select {
	case b.queue <- e:
	case <-b.done:
	}
}

func (b *Bus) work() {
	ctx := context.Background()
	for {
		select {
		case e := <-b.queue:
			b.dispatch(ctx, e)
		case <-b.done:
			for {
				select {
				case e := <-b.queue:
					b.dispatch(ctx, e)
				default:
					close(b.drained)
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.all || s.kind == e.Kind {
			handlers = append(handlers, s.h)
		}
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		b.call(ctx, h, e)
	}
}

// call shields the bus from handler errors and panics so one handler cannot
// stop delivery to the rest.
func (b *Bus) call(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(ctx, "event handler panicked", "kind", string(e.Kind), "panic", r)
		}
	}()
	if err := h(ctx, e); err != nil {
		b.logger.Warn(ctx, "event handler failed", "kind", string(e.Kind), "err", err)
	}
}

// History returns recorded events oldest first. A non-empty kind filters by
// kind; a positive limit keeps only the most recent matches.
func (b *Bus) History(kind Kind, limit int) []Event {
	b.mu.RLock()
	all := b.history.list()
	b.mu.RUnlock()
	out := all
	if kind != "" {
		out = make([]Event, 0, len(all))
		for _, e := range all {
			if e.Kind == kind {
				out = append(out, e)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// ClearHistory drops all recorded events.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	b.history.clear()
	b.mu.Unlock()
}

// Stop makes further emits no-ops and, in async mode, waits for the worker
// to drain the queue. The context bounds the wait.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.mu.Unlock()

	if b.mode == Sync {
		return nil
	}
	close(b.done)
	select {
	case <-b.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
