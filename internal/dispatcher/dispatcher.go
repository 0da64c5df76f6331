package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrUnknownCommand is returned for a command with no registered handler.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned by Dispatch when a non-blocking inbox is full.
	ErrQueueFull = errors.New("queue full")
)

// Event represents an inbound command: a server push, a user input or a
// lifecycle request.
type Event struct {
	Command   string
	Payload   []byte
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures the dispatcher inbox or a handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered sets the inbox capacity. Only meaningful for New.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes Dispatch block when the inbox is full instead of dropping.
// Only meaningful for New.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler. Only meaningful for Register.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

const defaultInboxSize = 256

type result struct {
	value any
	err   error
}

type job struct {
	event   Event
	handler HandlerFunc
	reply   chan result
}

// Dispatcher routes events to registered handlers. Every event goes through
// one inbox drained by one goroutine, so handlers never run concurrently
// and observe events in arrival order.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   Logger

	inbox    chan job
	blocking bool

	startOnce sync.Once
	done      chan struct{}

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger, opts ...Option) (*Dispatcher, error) {
	cfg := &config{bufferSize: defaultInboxSize}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.bufferSize < 1 {
		cfg.bufferSize = 1
	}

	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
		inbox:    make(chan job, cfg.bufferSize),
		blocking: cfg.blocking,
		done:     make(chan struct{}),
	}

	// Get meter from global OTel provider (returns no-op if not configured)
	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(d.queueSize, int64(len(d.inbox)),
				metric.WithAttributes(attribute.String("queue", "inbox")))
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given command with optional configuration.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h
	if cfg.logged {
		handler = d.withLogging(command, handler)
	}

	d.mu.Lock()
	d.handlers[command] = handler
	d.mu.Unlock()
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// Len returns the number of events waiting in the inbox.
func (d *Dispatcher) Len() int {
	return len(d.inbox)
}

// Start launches the goroutine draining the inbox. It stops when ctx is
// cancelled; Done is closed afterwards. Calling Start again is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		go d.run(ctx)
	})
}

// Done is closed once the inbox goroutine has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.inbox:
			value, err := j.handler(j.event)
			d.processed.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("command", j.event.Command)))
			if j.reply != nil {
				j.reply <- result{value: value, err: err}
			}
		}
	}
}

func (d *Dispatcher) lookup(command string) (HandlerFunc, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
	return h, nil
}

// Dispatch enqueues an event without waiting for it to be handled.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, err := d.lookup(e.Command)
	if err != nil {
		return nil, err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	j := job{event: e, handler: h}

	if d.blocking {
		d.inbox <- j
		return "queued", nil
	}

	select {
	case d.inbox <- j:
		return "queued", nil
	default:
		d.dropped.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("command", e.Command)))
		return nil, fmt.Errorf("%w: %s", ErrQueueFull, e.Command)
	}
}

// Enqueue adds an event to the inbox without waiting for its result. Unlike
// Dispatch it never drops: when the inbox is full it waits for room until
// ctx is done.
func (d *Dispatcher) Enqueue(ctx context.Context, e Event) error {
	h, err := d.lookup(e.Command)
	if err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	select {
	case d.inbox <- job{event: e, handler: h}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DispatchWait enqueues an event and waits for the handler's result.
// Events queued earlier are handled first.
func (d *Dispatcher) DispatchWait(ctx context.Context, e Event) (any, error) {
	h, err := d.lookup(e.Command)
	if err != nil {
		return nil, err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	j := job{event: e, handler: h, reply: make(chan result, 1)}

	select {
	case d.inbox <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-j.reply:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "bytes", len(e.Payload))

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}

		return result, err
	}
}
