// Package listener drives a subscription through its lifecycle and hands each
// delivery to a pluggable Strategy.
package listener

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/msgkit/internal/runtime/errors"
	loggingpkg "github.com/drblury/msgkit/internal/runtime/logging"
	metadatapkg "github.com/drblury/msgkit/internal/runtime/metadata"
)

// State is the lifecycle position of a Controller. It only moves forward.
type State int32

const (
	StateNotStarted State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// StopReason tells why the delivery loop finished.
type StopReason int32

const (
	StopNone StopReason = iota
	StopMaxMessages
	StopSentinel
	StopRequested
	StopSubscriptionClosed
)

func (r StopReason) String() string {
	switch r {
	case StopMaxMessages:
		return "max_messages"
	case StopSentinel:
		return "sentinel"
	case StopRequested:
		return "requested"
	case StopSubscriptionClosed:
		return "subscription_closed"
	}
	return "none"
}

// Observer is notified after every delivery.
type Observer interface {
	ObserveDelivery(kind string, err error)
}

// Option customises a Controller.
type Option func(*Controller)

// WithMaxMessages stops the controller after n deliveries. Zero means no limit.
func WithMaxMessages(n int64) Option {
	return func(c *Controller) {
		if n > 0 {
			c.max = n
		}
	}
}

// WithSentinel stops the controller when a text payload equals s, ignoring case.
func WithSentinel(s string) Option {
	return func(c *Controller) { c.sentinel = s }
}

// WithMiddlewares wraps strategy handling. The first middleware is outermost.
func WithMiddlewares(mws ...message.HandlerMiddleware) Option {
	return func(c *Controller) {
		for _, mw := range mws {
			if mw != nil {
				c.middlewares = append(c.middlewares, mw)
			}
		}
	}
}

// WithMetrics registers a delivery observer.
func WithMetrics(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// Controller owns one subscription and a single delivery goroutine.
type Controller struct {
	subscriber  message.Subscriber
	topic       string
	strategy    Strategy
	logger      loggingpkg.ServiceLogger
	max         int64
	sentinel    string
	middlewares []message.HandlerMiddleware
	observer    Observer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	state  atomic.Int32
	reason atomic.Int32
	count  atomic.Int64
}

// New creates a controller in StateNotStarted. A nil subscriber is accepted
// here and reported by Start.
func New(subscriber message.Subscriber, topic string, strategy Strategy, logger loggingpkg.ServiceLogger, opts ...Option) (*Controller, error) {
	if strategy == nil {
		return nil, errspkg.ErrStrategyRequired
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if logger == nil {
		logger = loggingpkg.Nop()
	}
	c := &Controller{
		subscriber: subscriber,
		topic:      topic,
		strategy:   strategy,
		logger:     logger.With(loggingpkg.LogFields{"topic": topic}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start subscribes and launches the delivery loop. Calling it while running
// is a no-op. Cancelling ctx later stops the controller.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateRunning, StateStopping:
		return nil
	case StateStopped:
		return errspkg.ErrListenerStopped
	}

	if c.subscriber == nil {
		c.logger.Error("Cannot start listener without a connection", errspkg.ErrSubscriberRequired, nil)
		return errspkg.ErrSubscriberRequired
	}

	subCtx, cancel := context.WithCancel(ctx)
	messages, err := c.subscriber.Subscribe(subCtx, c.topic)
	if err != nil {
		cancel()
		return &errspkg.TransportError{Op: "subscribe", Topic: c.topic, Err: err}
	}

	c.cancel = cancel
	c.state.Store(int32(StateRunning))
	c.logger.Info("Listener started", nil)

	go c.loop(subCtx, messages, c.handler())
	return nil
}

// Stop cancels the subscription and waits for the in-flight delivery to
// finish. It must not be called from inside a Strategy.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.State() == StateNotStarted {
		c.mu.Unlock()
		return
	}
	if c.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		c.setReason(StopRequested)
		c.cancel()
	}
	c.mu.Unlock()
	<-c.done
}

// Wait blocks until the controller is stopped or ctx is done.
func (c *Controller) Wait(ctx context.Context) (StopReason, error) {
	select {
	case <-c.done:
		return c.Reason(), nil
	case <-ctx.Done():
		return StopNone, ctx.Err()
	}
}

// Done is closed once the controller reaches StateStopped.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) IsRunning() bool { return c.State() == StateRunning }

func (c *Controller) State() State { return State(c.state.Load()) }

// Count returns the number of deliveries seen so far.
func (c *Controller) Count() int64 { return c.count.Load() }

func (c *Controller) Reason() StopReason { return StopReason(c.reason.Load()) }

func (c *Controller) Topic() string { return c.topic }

func (c *Controller) setReason(r StopReason) {
	c.reason.CompareAndSwap(int32(StopNone), int32(r))
}

func (c *Controller) loop(ctx context.Context, messages <-chan *message.Message, handle message.HandlerFunc) {
	defer func() {
		if err := c.strategy.Close(); err != nil {
			c.logger.Error("Failed to close listener output", err, nil)
		}
		c.state.Store(int32(StateStopped))
		c.logger.Info("Listener stopped", loggingpkg.LogFields{
			"reason":   c.Reason().String(),
			"received": c.Count(),
		})
		close(c.done)
	}()

	for {
		select {
		case <-ctx.Done():
			c.finish(StopRequested)
			return
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					c.finish(StopRequested)
				} else {
					c.finish(StopSubscriptionClosed)
				}
				return
			}
			if reason := c.deliver(msg, handle); reason != StopNone {
				c.finish(reason)
				return
			}
		}
	}
}

func (c *Controller) finish(reason StopReason) {
	c.setReason(reason)
	c.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()
}

// deliver handles one message and reports whether a stop trigger fired. The
// message is acknowledged whatever the handler returns.
func (c *Controller) deliver(msg *message.Message, handle message.HandlerFunc) StopReason {
	n := c.count.Add(1)
	kind := Classify(msg)

	_, err := handle(msg)
	if err != nil {
		c.logger.Error("Failed to handle message", err, loggingpkg.LogFields{
			"message_uuid": msg.UUID,
			"kind":         kind.String(),
		})
	}
	if c.observer != nil {
		c.observer.ObserveDelivery(kind.String(), err)
	}
	msg.Ack()

	if c.max > 0 && n >= c.max {
		return StopMaxMessages
	}
	if c.sentinel != "" && kind == PayloadText && strings.EqualFold(string(msg.Payload), c.sentinel) {
		return StopSentinel
	}
	return StopNone
}

func (c *Controller) handler() message.HandlerFunc {
	h := func(msg *message.Message) ([]*message.Message, error) {
		return nil, c.strategy.Handle(msg.Context(), NewDelivery(msg, c.count.Load()))
	}
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// PayloadKind is the shape of a delivered payload.
type PayloadKind int

const (
	PayloadText PayloadKind = iota
	PayloadBytes
	PayloadOther
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadText:
		return "text"
	case PayloadBytes:
		return "bytes"
	}
	return "other"
}

// Classify derives the payload kind from the content_type header. Messages
// without one are treated as text.
func Classify(msg *message.Message) PayloadKind {
	ct := strings.ToLower(strings.TrimSpace(metadatapkg.FromWatermill(msg.Metadata).Get(metadatapkg.KeyContentType)))
	switch {
	case ct == "" || strings.HasPrefix(ct, "text/"):
		return PayloadText
	case strings.HasPrefix(ct, metadatapkg.ContentTypeBinary):
		return PayloadBytes
	}
	return PayloadOther
}
