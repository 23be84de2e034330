// Package producer turns payloads into outbound messages and publishes them
// on a destination.
package producer

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/msgkit/internal/runtime/envelope"
	errspkg "github.com/drblury/msgkit/internal/runtime/errors"
	loggingpkg "github.com/drblury/msgkit/internal/runtime/logging"
	metadatapkg "github.com/drblury/msgkit/internal/runtime/metadata"
)

const tracerName = "github.com/drblury/msgkit/producer"

// Observer is notified about every publish attempt.
type Observer interface {
	ObserveSend(messageType string, err error, elapsed time.Duration)
}

// TextSender is the capability the tailer and blaster need from a Pipeline.
type TextSender interface {
	SendText(ctx context.Context, text string, messageType envelope.MessageType) error
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for per-message debug output.
func WithLogger(logger loggingpkg.ServiceLogger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithObserver registers a send observer, typically the Prometheus metrics.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// Pipeline publishes enveloped payloads on one destination. It never retries;
// retry policy belongs to the broker client.
type Pipeline struct {
	publisher  message.Publisher
	topic      string
	provenance envelope.Provenance
	logger     loggingpkg.ServiceLogger
	observer   Observer
	tracer     trace.Tracer
}

// New builds a Pipeline publishing on topic.
func New(publisher message.Publisher, topic string, provenance envelope.Provenance, opts ...Option) (*Pipeline, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	p := &Pipeline{
		publisher:  publisher,
		topic:      topic,
		provenance: provenance,
		logger:     loggingpkg.Nop(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Topic returns the destination the pipeline publishes on.
func (p *Pipeline) Topic() string { return p.topic }

// Provenance returns the identity stamped on every message.
func (p *Pipeline) Provenance() envelope.Provenance { return p.provenance }

// Send builds an envelope for payload and publishes it. Broker failures are
// returned as *errors.SendError.
func (p *Pipeline) Send(ctx context.Context, payload envelope.Payload, messageType envelope.MessageType) error {
	out := p.provenance.Build(payload, messageType)

	ctx, span := p.tracer.Start(ctx, "msgkit.send",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", p.topic),
			attribute.String("messaging.message.id", out.UUID()),
			attribute.String("msgkit.message.type", string(messageType)),
			attribute.Int("messaging.message.body.size", payload.Len()),
		),
	)
	defer span.End()

	msg := out.ToWatermill()
	msg.SetContext(ctx)

	start := time.Now()
	err := p.publisher.Publish(p.topic, msg)
	if p.observer != nil {
		p.observer.ObserveSend(string(messageType), err, time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return errspkg.NewSendError(p.topic, out.UUID(), err)
	}

	p.logger.Debug("Message sent", loggingpkg.LogFields{
		"topic":        p.topic,
		"message_uuid": out.UUID(),
		"type":         string(messageType),
		"size":         msg.Metadata.Get(metadatapkg.KeySize),
	})
	return nil
}

// SendText is Send for a text payload.
func (p *Pipeline) SendText(ctx context.Context, text string, messageType envelope.MessageType) error {
	return p.Send(ctx, envelope.Text(text), messageType)
}
