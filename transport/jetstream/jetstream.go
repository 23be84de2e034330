// Package jetstream provides a NATS JetStream transport built directly on
// nats.go. Queue destinations share one durable pull consumer per topic.
// Topic destinations get an ephemeral consumer per subscription that only
// sees messages published after it was created.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/drblury/msgkit/transport"
	natstransport "github.com/drblury/msgkit/transport/nats"
)

// TransportName is the name used to register this transport.
const TransportName = "nats-jetstream"

const (
	// DefaultStreamName holds every msgkit subject.
	DefaultStreamName = "MSGKIT"

	// DefaultMaxDeliver is the default max delivery attempts.
	DefaultMaxDeliver = 3

	// DefaultAckWait is the default ack wait timeout.
	DefaultAckWait = 30 * time.Second

	// DefaultMaxAge bounds how long the stream retains messages.
	DefaultMaxAge = 7 * 24 * time.Hour

	// HeaderUUID carries the watermill message UUID.
	HeaderUUID = "Msgkit-Uuid"

	fetchBatch = 10
	fetchWait  = time.Second
)

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("jetstream: transport is closed")

// Connect allows overriding the connection for testing.
var Connect = func(url string, options ...nats.Option) (*nats.Conn, error) {
	return nats.Connect(url, options...)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSJetStreamCapabilities)
}

// Build creates a new NATS JetStream transport.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	t, err := New(Config{
		URL:     cfg.GetURL(),
		Options: natstransport.ConnectOptions(cfg),
		Topic:   transport.IsTopic(cfg),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  t,
		Subscriber: t,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}

// Config holds NATS JetStream-specific configuration.
type Config struct {
	// URL is the NATS server URL.
	URL string

	// Options are passed to nats.Connect.
	Options []nats.Option

	// StreamName is the JetStream stream to use. Defaults to DefaultStreamName.
	StreamName string

	// Topic selects broadcast consumers instead of a shared durable one.
	Topic bool

	MaxDeliver int
	AckWait    time.Duration

	// Replicas is the number of stream replicas (for clustering).
	Replicas int
}

func (c Config) withDefaults() Config {
	if c.StreamName == "" {
		c.StreamName = DefaultStreamName
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = DefaultMaxDeliver
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	return c
}

// Transport implements Publisher and Subscriber for NATS JetStream.
type Transport struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config Config
	logger watermill.LoggerAdapter

	subMu         sync.Mutex
	subscriptions []*nats.Subscription

	closeOnce sync.Once
	closing   chan struct{}
	wg        sync.WaitGroup
}

// New connects to NATS and makes sure the stream exists.
func New(cfg Config, logger watermill.LoggerAdapter) (*Transport, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	nc, err := Connect(cfg.URL, cfg.Options...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	t := &Transport{
		nc:      nc,
		js:      js,
		config:  cfg,
		logger:  logger,
		closing: make(chan struct{}),
	}

	if err := t.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}

	return t, nil
}

func (t *Transport) streamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:      t.config.StreamName,
		Subjects:  []string{t.config.StreamName + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    DefaultMaxAge,
		Replicas:  t.config.Replicas,
	}
}

func (t *Transport) ensureStream() error {
	streamCfg := t.streamConfig()
	if _, err := t.js.AddStream(streamCfg); err != nil {
		if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return fmt.Errorf("creating stream %s: %w", streamCfg.Name, err)
		}
		if _, err := t.js.UpdateStream(streamCfg); err != nil {
			t.logger.Info("Using existing JetStream stream", watermill.LogFields{
				"stream": streamCfg.Name,
				"error":  err.Error(),
			})
		}
	}
	return nil
}

func (t *Transport) isClosed() bool {
	select {
	case <-t.closing:
		return true
	default:
		return false
	}
}

// Publish stores messages in the stream and waits for the server ack.
func (t *Transport) Publish(topic string, messages ...*message.Message) error {
	if t.isClosed() {
		return ErrClosed
	}

	subject := t.subject(topic)
	for _, msg := range messages {
		if _, err := t.js.PublishMsg(toNATS(subject, msg)); err != nil {
			return fmt.Errorf("publishing to %s: %w", subject, err)
		}
	}
	return nil
}

// Subscribe creates a pull consumer for topic and streams its messages.
func (t *Transport) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if t.isClosed() {
		return nil, ErrClosed
	}

	subject := t.subject(topic)
	var (
		sub *nats.Subscription
		err error
	)
	if t.config.Topic {
		sub, err = t.js.PullSubscribe(subject, "",
			nats.DeliverNew(),
			nats.AckExplicit(),
			nats.MaxDeliver(t.config.MaxDeliver),
			nats.AckWait(t.config.AckWait),
		)
	} else {
		sub, err = t.js.PullSubscribe(subject, t.durable(topic),
			nats.DeliverAll(),
			nats.AckExplicit(),
			nats.MaxDeliver(t.config.MaxDeliver),
			nats.AckWait(t.config.AckWait),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	t.subMu.Lock()
	t.subscriptions = append(t.subscriptions, sub)
	t.subMu.Unlock()

	output := make(chan *message.Message)
	t.wg.Add(1)
	go t.fetch(ctx, sub, output, topic)

	return output, nil
}

func (t *Transport) fetch(ctx context.Context, sub *nats.Subscription, output chan<- *message.Message, topic string) {
	defer t.wg.Done()
	defer close(output)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.closing:
			return
		default:
		}

		msgs, err := sub.Fetch(fetchBatch, nats.MaxWait(fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return
			}
			t.logger.Error("Failed to fetch messages", err, watermill.LogFields{"topic": topic})
			continue
		}

		for _, natsMsg := range msgs {
			if !t.deliver(ctx, natsMsg, output) {
				return
			}
		}
	}
}

func (t *Transport) deliver(ctx context.Context, natsMsg *nats.Msg, output chan<- *message.Message) bool {
	msg := fromNATS(natsMsg)
	msg.SetContext(ctx)

	select {
	case output <- msg:
	case <-ctx.Done():
		return false
	case <-t.closing:
		return false
	}

	select {
	case <-msg.Acked():
		if err := natsMsg.Ack(); err != nil {
			t.logger.Error("Failed to ack", err, watermill.LogFields{"uuid": msg.UUID})
		}
	case <-msg.Nacked():
		if err := natsMsg.Nak(); err != nil {
			t.logger.Error("Failed to nak", err, watermill.LogFields{"uuid": msg.UUID})
		}
	case <-ctx.Done():
		return false
	case <-t.closing:
		return false
	}
	return true
}

// GetPendingCount reports the messages the shared consumer of topic has not
// yet received.
func (t *Transport) GetPendingCount(topic string) (int64, error) {
	info, err := t.js.ConsumerInfo(t.config.StreamName, t.durable(topic))
	if err != nil {
		return 0, err
	}
	return int64(info.NumPending) + int64(info.NumAckPending), nil
}

func (t *Transport) subject(topic string) string {
	return t.config.StreamName + "." + topic
}

// durable names the shared consumer. Durable names may not contain dots.
func (t *Transport) durable(topic string) string {
	return "msgkit_" + strings.NewReplacer(".", "_", "*", "_", ">", "_").Replace(topic)
}

// Close stops every subscription and closes the connection.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closing)

		t.subMu.Lock()
		for _, sub := range t.subscriptions {
			_ = sub.Unsubscribe()
		}
		t.subscriptions = nil
		t.subMu.Unlock()

		t.wg.Wait()
		t.nc.Close()
	})
	return nil
}

func toNATS(subject string, msg *message.Message) *nats.Msg {
	headers := nats.Header{}
	for k, v := range msg.Metadata {
		headers.Set(k, v)
	}
	headers.Set(HeaderUUID, msg.UUID)

	return &nats.Msg{
		Subject: subject,
		Data:    msg.Payload,
		Header:  headers,
	}
}

func fromNATS(natsMsg *nats.Msg) *message.Message {
	uuid := natsMsg.Header.Get(HeaderUUID)
	if uuid == "" {
		uuid = watermill.NewUUID()
	}

	msg := message.NewMessage(uuid, natsMsg.Data)
	for k, v := range natsMsg.Header {
		if k == HeaderUUID || len(v) == 0 {
			continue
		}
		msg.Metadata.Set(k, v[0])
	}
	return msg
}
