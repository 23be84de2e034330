// Package io provides a JSON-lines file transport. Every published message
// is appended as one line and subscribers follow the file from the start.
package io

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/msgkit/internal/runtime/jsoncodec"
	"github.com/drblury/msgkit/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "io"

// DefaultFilePath is used when the connection factory has no url.
const DefaultFilePath = "messages.log"

// PollInterval is how long a subscriber waits at end of file.
var PollInterval = 50 * time.Millisecond

// ErrClosed is returned by operations on a closed publisher or subscriber.
var ErrClosed = errors.New("io transport: closed")

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return NewPublisher(filePath, logger), nil
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return NewSubscriber(filePath, logger), nil
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.IOCapabilities)
}

// Build creates a new I/O transport. The connection factory url is the file path.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	filePath := cfg.GetURL()
	if filePath == "" {
		filePath = DefaultFilePath
	}

	pub, err := PublisherFactory(filePath, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	sub, err := SubscriberFactory(filePath, logger)
	if err != nil {
		_ = pub.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.IOCapabilities
}

// record is one line of the message file.
type record struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

// Publisher appends messages to a file.
type Publisher struct {
	filePath string
	logger   watermill.LoggerAdapter

	mu     sync.Mutex
	closed bool
}

// NewPublisher returns a publisher appending to filePath.
func NewPublisher(filePath string, logger watermill.LoggerAdapter) *Publisher {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Publisher{filePath: filePath, logger: logger}
}

// Publish appends messages to the file. The batch is written with a single
// write so concurrent readers never observe half of it.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	var buf []byte
	for _, msg := range messages {
		line, err := jsoncodec.MarshalLine(record{
			UUID:     msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Payload:  msg.Payload,
		})
		if err != nil {
			return err
		}
		buf = append(buf, line...)
	}

	f, err := os.OpenFile(p.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Close closes the publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Subscriber follows a message file.
type Subscriber struct {
	filePath string
	logger   watermill.LoggerAdapter

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSubscriber returns a subscriber reading filePath.
func NewSubscriber(filePath string, logger watermill.LoggerAdapter) *Subscriber {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Subscriber{filePath: filePath, logger: logger, closing: make(chan struct{})}
}

// Subscribe streams every record for topic, starting at the beginning of
// the file. The next record is only read once the previous one is acked.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	select {
	case <-s.closing:
		return nil, ErrClosed
	default:
	}

	f, err := os.OpenFile(s.filePath, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan *message.Message)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		defer cancel()
		defer f.Close()

		go func() {
			select {
			case <-s.closing:
				cancel()
			case <-ctx.Done():
			}
		}()

		s.follow(ctx, f, topic, out)
	}()

	return out, nil
}

func (s *Subscriber) follow(ctx context.Context, f *os.File, topic string, out chan<- *message.Message) {
	reader := bufio.NewReader(f)
	var partial []byte

	for {
		chunk, err := reader.ReadBytes('\n')
		partial = append(partial, chunk...)

		if errors.Is(err, io.EOF) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(PollInterval):
			}
			continue
		}
		if err != nil {
			s.logger.Error("Failed to read message file", err, watermill.LogFields{"path": s.filePath})
			return
		}

		line := partial
		partial = nil
		if !s.deliver(ctx, out, line, topic) {
			return
		}
	}
}

func (s *Subscriber) deliver(ctx context.Context, out chan<- *message.Message, line []byte, topic string) bool {
	var rec record
	if err := jsoncodec.Unmarshal(line, &rec); err != nil {
		s.logger.Error("Skipping malformed record", err, watermill.LogFields{"path": s.filePath})
		return true
	}
	if rec.Topic != topic {
		return true
	}

	for {
		msg := message.NewMessage(rec.UUID, rec.Payload)
		if rec.Metadata != nil {
			msg.Metadata = rec.Metadata
		}
		msg.SetContext(ctx)

		select {
		case out <- msg:
		case <-ctx.Done():
			return false
		}

		select {
		case <-msg.Acked():
			return true
		case <-msg.Nacked():
			s.logger.Debug("Message nacked, redelivering", watermill.LogFields{"uuid": msg.UUID})
		case <-ctx.Done():
			return false
		}
	}
}

// Close stops every subscription and waits for them to finish.
func (s *Subscriber) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	s.wg.Wait()
	return nil
}
