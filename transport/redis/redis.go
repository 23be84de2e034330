// Package redis provides a Redis Streams transport. Each topic is a stream.
// Queue destinations read through a shared consumer group and delete
// entries once acked; topic destinations read the stream independently
// starting at the newest entry.
package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"github.com/drblury/msgkit/internal/runtime/jsoncodec"
	"github.com/drblury/msgkit/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "redis"

const (
	// DefaultGroup is the consumer group for queue destinations.
	DefaultGroup = "msgkit"

	// StreamPrefix namespaces the stream keys.
	StreamPrefix = "msgkit:"

	fieldUUID     = "uuid"
	fieldPayload  = "payload"
	fieldMetadata = "metadata"

	readCount = 10
	readBlock = time.Second
)

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("redis transport: closed")

// Client is the subset of go-redis the transport uses.
type Client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XDel(ctx context.Context, stream string, ids ...string) *redis.IntCmd
	XLen(ctx context.Context, stream string) *redis.IntCmd
	Close() error
}

// ClientFactory allows overriding the client creation for testing.
var ClientFactory = func(opts *redis.Options) Client {
	return redis.NewClient(opts)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RedisCapabilities)
}

// Build creates a new Redis Streams transport.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	opts, err := Options(cfg)
	if err != nil {
		return transport.Transport{}, err
	}

	group := cfg.GetConsumerGroup()
	if group == "" {
		group = DefaultGroup
	}

	t := New(ClientFactory(opts), Config{
		Group:    group,
		Consumer: consumerName(cfg),
		Topic:    transport.IsTopic(cfg),
	}, logger)

	return transport.Transport{
		Publisher:  t,
		Subscriber: t,
	}, nil
}

// Options accepts a redis:// URL or a bare host:port and applies the
// configured credentials and client name.
func Options(cfg transport.Config) (*redis.Options, error) {
	raw := cfg.GetURL()

	var opts *redis.Options
	if strings.HasPrefix(raw, "redis://") || strings.HasPrefix(raw, "rediss://") {
		parsed, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: raw}
	}

	if user := cfg.GetUsername(); user != "" {
		opts.Username = user
	}
	if pass := cfg.GetPassword(); pass != "" {
		opts.Password = pass
	}
	if id := cfg.GetClientID(); id != "" {
		opts.ClientName = id
	}
	return opts, nil
}

func consumerName(cfg transport.Config) string {
	if id := cfg.GetClientID(); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil {
		host = "msgkit"
	}
	return host + "-" + watermill.NewShortUUID()
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RedisCapabilities
}

// Config holds the stream settings.
type Config struct {
	Group    string
	Consumer string
	// Topic selects independent readers instead of the consumer group.
	Topic bool
}

// Transport implements Publisher and Subscriber on Redis Streams.
type Transport struct {
	client Client
	config Config
	logger watermill.LoggerAdapter

	closeOnce sync.Once
	closing   chan struct{}
	wg        sync.WaitGroup
}

// New wraps client.
func New(client Client, cfg Config, logger watermill.LoggerAdapter) *Transport {
	if cfg.Group == "" {
		cfg.Group = DefaultGroup
	}
	if cfg.Consumer == "" {
		cfg.Consumer = watermill.NewShortUUID()
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Transport{
		client:  client,
		config:  cfg,
		logger:  logger,
		closing: make(chan struct{}),
	}
}

func (t *Transport) isClosed() bool {
	select {
	case <-t.closing:
		return true
	default:
		return false
	}
}

// Stream returns the stream key for topic.
func Stream(topic string) string {
	return StreamPrefix + topic
}

// Publish appends messages to the topic stream.
func (t *Transport) Publish(topic string, messages ...*message.Message) error {
	if t.isClosed() {
		return ErrClosed
	}

	ctx := context.Background()
	for _, msg := range messages {
		values, err := encode(msg)
		if err != nil {
			return err
		}
		if err := t.client.XAdd(ctx, &redis.XAddArgs{Stream: Stream(topic), Values: values}).Err(); err != nil {
			return fmt.Errorf("xadd %s: %w", Stream(topic), err)
		}
	}
	return nil
}

// Subscribe starts reading the topic stream.
func (t *Transport) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if t.isClosed() {
		return nil, ErrClosed
	}

	stream := Stream(topic)
	if !t.config.Topic {
		err := t.client.XGroupCreateMkStream(ctx, stream, t.config.Group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return nil, fmt.Errorf("creating consumer group %s: %w", t.config.Group, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan *message.Message)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(out)
		defer cancel()

		go func() {
			select {
			case <-t.closing:
				cancel()
			case <-ctx.Done():
			}
		}()

		t.read(ctx, stream, out)
	}()

	return out, nil
}

func (t *Transport) read(ctx context.Context, stream string, out chan<- *message.Message) {
	lastID := "$"
	for ctx.Err() == nil {
		var (
			streams []redis.XStream
			err     error
		)
		if t.config.Topic {
			streams, err = t.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   readCount,
				Block:   readBlock,
			}).Result()
		} else {
			streams, err = t.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    t.config.Group,
				Consumer: t.config.Consumer,
				Streams:  []string{stream, ">"},
				Count:    readCount,
				Block:    readBlock,
			}).Result()
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Error("Failed to read stream", err, watermill.LogFields{"stream": stream})
			select {
			case <-ctx.Done():
				return
			case <-time.After(readBlock):
			}
			continue
		}

		for _, s := range streams {
			for _, entry := range s.Messages {
				if !t.deliver(ctx, stream, entry, out) {
					return
				}
				lastID = entry.ID
			}
		}
	}
}

func (t *Transport) deliver(ctx context.Context, stream string, entry redis.XMessage, out chan<- *message.Message) bool {
	for {
		msg := decode(entry)
		msg.SetContext(ctx)

		select {
		case out <- msg:
		case <-ctx.Done():
			return false
		}

		select {
		case <-msg.Acked():
			t.ack(stream, entry.ID)
			return true
		case <-msg.Nacked():
		case <-ctx.Done():
			return false
		}
	}
}

func (t *Transport) ack(stream, id string) {
	if t.config.Topic {
		return
	}
	ctx := context.Background()
	if err := t.client.XAck(ctx, stream, t.config.Group, id).Err(); err != nil {
		t.logger.Error("Failed to ack entry", err, watermill.LogFields{"stream": stream, "id": id})
		return
	}
	if err := t.client.XDel(ctx, stream, id).Err(); err != nil {
		t.logger.Error("Failed to delete entry", err, watermill.LogFields{"stream": stream, "id": id})
	}
}

// GetPendingCount returns the entries left in the topic stream.
func (t *Transport) GetPendingCount(topic string) (int64, error) {
	return t.client.XLen(context.Background(), Stream(topic)).Result()
}

// Close stops every subscription and closes the client.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closing)
		t.wg.Wait()
		err = t.client.Close()
	})
	return err
}

func encode(msg *message.Message) (map[string]any, error) {
	metadata, err := jsoncodec.Marshal(msg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return map[string]any{
		fieldUUID:     msg.UUID,
		fieldPayload:  string(msg.Payload),
		fieldMetadata: string(metadata),
	}, nil
}

func decode(entry redis.XMessage) *message.Message {
	uuid, _ := entry.Values[fieldUUID].(string)
	if uuid == "" {
		uuid = entry.ID
	}
	payload, _ := entry.Values[fieldPayload].(string)

	msg := message.NewMessage(uuid, []byte(payload))
	if raw, _ := entry.Values[fieldMetadata].(string); raw != "" {
		_ = jsoncodec.UnmarshalString(raw, &msg.Metadata)
	}
	return msg
}
