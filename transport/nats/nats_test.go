package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/msgkit/internal/runtime/config"
	"github.com/drblury/msgkit/transport"
)

func newConfig(kind string) *config.Config {
	cfg := config.New()
	cfg.Transport = TransportName
	cfg.URL = "nats://localhost:4222"
	cfg.DestinationKind = kind
	return cfg
}

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.NATSCapabilities, transport.GetCapabilities(TransportName))
	assert.Equal(t, transport.NATSCapabilities, Capabilities())
}

func TestConfigs(t *testing.T) {
	t.Run("queue uses queue group", func(t *testing.T) {
		pubCfg, subCfg := configs(newConfig(config.KindQueue))
		assert.Equal(t, "nats://localhost:4222", pubCfg.URL)
		assert.True(t, pubCfg.JetStream.Disabled)
		assert.True(t, subCfg.JetStream.Disabled)
		assert.Equal(t, DefaultQueueGroupPrefix, subCfg.QueueGroupPrefix)
	})

	t.Run("topic fans out", func(t *testing.T) {
		_, subCfg := configs(newConfig(config.KindTopic))
		assert.Empty(t, subCfg.QueueGroupPrefix)
	})
}

func TestConnectOptions(t *testing.T) {
	cfg := newConfig("")
	assert.Empty(t, ConnectOptions(cfg))

	cfg.ClientID = "receiver-1"
	cfg.Username = "app"
	cfg.Password = "secret"
	assert.Len(t, ConnectOptions(cfg), 2)
}

func TestBuild(t *testing.T) {
	restore := func() func() {
		pub, sub := PublisherFactory, SubscriberFactory
		return func() { PublisherFactory, SubscriberFactory = pub, sub }
	}

	t.Run("creates transport with mocked factories", func(t *testing.T) {
		defer restore()()

		mockPub := &mockPublisher{}
		mockSub := &mockSubscriber{}
		var gotURL string
		PublisherFactory = func(cfg wmnats.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
			gotURL = cfg.URL
			return mockPub, nil
		}
		SubscriberFactory = func(wmnats.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
			return mockSub, nil
		}

		tr, err := Build(context.Background(), newConfig(""), watermill.NopLogger{})
		require.NoError(t, err)
		assert.Same(t, mockPub, tr.Publisher)
		assert.Same(t, mockSub, tr.Subscriber)
		assert.Equal(t, "nats://localhost:4222", gotURL)
	})

	t.Run("returns error when publisher factory fails", func(t *testing.T) {
		defer restore()()

		PublisherFactory = func(wmnats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		_, err := Build(context.Background(), newConfig(""), watermill.NopLogger{})
		assert.ErrorContains(t, err, "publisher error")
	})

	t.Run("closes publisher when subscriber factory fails", func(t *testing.T) {
		defer restore()()

		mockPub := &mockPublisher{}
		PublisherFactory = func(wmnats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return mockPub, nil
		}
		SubscriberFactory = func(wmnats.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		}

		_, err := Build(context.Background(), newConfig(""), watermill.NopLogger{})
		assert.ErrorContains(t, err, "subscriber error")
		assert.True(t, mockPub.closed)
	})
}

type mockPublisher struct{ closed bool }

func (m *mockPublisher) Publish(string, ...*message.Message) error { return nil }
func (m *mockPublisher) Close() error                              { m.closed = true; return nil }

type mockSubscriber struct{}

func (m *mockSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}
func (m *mockSubscriber) Close() error { return nil }
