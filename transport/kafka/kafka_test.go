package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/msgkit/internal/runtime/config"
	"github.com/drblury/msgkit/transport"
)

func newConfig(kind string) *config.Config {
	cfg := config.New()
	cfg.Transport = TransportName
	cfg.Brokers = []string{"localhost:9092"}
	cfg.DestinationKind = kind
	return cfg
}

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.KafkaCapabilities, transport.GetCapabilities(TransportName))
	assert.Equal(t, transport.KafkaCapabilities, Capabilities())
}

func TestConfigs(t *testing.T) {
	t.Run("queue defaults consumer group", func(t *testing.T) {
		pubCfg, subCfg := configs(newConfig(config.KindQueue))
		assert.Equal(t, []string{"localhost:9092"}, pubCfg.Brokers)
		assert.Equal(t, []string{"localhost:9092"}, subCfg.Brokers)
		assert.Equal(t, DefaultConsumerGroup, subCfg.ConsumerGroup)
	})

	t.Run("queue keeps configured group", func(t *testing.T) {
		cfg := newConfig("")
		cfg.ConsumerGroup = "billing"
		_, subCfg := configs(cfg)
		assert.Equal(t, "billing", subCfg.ConsumerGroup)
	})

	t.Run("topic reads without group", func(t *testing.T) {
		cfg := newConfig(config.KindTopic)
		cfg.ConsumerGroup = "ignored"
		_, subCfg := configs(cfg)
		assert.Empty(t, subCfg.ConsumerGroup)
	})

	t.Run("client id and credentials", func(t *testing.T) {
		cfg := newConfig("")
		cfg.ClientID = "sender-1"
		cfg.Username = "app"
		cfg.Password = "secret"

		pubCfg, subCfg := configs(cfg)
		for _, sc := range []*sarama.Config{pubCfg.OverwriteSaramaConfig, subCfg.OverwriteSaramaConfig} {
			assert.Equal(t, "sender-1", sc.ClientID)
			assert.True(t, sc.Net.SASL.Enable)
			assert.Equal(t, "app", sc.Net.SASL.User)
			assert.Equal(t, "secret", sc.Net.SASL.Password)
		}
	})

	t.Run("no credentials leaves SASL off", func(t *testing.T) {
		pubCfg, _ := configs(newConfig(""))
		assert.False(t, pubCfg.OverwriteSaramaConfig.Net.SASL.Enable)
	})
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
		PublisherFactory = func(kafka.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return mockPub, nil
		}
		SubscriberFactory = func(kafka.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
			return mockSub, nil
		}

		tr, err := Build(context.Background(), newConfig(""), watermill.NopLogger{})
		require.NoError(t, err)
		assert.Same(t, mockPub, tr.Publisher)
		assert.Same(t, mockSub, tr.Subscriber)
	})

	t.Run("returns error when publisher factory fails", func(t *testing.T) {
		defer restore()()

		PublisherFactory = func(kafka.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		_, err := Build(context.Background(), newConfig(""), watermill.NopLogger{})
		assert.ErrorContains(t, err, "publisher error")
	})

	t.Run("closes publisher when subscriber factory fails", func(t *testing.T) {
		defer restore()()

		mockPub := &mockPublisher{}
		PublisherFactory = func(kafka.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return mockPub, nil
		}
		SubscriberFactory = func(kafka.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
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
