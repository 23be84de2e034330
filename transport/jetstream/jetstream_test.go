package jetstream

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/msgkit/internal/runtime/config"
	"github.com/drblury/msgkit/transport"
)

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "nats-jetstream", caps.Name)
	assert.True(t, caps.SupportsPendingCount)
	assert.Equal(t, transport.NATSJetStreamCapabilities, Capabilities())
}

func TestConfigWithDefaults(t *testing.T) {
	t.Run("empty config gets defaults", func(t *testing.T) {
		result := Config{}.withDefaults()

		assert.Equal(t, DefaultStreamName, result.StreamName)
		assert.Equal(t, DefaultMaxDeliver, result.MaxDeliver)
		assert.Equal(t, DefaultAckWait, result.AckWait)
		assert.Equal(t, 1, result.Replicas)
	})

	t.Run("custom values preserved", func(t *testing.T) {
		cfg := Config{
			URL:        "nats://localhost:4222",
			StreamName: "CUSTOM",
			MaxDeliver: 5,
			AckWait:    60,
			Replicas:   3,
		}
		assert.Equal(t, cfg, cfg.withDefaults())
	})

	t.Run("negative values get defaults", func(t *testing.T) {
		result := Config{MaxDeliver: -1, AckWait: -1, Replicas: -1}.withDefaults()

		assert.Equal(t, DefaultMaxDeliver, result.MaxDeliver)
		assert.Equal(t, DefaultAckWait, result.AckWait)
		assert.Equal(t, 1, result.Replicas)
	})
}

func TestBuildConnectFailure(t *testing.T) {
	original := Connect
	defer func() { Connect = original }()

	var gotURL string
	Connect = func(url string, _ ...nats.Option) (*nats.Conn, error) {
		gotURL = url
		return nil, nats.ErrNoServers
	}

	cfg := config.New()
	cfg.Transport = TransportName
	cfg.URL = "nats://broker:4222"

	_, err := Build(context.Background(), cfg, watermill.NopLogger{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, nats.ErrNoServers))
	assert.Equal(t, "nats://broker:4222", gotURL)
}

func TestNames(t *testing.T) {
	tr := &Transport{config: Config{}.withDefaults()}

	assert.Equal(t, "MSGKIT.orders.eu", tr.subject("orders.eu"))
	assert.Equal(t, "msgkit_orders_eu", tr.durable("orders.eu"))
	assert.Equal(t, "msgkit_a___", tr.durable("a.*>"))
}

func TestMessageConversion(t *testing.T) {
	msg := message.NewMessage("uuid-1", []byte("hello"))
	msg.Metadata.Set("content_type", "text/plain")

	natsMsg := toNATS("MSGKIT.orders", msg)
	assert.Equal(t, "MSGKIT.orders", natsMsg.Subject)
	assert.Equal(t, "uuid-1", natsMsg.Header.Get(HeaderUUID))
	assert.Equal(t, "text/plain", natsMsg.Header.Get("content_type"))

	back := fromNATS(natsMsg)
	assert.Equal(t, "uuid-1", back.UUID)
	assert.Equal(t, "hello", string(back.Payload))
	assert.Equal(t, "text/plain", back.Metadata.Get("content_type"))
	assert.Empty(t, back.Metadata.Get(HeaderUUID))

	anonymous := fromNATS(&nats.Msg{Data: []byte("x")})
	assert.NotEmpty(t, anonymous.UUID)
}

func TestClosedTransport(t *testing.T) {
	tr := &Transport{closing: make(chan struct{})}
	close(tr.closing)

	assert.ErrorIs(t, tr.Publish("orders", message.NewMessage("x", nil)), ErrClosed)
	_, err := tr.Subscribe(context.Background(), "orders")
	assert.ErrorIs(t, err, ErrClosed)
}
