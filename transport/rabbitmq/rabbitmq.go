// Package rabbitmq provides a RabbitMQ/AMQP transport. Queue destinations
// map to a durable queue named after the topic. Topic destinations use a
// fanout exchange with one durable queue per client.
package rabbitmq

import (
	"context"
	"net/url"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/drblury/msgkit/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

// Heartbeat is the AMQP heartbeat interval negotiated with the broker.
const Heartbeat = 10 * time.Second

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// CloseConnection allows overriding how a half built transport releases its connection.
var CloseConnection = func(conn *amqp.ConnectionWrapper) error {
	return conn.Close()
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

// Build creates a new RabbitMQ transport sharing one connection between
// the publisher and the subscriber.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	amqpConfig := Config(cfg)

	conn, err := ConnectionFactory(amqpConfig.Connection, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	publisher, err := PublisherFactory(amqpConfig, logger, conn)
	if err != nil {
		_ = CloseConnection(conn)
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(amqpConfig, logger, conn)
	if err != nil {
		_ = publisher.Close()
		_ = CloseConnection(conn)
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Config returns the watermill AMQP configuration for cfg.
func Config(cfg transport.Config) amqp.Config {
	uri := URI(cfg)

	var amqpConfig amqp.Config
	if transport.IsTopic(cfg) {
		suffix := cfg.GetClientID()
		if suffix == "" {
			suffix = watermill.NewShortUUID()
		}
		amqpConfig = amqp.NewDurablePubSubConfig(uri, amqp.GenerateQueueNameTopicNameWithSuffix(suffix))
	} else {
		amqpConfig = amqp.NewDurableQueueConfig(uri)
	}

	properties := amqp091.NewConnectionProperties()
	if id := cfg.GetClientID(); id != "" {
		properties.SetClientConnectionName(id)
	}
	amqpConfig.Connection.AmqpConfig = &amqp091.Config{
		Heartbeat:  Heartbeat,
		Locale:     "en_US",
		Properties: properties,
	}
	amqpConfig.Connection.Reconnect = amqp.DefaultReconnectConfig()

	return amqpConfig
}

// URI returns the broker URL with the configured credentials filled in
// when the URL carries none.
func URI(cfg transport.Config) string {
	raw := cfg.GetURL()
	user := cfg.GetUsername()
	if user == "" {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.User != nil {
		return raw
	}
	u.User = url.UserPassword(user, cfg.GetPassword())
	return u.String()
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}
