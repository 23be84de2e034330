// Package transport defines the destination client used by msgkit commands.
// Each broker implementation lives in its own sub-package and registers a
// Builder with the registry from init().
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Destination kinds returned by Config.GetDestinationKind.
const (
	KindQueue = "queue"
	KindTopic = "topic"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the connection factory settings transports read. Each
// transport uses only the keys it needs.
type Config interface {
	// GetTransport returns the registered transport name.
	GetTransport() string

	// GetURL is the broker URL, DSN or file path.
	GetURL() string

	// Kafka
	GetBrokers() []string
	GetConsumerGroup() string

	// GetClientID names this process towards the broker.
	GetClientID() string

	// Credentials
	GetUsername() string
	GetPassword() string

	// GetDestinationKind is KindQueue, KindTopic or empty for queue.
	GetDestinationKind() string

	// HTTP
	GetListenAddress() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSEndpoint() string
}

// IsTopic reports whether cfg selects broadcast semantics.
func IsTopic(cfg Config) bool {
	return cfg != nil && cfg.GetDestinationKind() == KindTopic
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// QueueIntrospector is implemented by transports that can report queue statistics.
type QueueIntrospector interface {
	GetPendingCount(topic string) (int64, error)
}
