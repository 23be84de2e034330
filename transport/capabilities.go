package transport

// Capabilities describes what a transport backend offers msgkit commands.
type Capabilities struct {
	// Name is the registered transport name.
	Name string `json:"name"`

	// SupportsAck indicates the broker learns about acknowledged deliveries.
	SupportsAck bool `json:"supports_ack"`

	// SupportsNack indicates negative acknowledgement triggers redelivery.
	SupportsNack bool `json:"supports_nack"`

	// SupportsOrdering indicates messages on one destination arrive in publish order.
	SupportsOrdering bool `json:"supports_ordering"`

	// SupportsQueue indicates competing consumers share one destination.
	SupportsQueue bool `json:"supports_queue"`

	// SupportsTopic indicates every subscriber receives its own copy.
	SupportsTopic bool `json:"supports_topic"`

	// Persistent indicates messages survive a process restart.
	Persistent bool `json:"persistent"`

	// SupportsPendingCount indicates the transport implements QueueIntrospector.
	SupportsPendingCount bool `json:"supports_pending_count"`

	// SupportsTracing indicates the transport propagates tracing headers natively.
	SupportsTracing bool `json:"supports_tracing"`

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64 `json:"max_message_size,omitempty"`
}

// SupportsReliableDelivery returns true if the transport supports at-least-once
// delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// SupportsKind reports whether the destination kind can be honoured. An
// empty kind means queue.
func (c Capabilities) SupportsKind(kind string) bool {
	switch kind {
	case "", KindQueue:
		return c.SupportsQueue
	case KindTopic:
		return c.SupportsTopic
	}
	return false
}

// Predefined capability sets for the bundled transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
		SupportsQueue:    true,
		SupportsTopic:    true,
	}

	// KafkaCapabilities for Apache Kafka. Queues map to a shared consumer group.
	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsAck:      true,
		SupportsOrdering: true,
		SupportsQueue:    true,
		SupportsTopic:    true,
		Persistent:       true,
		SupportsTracing:  true,
		MaxMessageSize:   1048576, // Default 1MB
	}

	// RabbitMQCapabilities for RabbitMQ/AMQP.
	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
		SupportsQueue:    true,
		SupportsTopic:    true,
		Persistent:       true,
		SupportsTracing:  true,
	}

	// NATSCapabilities for NATS Core.
	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsQueue:   true,
		SupportsTopic:   true,
		SupportsTracing: true,
		MaxMessageSize:  1048576, // Default 1MB
	}

	// NATSJetStreamCapabilities for NATS JetStream.
	NATSJetStreamCapabilities = Capabilities{
		Name:                 "nats-jetstream",
		SupportsAck:          true,
		SupportsNack:         true,
		SupportsOrdering:     true,
		SupportsQueue:        true,
		SupportsTopic:        true,
		Persistent:           true,
		SupportsPendingCount: true,
		SupportsTracing:      true,
		MaxMessageSize:       1048576, // Default 1MB
	}

	// AWSCapabilities for AWS SNS/SQS.
	AWSCapabilities = Capabilities{
		Name:            "aws",
		SupportsAck:     true,
		SupportsNack:    true,
		SupportsQueue:   true,
		SupportsTopic:   true,
		Persistent:      true,
		SupportsTracing: true,
		MaxMessageSize:  262144, // 256KB
	}

	// SQLiteCapabilities for the SQLite polling queue.
	SQLiteCapabilities = Capabilities{
		Name:                 "sqlite",
		SupportsAck:          true,
		SupportsNack:         true,
		SupportsOrdering:     true,
		SupportsQueue:        true,
		Persistent:           true,
		SupportsPendingCount: true,
	}

	// PostgresCapabilities for the PostgreSQL polling queue.
	PostgresCapabilities = Capabilities{
		Name:                 "postgres",
		SupportsAck:          true,
		SupportsNack:         true,
		SupportsOrdering:     true,
		SupportsQueue:        true,
		Persistent:           true,
		SupportsPendingCount: true,
	}

	// RedisCapabilities for Redis Streams.
	RedisCapabilities = Capabilities{
		Name:                 "redis",
		SupportsAck:          true,
		SupportsOrdering:     true,
		SupportsQueue:        true,
		SupportsTopic:        true,
		Persistent:           true,
		SupportsPendingCount: true,
	}

	// HTTPCapabilities for the HTTP push transport.
	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsAck:     true,
		SupportsQueue:   true,
		SupportsTracing: true,
	}

	// IOCapabilities for the JSON-lines file transport.
	IOCapabilities = Capabilities{
		Name:             "io",
		SupportsOrdering: true,
		SupportsTopic:    true,
		Persistent:       true,
	}
)

// GetCapabilities returns the capabilities for a transport by name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
