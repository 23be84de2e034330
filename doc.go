// Package msgkit produces and consumes messages on a queue or topic through
// Watermill. It reads the target transport (Kafka, RabbitMQ, AWS SNS/SQS,
// NATS, NATS JetStream, Redis Streams, HTTP, I/O, SQLite, PostgreSQL, or Go
// Channels) from Config, stamps every outbound message with provenance
// metadata, and runs listeners that hand each delivery to a strategy.
//
// Service owns one transport connection. Service.Pipeline returns a producer
// that builds the envelope (app, user, host, size, type and correlation id)
// and publishes it; Service.NewTailer follows a FIFO and sends each chunk of
// complete lines; Service.NewListener returns a controller that stops on a
// max message count, a sentinel payload, or cancellation. The cmd/msgkit
// binary wires these into the send, blast, receive and heapstalk commands.
//
// # Transports
//
// Each transport lives in its own package under transport/ and registers
// itself on import. Import transport/transports to get all of them:
//   - channel: In-memory Go channels for testing
//   - kafka: Consumer groups for queues, per-process reads for topics
//   - rabbitmq: Durable queues and durable pub/sub exchanges
//   - aws: SNS topics fanned out to SQS queues, LocalStack aware
//   - nats: Core NATS with queue groups
//   - nats-jetstream: Durable pull consumers on an auto-provisioned stream
//   - redis: Redis Streams with consumer groups
//   - http: Publish by POST, receive on an embedded server
//   - io: JSON lines in a shared file
//   - sqlite, postgres: Polling SQL queue with pending count
//
// # Middleware
//
// Listener deliveries pass through correlation ID injection, structured
// logging, OpenTelemetry tracing, Prometheus metrics and panic recovery.
// Custom middleware and DeliveryHooks can be added via
// ServiceDependencies.Middlewares.
package msgkit
