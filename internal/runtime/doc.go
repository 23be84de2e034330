/*
Package runtime wires the msgkit building blocks to a single transport
connection.

# Architecture Overview

A Service owns one publisher and one subscriber obtained from the transport
registry. Everything the command line tools do goes through it: producer
pipelines publish enveloped messages, tailers feed text chunks into a
pipeline, and listener controllers deliver received messages to a strategy.

## Core Service (service.go)

The Service struct ties together:
  - Publisher and subscriber connections
  - The delivery middleware chain applied to every listener
  - Prometheus metrics and the /api/status document
  - HTTP servers for metrics, started by Serve

## Middleware (middleware.go, hooks.go)

Deliveries pass through these stages before reaching a strategy:
  - CorrelationID: Ensures every delivery can be traced
  - LogMessages: Debug logging of payload and metadata
  - Tracer: OpenTelemetry consumer span
  - Metrics: Strategy latency per payload kind
  - Recoverer: Panic recovery

DeliveryHooksMiddleware adds user callbacks around strategy execution.

# Sub-packages

  - blaster/: Fixed size random payload throughput test
  - charset/: Named character set lookup for file input and receiver output
  - config/: Connection factory settings with validation
  - envelope/: Outbound message construction and provenance stamping
  - errors/: Sentinel errors, error types and exit codes
  - ids/: ULID and correlation ID generation
  - jsoncodec/: JSON marshaling utilities
  - listener/: Listener lifecycle controller and the receiver and heapstalk strategies
  - logging/: Logger interface and adapters
  - metadata/: Message metadata keys and conversion
  - naming/: Properties file lookup of connection factories and destinations
  - producer/: Publish pipeline and payload sources
  - tailer/: FIFO follower that forwards text chunks

# Usage Example

	svc, err := runtime.NewService(ctx, conf, logger, runtime.ServiceDependencies{})
	if err != nil {
		return err
	}
	defer svc.Close()

	pipeline, err := svc.Pipeline("orders", envelope.NewProvenance(conf.AppName, ""))
	if err != nil {
		return err
	}
	return pipeline.SendText(ctx, "hello", envelope.TypeStdin)
*/
package runtime
