// Package transports imports all built-in transports for auto-registration.
// Import this package to have all transports registered with the default registry.
package transports

import (
	// Import all transports for side-effect registration
	_ "github.com/drblury/msgkit/transport/aws"
	_ "github.com/drblury/msgkit/transport/channel"
	_ "github.com/drblury/msgkit/transport/http"
	_ "github.com/drblury/msgkit/transport/io"
	_ "github.com/drblury/msgkit/transport/jetstream"
	_ "github.com/drblury/msgkit/transport/kafka"
	_ "github.com/drblury/msgkit/transport/nats"
	_ "github.com/drblury/msgkit/transport/rabbitmq"
	_ "github.com/drblury/msgkit/transport/redis"
	_ "github.com/drblury/msgkit/transport/sqlqueue"
)
