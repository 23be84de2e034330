package transports

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/msgkit/transport"
)

func TestAllTransportsRegistered(t *testing.T) {
	names := transport.Names()
	for _, name := range []string{
		"aws", "channel", "http", "io", "kafka", "nats", "nats-jetstream",
		"postgres", "rabbitmq", "redis", "sqlite",
	} {
		assert.Contains(t, names, name)
		assert.Equal(t, name, transport.GetCapabilities(name).Name)
	}
}
