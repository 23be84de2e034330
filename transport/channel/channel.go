// Package channel provides an in-process transport backed by Go channels.
// It is the fallback when no connection factory is configured and the
// transport used by tests.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/msgkit/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// OutputBuffer is the per-subscriber buffer size.
const OutputBuffer = 64

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a new Go channel transport.
//
// Queue destinations keep published messages so a listener started after
// the producer still sees them. Topic destinations only reach subscribers
// that are attached at publish time.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, sub := Factory(channelConfig(cfg), logger)
	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

func channelConfig(cfg transport.Config) gochannel.Config {
	return gochannel.Config{
		OutputChannelBuffer: OutputBuffer,
		Persistent:          !transport.IsTopic(cfg),
	}
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
