// Package nats provides a NATS Core transport. Queue destinations use a
// queue group so listeners compete for messages; topic destinations fan out.
package nats

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/msgkit/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// DefaultQueueGroupPrefix names the queue group for queue destinations.
const DefaultQueueGroupPrefix = "msgkit"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg wmnats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return wmnats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg wmnats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return wmnats.NewSubscriber(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a new NATS Core transport.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pubCfg, subCfg := configs(cfg)

	publisher, err := PublisherFactory(pubCfg, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(subCfg, logger)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

func configs(cfg transport.Config) (wmnats.PublisherConfig, wmnats.SubscriberConfig) {
	marshaler := &wmnats.NATSMarshaler{}
	options := ConnectOptions(cfg)
	core := wmnats.JetStreamConfig{Disabled: true}

	pubCfg := wmnats.PublisherConfig{
		URL:         cfg.GetURL(),
		NatsOptions: options,
		Marshaler:   marshaler,
		JetStream:   core,
	}

	subCfg := wmnats.SubscriberConfig{
		URL:         cfg.GetURL(),
		NatsOptions: options,
		Unmarshaler: marshaler,
		JetStream:   core,
	}
	if !transport.IsTopic(cfg) {
		subCfg.QueueGroupPrefix = DefaultQueueGroupPrefix
	}

	return pubCfg, subCfg
}

// ConnectOptions maps the client id and credentials onto nats.go options.
func ConnectOptions(cfg transport.Config) []nc.Option {
	var options []nc.Option
	if id := cfg.GetClientID(); id != "" {
		options = append(options, nc.Name(id))
	}
	if user := cfg.GetUsername(); user != "" {
		options = append(options, nc.UserInfo(user, cfg.GetPassword()))
	}
	return options
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
