// Package kafka provides a Kafka transport. Queue destinations share a
// consumer group so each message reaches one listener. Topic destinations
// read every partition without a group so each listener sees every message.
package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/msgkit/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// DefaultConsumerGroup is used for queue destinations without a configured group.
const DefaultConsumerGroup = "msgkit"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a new Kafka transport.
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

func configs(cfg transport.Config) (kafka.PublisherConfig, kafka.SubscriberConfig) {
	pubSarama := kafka.DefaultSaramaSyncPublisherConfig()
	applyConnection(pubSarama, cfg)

	subSarama := kafka.DefaultSaramaSubscriberConfig()
	applyConnection(subSarama, cfg)

	pubCfg := kafka.PublisherConfig{
		Brokers:               cfg.GetBrokers(),
		Marshaler:             kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: pubSarama,
	}

	subCfg := kafka.SubscriberConfig{
		Brokers:               cfg.GetBrokers(),
		Unmarshaler:           kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: subSarama,
	}
	if !transport.IsTopic(cfg) {
		subCfg.ConsumerGroup = cfg.GetConsumerGroup()
		if subCfg.ConsumerGroup == "" {
			subCfg.ConsumerGroup = DefaultConsumerGroup
		}
	}

	return pubCfg, subCfg
}

// applyConnection copies the client id and SASL/PLAIN credentials.
func applyConnection(sc *sarama.Config, cfg transport.Config) {
	if id := cfg.GetClientID(); id != "" {
		sc.ClientID = id
	}
	if user := cfg.GetUsername(); user != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		sc.Net.SASL.User = user
		sc.Net.SASL.Password = cfg.GetPassword()
	}
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}
