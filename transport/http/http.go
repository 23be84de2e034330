// Package http provides an HTTP push transport. Publishing POSTs each message
// to <url>/<topic>; subscribing serves <listen>/<topic> and turns incoming
// requests into messages.
package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/msgkit/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "http"

var (
	// ErrNoListenAddress is returned by Subscribe when no listen address is configured.
	ErrNoListenAddress = errors.New("http transport: listen address is required to subscribe")

	// ErrNoURL is returned by Publish when no target url is configured.
	ErrNoURL = errors.New("http transport: url is required to publish")
)

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

// Build creates a new HTTP transport. The subscriber's server only starts
// once the first topic is subscribed.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	publisher, err := PublisherFactory(
		http.PublisherConfig{
			MarshalMessageFunc: MarshalMessageFunc(cfg.GetURL(), cfg.GetUsername(), cfg.GetPassword()),
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	addr := cfg.GetListenAddress()
	if addr == "" {
		return transport.Transport{
			Publisher:  publisher,
			Subscriber: unlistenedSubscriber{},
		}, nil
	}

	subscriber, err := SubscriberFactory(
		addr,
		http.SubscriberConfig{
			UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: &serverSubscriber{Subscriber: subscriber, logger: logger},
	}, nil
}

// MarshalMessageFunc posts to baseURL joined with the topic, adding basic
// auth when a user is set.
func MarshalMessageFunc(baseURL, user, password string) http.MarshalMessageFunc {
	return func(topic string, msg *message.Message) (*nethttp.Request, error) {
		if baseURL == "" {
			return nil, ErrNoURL
		}
		req, err := http.DefaultMarshalMessageFunc(TopicURL(baseURL, topic), msg)
		if err != nil {
			return nil, err
		}
		if user != "" {
			req.SetBasicAuth(user, password)
		}
		return req, nil
	}
}

// TopicURL joins base and topic with exactly one slash.
func TopicURL(base, topic string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(topic, "/")
}

// serverSubscriber starts the HTTP server after the first route exists.
type serverSubscriber struct {
	message.Subscriber
	logger watermill.LoggerAdapter
	once   sync.Once
}

func (s *serverSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	msgs, err := s.Subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	if server, ok := s.Subscriber.(*http.Subscriber); ok {
		s.once.Do(func() {
			go func() {
				if err := server.StartHTTPServer(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
					s.logger.Error("HTTP subscriber server stopped", err, nil)
				}
			}()
		})
	}
	return msgs, nil
}

type unlistenedSubscriber struct{}

func (unlistenedSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return nil, ErrNoListenAddress
}

func (unlistenedSubscriber) Close() error { return nil }

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}
