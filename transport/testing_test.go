package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

type mockConfig struct {
	transport string
	kind      string
}

func (m *mockConfig) GetTransport() string       { return m.transport }
func (m *mockConfig) GetURL() string             { return "" }
func (m *mockConfig) GetBrokers() []string       { return nil }
func (m *mockConfig) GetConsumerGroup() string   { return "" }
func (m *mockConfig) GetClientID() string        { return "" }
func (m *mockConfig) GetUsername() string        { return "" }
func (m *mockConfig) GetPassword() string        { return "" }
func (m *mockConfig) GetDestinationKind() string { return m.kind }
func (m *mockConfig) GetListenAddress() string   { return "" }
func (m *mockConfig) GetAWSRegion() string       { return "" }
func (m *mockConfig) GetAWSAccountID() string    { return "" }
func (m *mockConfig) GetAWSEndpoint() string     { return "" }

type mockPublisher struct{}

func (m *mockPublisher) Publish(string, ...*message.Message) error { return nil }

func (m *mockPublisher) Close() error { return nil }

type mockSubscriber struct{}

func (m *mockSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (m *mockSubscriber) Close() error { return nil }
