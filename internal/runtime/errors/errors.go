package errors

import (
	sterrors "errors"
	"fmt"
	"strings"
)

var (
	ErrConfigRequired            = sterrors.New("msgkit: configuration is required")
	ErrLoggerRequired            = sterrors.New("msgkit: logger is required")
	ErrPublisherRequired         = sterrors.New("msgkit: publisher is required")
	ErrSubscriberRequired        = sterrors.New("msgkit: subscriber is required")
	ErrTopicRequired             = sterrors.New("msgkit: topic is required")
	ErrStrategyRequired          = sterrors.New("msgkit: listener strategy is required")
	ErrListenerStopped           = sterrors.New("msgkit: listener already stopped")
	ErrBinaryUnsupported         = sterrors.New("msgkit: BytesMessage not supported at this time")
	ErrUnsupportedPayload        = sterrors.New("msgkit: unknown message type")
	ErrUnknownTransport          = sterrors.New("msgkit: unknown transport")
	ErrDestinationNotFound       = sterrors.New("msgkit: destination not found")
	ErrConnectionFactoryNotFound = sterrors.New("msgkit: connection factory not found")
	ErrMaxMessagesReached        = sterrors.New("msgkit: maximum message count reached")
)

// ConfigurationError reports a missing or unresolvable piece of configuration.
// It is fatal for the command that hits it.
type ConfigurationError struct {
	What string
	Name string
	Err  error
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Name != "" && e.Err != nil:
		return fmt.Sprintf("msgkit: invalid %s %q: %v", e.What, e.Name, e.Err)
	case e.Name != "":
		return fmt.Sprintf("msgkit: invalid %s %q", e.What, e.Name)
	case e.Err != nil:
		return fmt.Sprintf("msgkit: invalid %s: %v", e.What, e.Err)
	}
	return fmt.Sprintf("msgkit: invalid %s", e.What)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError wraps err as a ConfigurationError about what/name.
func NewConfigurationError(what, name string, err error) error {
	return &ConfigurationError{What: what, Name: name, Err: err}
}

// TransportError is a broker-level failure on send or subscribe.
type TransportError struct {
	Op    string
	Topic string
	Err   error
}

func (e *TransportError) Error() string {
	if e.Topic == "" {
		return fmt.Sprintf("msgkit: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("msgkit: %s on %q failed: %v", e.Op, e.Topic, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SendError wraps a publish failure of a single outbound message.
type SendError struct {
	TransportError
	MessageUUID string
}

// NewSendError builds a SendError for the given topic and message.
func NewSendError(topic, uuid string, err error) *SendError {
	return &SendError{
		TransportError: TransportError{Op: "send", Topic: topic, Err: err},
		MessageUUID:    uuid,
	}
}

func (e *SendError) Unwrap() error { return &e.TransportError }

// EncodingError reports an unsupported or failing character set.
type EncodingError struct {
	Charset string
	Err     error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("msgkit: encoding %q: %v", e.Charset, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// IOError is a file or pipe failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("msgkit: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("msgkit: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Format renders err followed by one "caused by:" line per wrapped cause.
// Joined errors are rendered one branch after another.
func Format(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	writeChain(&b, err, 0)
	return strings.TrimRight(b.String(), "\n")
}

func writeChain(b *strings.Builder, err error, depth int) {
	indent := strings.Repeat("  ", depth)
	b.WriteString(indent)
	b.WriteString(err.Error())
	b.WriteString("\n")

	for cause := err; cause != nil; {
		if joined, ok := cause.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				writeChain(b, inner, depth+1)
			}
			return
		}
		next := sterrors.Unwrap(cause)
		if next == nil {
			return
		}
		// Embedded errors such as SendError repeat the parent text.
		if next.Error() != cause.Error() {
			b.WriteString(indent)
			b.WriteString("caused by: ")
			b.WriteString(next.Error())
			b.WriteString("\n")
		}
		cause = next
	}
}

// Exit codes returned by the command line tools.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitMaxMessages = 2
)

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case sterrors.Is(err, ErrMaxMessagesReached):
		return ExitMaxMessages
	}
	return ExitFailure
}
