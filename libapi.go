package msgkit

import (
	runtimepkg "github.com/drblury/msgkit/internal/runtime"
	"github.com/drblury/msgkit/internal/runtime/blaster"
	configpkg "github.com/drblury/msgkit/internal/runtime/config"
	"github.com/drblury/msgkit/internal/runtime/envelope"
	errspkg "github.com/drblury/msgkit/internal/runtime/errors"
	idspkg "github.com/drblury/msgkit/internal/runtime/ids"
	jsoncodec "github.com/drblury/msgkit/internal/runtime/jsoncodec"
	"github.com/drblury/msgkit/internal/runtime/listener"
	loggingpkg "github.com/drblury/msgkit/internal/runtime/logging"
	metadatapkg "github.com/drblury/msgkit/internal/runtime/metadata"
	"github.com/drblury/msgkit/internal/runtime/naming"
	"github.com/drblury/msgkit/internal/runtime/producer"
	"github.com/drblury/msgkit/internal/runtime/tailer"
	transportpkg "github.com/drblury/msgkit/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	Status              = runtimepkg.Status
	ListenerStatus      = runtimepkg.ListenerStatus
	Metrics             = runtimepkg.Metrics
	MetricsSnapshot     = runtimepkg.MetricsSnapshot

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	// Delivery lifecycle hooks
	DeliveryContext = runtimepkg.DeliveryContext
	DeliveryHooks   = runtimepkg.DeliveryHooks

	// Outbound messages
	Provenance      = envelope.Provenance
	Payload         = envelope.Payload
	MessageType     = envelope.MessageType
	OutboundMessage = envelope.OutboundMessage
	Pipeline        = producer.Pipeline
	TextSender      = producer.TextSender
	Tailer          = tailer.Tailer
	Blaster         = blaster.Blaster
	BlastReport     = blaster.Report

	// Inbound messages
	Listener      = listener.Controller
	ListenerState = listener.State
	StopReason    = listener.StopReason
	Strategy      = listener.Strategy
	Delivery      = listener.Delivery
	PayloadKind   = listener.PayloadKind
	Receiver      = listener.Receiver
	Heapstalk     = listener.Heapstalk
	Rotation      = listener.Rotation

	// Name resolution
	NamingContext = naming.Context
	Destination   = naming.Destination

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConfigurationError = errspkg.ConfigurationError
	TransportError     = errspkg.TransportError
	SendError          = errspkg.SendError
	EncodingError      = errspkg.EncodingError
	IOError            = errspkg.IOError

	Transport         = transportpkg.Transport
	TransportBuilder  = transportpkg.Builder
	TransportConfig   = transportpkg.Config
	TransportRegistry = transportpkg.Registry
	Capabilities      = transportpkg.Capabilities
	QueueIntrospector = transportpkg.QueueIntrospector
)

var (
	NewService     = runtimepkg.NewService
	NewConfig      = configpkg.New
	ValidateConfig = configpkg.ValidateConfig

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	DeliveryHooksMiddleware = runtimepkg.DeliveryHooksMiddleware
	LoggingHooks            = runtimepkg.LoggingHooks

	NewProvenance = envelope.NewProvenance
	TextPayload   = envelope.Text
	BinaryPayload = envelope.Binary
	NewPipeline   = producer.New
	NewTailer     = tailer.New
	NewBlaster    = blaster.New

	NewListener  = listener.New
	NewReceiver  = listener.NewReceiver
	NewHeapstalk = listener.NewHeapstalk
	FileSink     = listener.FileSink
	StdoutSink   = listener.StdoutSink

	LoadNaming = naming.Load

	// Use RegisterTransport and BuildTransport to work with the transport packages.
	// Import them all via: _ "github.com/drblury/msgkit/transport/transports"
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode

	ErrConfigRequired     = errspkg.ErrConfigRequired
	ErrLoggerRequired     = errspkg.ErrLoggerRequired
	ErrPublisherRequired  = errspkg.ErrPublisherRequired
	ErrSubscriberRequired = errspkg.ErrSubscriberRequired
	ErrTopicRequired      = errspkg.ErrTopicRequired
	ErrListenerStopped    = errspkg.ErrListenerStopped
	ErrBinaryUnsupported  = errspkg.ErrBinaryUnsupported
	ErrMaxMessagesReached = errspkg.ErrMaxMessagesReached

	FormatError = errspkg.Format
	ExitCode    = errspkg.ExitCode

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewLogger            = loggingpkg.New

	NewMetadata = metadatapkg.New

	CreateULID       = idspkg.CreateULID
	NewCorrelationID = idspkg.NewCorrelationID
)

// Message types stamped on outbound messages.
const (
	TypeFile   = envelope.TypeFile
	TypeStdin  = envelope.TypeStdin
	TypeFIFO   = envelope.TypeFIFO
	TypeRandom = envelope.TypeRandom
)

// Metadata keys - use these constants for standard metadata fields.
const (
	MetadataKeyApp           = metadatapkg.KeyApp
	MetadataKeyUser          = metadatapkg.KeyUser
	MetadataKeyHost          = metadatapkg.KeyHost
	MetadataKeySize          = metadatapkg.KeySize
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeyType          = metadatapkg.KeyType
	MetadataKeyContentType   = metadatapkg.KeyContentType
)

// Listener stop reasons.
const (
	StopMaxMessages        = listener.StopMaxMessages
	StopSentinel           = listener.StopSentinel
	StopRequested          = listener.StopRequested
	StopSubscriptionClosed = listener.StopSubscriptionClosed
)

// Process exit codes.
const (
	ExitOK          = errspkg.ExitOK
	ExitFailure     = errspkg.ExitFailure
	ExitMaxMessages = errspkg.ExitMaxMessages
)
