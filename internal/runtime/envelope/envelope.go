// Package envelope stamps outbound payloads with provenance metadata.
package envelope

import (
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"

	idspkg "github.com/drblury/msgkit/internal/runtime/ids"
	metadatapkg "github.com/drblury/msgkit/internal/runtime/metadata"
)

// MessageType tags where a payload came from.
type MessageType string

const (
	TypeFile   MessageType = "file"
	TypeStdin  MessageType = "stdin"
	TypeFIFO   MessageType = "fifo"
	TypeRandom MessageType = "random"
)

// Unknown is stamped when the user or host cannot be resolved.
const Unknown = "unknown"

var (
	hostname    = os.Hostname
	currentUser = func() (string, error) {
		u, err := user.Current()
		if err != nil {
			return "", err
		}
		return u.Username, nil
	}
)

// Payload is either UTF-8 text or raw bytes.
type Payload struct {
	data   []byte
	binary bool
}

// Text wraps a text payload.
func Text(s string) Payload {
	return Payload{data: []byte(s)}
}

// Binary wraps a copy of b as a binary payload.
func Binary(b []byte) Payload {
	return Payload{data: append([]byte(nil), b...), binary: true}
}

// IsBinary reports whether the payload carries raw bytes.
func (p Payload) IsBinary() bool { return p.binary }

// Len is the UTF-8 byte length of text or the raw byte count.
func (p Payload) Len() int { return len(p.data) }

func (p Payload) String() string { return string(p.data) }

// Bytes returns a copy of the payload bytes.
func (p Payload) Bytes() []byte { return append([]byte(nil), p.data...) }

// Provenance is the process-wide identity stamped on every outbound message.
// It is built once at startup and passed by value.
type Provenance struct {
	app           string
	user          string
	host          string
	correlationID string
}

// NewProvenance resolves the OS user and hostname for app. A blank
// correlationID is replaced by a freshly generated one.
func NewProvenance(app, correlationID string) Provenance {
	return NewProvenanceFrom(app, resolveUser(), resolveHost(), correlationID)
}

// NewProvenanceFrom builds a Provenance from explicit values.
func NewProvenanceFrom(app, userName, host, correlationID string) Provenance {
	if strings.TrimSpace(userName) == "" {
		userName = Unknown
	}
	if strings.TrimSpace(host) == "" {
		host = Unknown
	}
	return Provenance{
		app:           app,
		user:          userName,
		host:          host,
		correlationID: idspkg.CorrelationIDOrNew(correlationID),
	}
}

func (p Provenance) App() string           { return p.app }
func (p Provenance) User() string          { return p.user }
func (p Provenance) Host() string          { return p.host }
func (p Provenance) CorrelationID() string { return p.correlationID }

// Build stamps payload with the provenance headers. It performs no I/O.
func (p Provenance) Build(payload Payload, messageType MessageType) OutboundMessage {
	contentType := metadatapkg.ContentTypeText
	if payload.binary {
		contentType = metadatapkg.ContentTypeBinary
	}
	return OutboundMessage{
		uuid:    idspkg.CreateULID(),
		payload: payload,
		metadata: metadatapkg.New(
			metadatapkg.KeyApp, p.app,
			metadatapkg.KeyUser, p.user,
			metadatapkg.KeyHost, p.host,
			metadatapkg.KeySize, FormatSize(payload.Len()),
			metadatapkg.KeyCorrelationID, p.correlationID,
			metadatapkg.KeyType, string(messageType),
			metadatapkg.KeyContentType, contentType,
		),
	}
}

// FormatSize renders a byte count as "<N>B".
func FormatSize(n int) string {
	return strconv.Itoa(n) + "B"
}

// OutboundMessage is an immutable payload plus its metadata.
type OutboundMessage struct {
	uuid     string
	payload  Payload
	metadata metadatapkg.Metadata
}

func (m OutboundMessage) UUID() string      { return m.uuid }
func (m OutboundMessage) Payload() Payload  { return m.payload }
func (m OutboundMessage) Type() MessageType { return MessageType(m.metadata[metadatapkg.KeyType]) }

// Metadata returns a copy of the headers.
func (m OutboundMessage) Metadata() metadatapkg.Metadata { return m.metadata.Clone() }

// ToWatermill creates a new Watermill message carrying the envelope.
func (m OutboundMessage) ToWatermill() *message.Message {
	msg := message.NewMessage(m.uuid, m.payload.Bytes())
	msg.Metadata = m.metadata.ToWatermill()
	return msg
}

func resolveHost() string {
	h, err := hostname()
	if err != nil || h == "" {
		return Unknown
	}
	return h
}

func resolveUser() string {
	if name, err := currentUser(); err == nil && name != "" {
		return name
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return Unknown
}
