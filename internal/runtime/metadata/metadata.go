// Package metadata holds the provenance headers carried by every message.
package metadata

import "strings"

// Header keys stamped on outbound messages.
const (
	KeyApp           = "app"
	KeyUser          = "user"
	KeyHost          = "host"
	KeySize          = "size"
	KeyCorrelationID = "correlation_id"
	KeyType          = "type"
	KeyContentType   = "content_type"
)

// Content types distinguishing payload shapes on the wire.
const (
	ContentTypeText   = "text/plain; charset=utf-8"
	ContentTypeBinary = "application/octet-stream"
)

// Metadata represents the headers carried alongside a message.
type Metadata map[string]string

// Clone returns a shallow copy of the metadata map. It never returns nil.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// With returns a copy containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.Clone()
	cloned[key] = value
	return cloned
}

// Get returns the value for key, matching the key case-insensitively when
// there is no exact entry. Some brokers normalise header case.
func (m Metadata) Get(key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// New constructs a Metadata map from alternating key/value pairs. A trailing
// key without a value is ignored.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
