// Package ids generates the identifiers stamped on outbound messages.
package ids

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable message id encoded as 26 characters.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewCorrelationID returns a random UUID used to tie together every message
// sent by one process.
func NewCorrelationID() string {
	return uuid.NewString()
}

// CorrelationIDOrNew returns supplied when it is not blank, otherwise a fresh
// correlation id.
func CorrelationIDOrNew(supplied string) string {
	if id := strings.TrimSpace(supplied); id != "" {
		return id
	}
	return NewCorrelationID()
}
