package listener

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	metadatapkg "github.com/drblury/msgkit/internal/runtime/metadata"
)

// Strategy decides what happens to each delivery. Handle is only ever called
// from the controller's delivery goroutine.
type Strategy interface {
	Handle(ctx context.Context, d Delivery) error
	Close() error
}

// Delivery is one received message as seen by a Strategy.
type Delivery struct {
	UUID        string
	Kind        PayloadKind
	ContentType string
	Payload     []byte
	Metadata    metadatapkg.Metadata
	// Seq is the 1-based position of the message in this controller's run.
	Seq int64
}

// Text returns the payload as a string.
func (d Delivery) Text() string { return string(d.Payload) }

// NewDelivery snapshots msg for a strategy.
func NewDelivery(msg *message.Message, seq int64) Delivery {
	md := metadatapkg.FromWatermill(msg.Metadata)
	return Delivery{
		UUID:        msg.UUID,
		Kind:        Classify(msg),
		ContentType: md.Get(metadatapkg.KeyContentType),
		Payload:     msg.Payload,
		Metadata:    md,
		Seq:         seq,
	}
}
