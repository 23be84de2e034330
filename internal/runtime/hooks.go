package runtime

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/msgkit/internal/runtime/listener"
	loggingpkg "github.com/drblury/msgkit/internal/runtime/logging"
)

// DeliveryContext describes one delivery handed to a listener strategy.
type DeliveryContext struct {
	MessageUUID string
	Kind        listener.PayloadKind
	Metadata    message.Metadata
	Context     context.Context
	StartedAt   time.Time
	// Duration is only set in OnHandled and OnFailed.
	Duration time.Duration
}

// DeliveryHooks are callbacks around strategy execution. Nil hooks are skipped.
type DeliveryHooks struct {
	OnReceived func(ctx DeliveryContext)
	OnHandled  func(ctx DeliveryContext)
	OnFailed   func(ctx DeliveryContext, err error)
}

// Merge returns hooks calling h first and other second.
func (h DeliveryHooks) Merge(other DeliveryHooks) DeliveryHooks {
	return DeliveryHooks{
		OnReceived: chainHooks(h.OnReceived, other.OnReceived),
		OnHandled:  chainHooks(h.OnHandled, other.OnHandled),
		OnFailed:   chainErrorHooks(h.OnFailed, other.OnFailed),
	}
}

func chainHooks(a, b func(DeliveryContext)) func(DeliveryContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DeliveryContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(DeliveryContext, error)) func(DeliveryContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DeliveryContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// DeliveryHooksMiddleware invokes hooks around every strategy call.
func DeliveryHooksMiddleware(hooks DeliveryHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "delivery_hooks",
		Middleware: deliveryHooksMiddleware(hooks),
	}
}

func deliveryHooksMiddleware(hooks DeliveryHooks) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			dc := DeliveryContext{
				MessageUUID: msg.UUID,
				Kind:        listener.Classify(msg),
				Metadata:    msg.Metadata,
				Context:     msg.Context(),
				StartedAt:   time.Now(),
			}

			if hooks.OnReceived != nil {
				hooks.OnReceived(dc)
			}

			out, err := h(msg)
			dc.Duration = time.Since(dc.StartedAt)

			if err != nil {
				if hooks.OnFailed != nil {
					hooks.OnFailed(dc, err)
				}
			} else if hooks.OnHandled != nil {
				hooks.OnHandled(dc)
			}
			return out, err
		}
	}
}

// LoggingHooks logs every delivery at trace level and every strategy
// failure at error level.
func LoggingHooks(logger loggingpkg.ServiceLogger) DeliveryHooks {
	return DeliveryHooks{
		OnReceived: func(ctx DeliveryContext) {
			logger.Trace("Delivery received", loggingpkg.LogFields{
				"message_uuid": ctx.MessageUUID,
				"kind":         ctx.Kind.String(),
			})
		},
		OnHandled: func(ctx DeliveryContext) {
			logger.Trace("Delivery handled", loggingpkg.LogFields{
				"message_uuid": ctx.MessageUUID,
				"duration_ms":  ctx.Duration.Milliseconds(),
			})
		},
		OnFailed: func(ctx DeliveryContext, err error) {
			logger.Error("Delivery failed", err, loggingpkg.LogFields{
				"message_uuid": ctx.MessageUUID,
				"kind":         ctx.Kind.String(),
				"duration_ms":  ctx.Duration.Milliseconds(),
			})
		},
	}
}
