package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/msgkit/internal/runtime/listener"
	metadatapkg "github.com/drblury/msgkit/internal/runtime/metadata"
)

func newHookMessage(uuid, contentType string) *message.Message {
	msg := message.NewMessage(uuid, []byte("payload"))
	if contentType != "" {
		msg.Metadata.Set(metadatapkg.KeyContentType, contentType)
	}
	msg.SetContext(context.Background())
	return msg
}

func TestDeliveryHooks_OnReceived(t *testing.T) {
	var captured DeliveryContext
	called := false

	mw := deliveryHooksMiddleware(DeliveryHooks{
		OnReceived: func(ctx DeliveryContext) {
			called = true
			captured = ctx
		},
	})
	_, err := mw(func(*message.Message) ([]*message.Message, error) { return nil, nil })(newHookMessage("m-1", ""))

	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "m-1", captured.MessageUUID)
	assert.Equal(t, listener.PayloadText, captured.Kind)
	assert.False(t, captured.StartedAt.IsZero())
	assert.Zero(t, captured.Duration)
}

func TestDeliveryHooks_OnHandled(t *testing.T) {
	var captured DeliveryContext
	failed := false

	mw := deliveryHooksMiddleware(DeliveryHooks{
		OnHandled: func(ctx DeliveryContext) { captured = ctx },
		OnFailed:  func(DeliveryContext, error) { failed = true },
	})
	_, err := mw(func(*message.Message) ([]*message.Message, error) {
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	})(newHookMessage("m-2", metadatapkg.ContentTypeBinary))

	require.NoError(t, err)
	assert.False(t, failed)
	assert.Equal(t, "m-2", captured.MessageUUID)
	assert.Equal(t, listener.PayloadBytes, captured.Kind)
	assert.GreaterOrEqual(t, captured.Duration, 5*time.Millisecond)
}

func TestDeliveryHooks_OnFailed(t *testing.T) {
	expected := errors.New("disk full")
	var capturedErr error
	handled := false

	mw := deliveryHooksMiddleware(DeliveryHooks{
		OnHandled: func(DeliveryContext) { handled = true },
		OnFailed:  func(_ DeliveryContext, err error) { capturedErr = err },
	})
	_, err := mw(func(*message.Message) ([]*message.Message, error) {
		return nil, expected
	})(newHookMessage("m-3", ""))

	assert.ErrorIs(t, err, expected)
	assert.ErrorIs(t, capturedErr, expected)
	assert.False(t, handled)
}

func TestDeliveryHooks_NilHooksPassThrough(t *testing.T) {
	mw := deliveryHooksMiddleware(DeliveryHooks{})
	_, err := mw(func(*message.Message) ([]*message.Message, error) { return nil, nil })(newHookMessage("m-4", ""))
	assert.NoError(t, err)
}

func TestDeliveryHooks_Merge(t *testing.T) {
	var order []string
	first := DeliveryHooks{
		OnReceived: func(DeliveryContext) { order = append(order, "first") },
		OnFailed:   func(DeliveryContext, error) { order = append(order, "first-failed") },
	}
	second := DeliveryHooks{
		OnReceived: func(DeliveryContext) { order = append(order, "second") },
		OnHandled:  func(DeliveryContext) { order = append(order, "second-handled") },
	}
	merged := first.Merge(second)

	merged.OnReceived(DeliveryContext{})
	merged.OnHandled(DeliveryContext{})
	merged.OnFailed(DeliveryContext{}, errors.New("x"))

	assert.Equal(t, []string{"first", "second", "second-handled", "first-failed"}, order)
	assert.Nil(t, DeliveryHooks{}.Merge(DeliveryHooks{}).OnReceived)
}

func TestLoggingHooks(t *testing.T) {
	logger := &recordingServiceLogger{}
	hooks := LoggingHooks(logger)

	hooks.OnReceived(DeliveryContext{MessageUUID: "m"})
	hooks.OnHandled(DeliveryContext{MessageUUID: "m"})
	hooks.OnFailed(DeliveryContext{MessageUUID: "m"}, errors.New("boom"))

	assert.Equal(t, 2, logger.traces)
	assert.Equal(t, 1, logger.errors)
}

func TestDeliveryHooksMiddlewareRegistration(t *testing.T) {
	reg := DeliveryHooksMiddleware(DeliveryHooks{})
	assert.Equal(t, "delivery_hooks", reg.Name)
	assert.NotNil(t, reg.Middleware)
}
