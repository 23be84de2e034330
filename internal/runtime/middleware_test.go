package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	idspkg "github.com/drblury/msgkit/internal/runtime/ids"
	loggingpkg "github.com/drblury/msgkit/internal/runtime/logging"
	metadatapkg "github.com/drblury/msgkit/internal/runtime/metadata"
)

type recordingServiceLogger struct {
	mu     sync.Mutex
	debugs int
	infos  int
	traces int
	errors int
}

func (r *recordingServiceLogger) With(loggingpkg.LogFields) loggingpkg.ServiceLogger { return r }

func (r *recordingServiceLogger) Debug(string, loggingpkg.LogFields) {
	r.mu.Lock()
	r.debugs++
	r.mu.Unlock()
}

func (r *recordingServiceLogger) Info(string, loggingpkg.LogFields) {
	r.mu.Lock()
	r.infos++
	r.mu.Unlock()
}

func (r *recordingServiceLogger) Error(string, error, loggingpkg.LogFields) {
	r.mu.Lock()
	r.errors++
	r.mu.Unlock()
}

func (r *recordingServiceLogger) Trace(string, loggingpkg.LogFields) {
	r.mu.Lock()
	r.traces++
	r.mu.Unlock()
}

func passThrough(*message.Message) ([]*message.Message, error) { return nil, nil }

func TestCorrelationIDMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("adds missing id", func(t *testing.T) {
		msg := message.NewMessage(idspkg.CreateULID(), nil)
		msg.Metadata = nil
		var seen string
		_, err := correlationIDMiddleware(func(m *message.Message) ([]*message.Message, error) {
			seen = m.Metadata.Get(metadatapkg.KeyCorrelationID)
			return nil, nil
		})(msg)
		require.NoError(t, err)
		assert.NotEmpty(t, seen)
	})

	t.Run("keeps existing id", func(t *testing.T) {
		msg := message.NewMessage(idspkg.CreateULID(), nil)
		msg.Metadata.Set(metadatapkg.KeyCorrelationID, "fixed")
		_, err := correlationIDMiddleware(passThrough)(msg)
		require.NoError(t, err)
		assert.Equal(t, "fixed", msg.Metadata.Get(metadatapkg.KeyCorrelationID))
	})
}

func TestLogMessagesMiddleware(t *testing.T) {
	t.Parallel()

	logger := &recordingServiceLogger{}
	_, err := logMessagesMiddleware(logger)(passThrough)(message.NewMessage("m", []byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, 1, logger.debugs)
}

func TestLogMessagesMiddlewareRequiresLogger(t *testing.T) {
	t.Parallel()

	reg := LogMessagesMiddleware(nil)
	_, err := reg.Builder(&Service{})
	assert.Error(t, err)

	mw, err := reg.Builder(&Service{Logger: &recordingServiceLogger{}})
	require.NoError(t, err)
	assert.NotNil(t, mw)
}

func TestTracerMiddleware(t *testing.T) {
	t.Parallel()

	tracer := noop.NewTracerProvider().Tracer("test")
	msg := message.NewMessage("m", nil)
	msg.SetContext(context.Background())

	var span trace.Span
	_, err := tracerMiddleware(tracer)(func(m *message.Message) ([]*message.Message, error) {
		span = trace.SpanFromContext(m.Context())
		return nil, nil
	})(msg)
	require.NoError(t, err)
	assert.NotNil(t, span)

	failing := errors.New("strategy failed")
	_, err = tracerMiddleware(tracer)(func(*message.Message) ([]*message.Message, error) {
		return nil, failing
	})(msg)
	assert.ErrorIs(t, err, failing)
}

func TestMetricsMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("records handle latency", func(t *testing.T) {
		m := NewMetrics(prometheus.NewRegistry())
		require.NoError(t, m.Register())

		mw, err := MetricsMiddleware().Builder(&Service{metrics: m})
		require.NoError(t, err)
		require.NotNil(t, mw)

		_, err = mw(func(*message.Message) ([]*message.Message, error) {
			time.Sleep(time.Millisecond)
			return nil, nil
		})(message.NewMessage("m", []byte("x")))
		require.NoError(t, err)
	})

	t.Run("skipped without metrics", func(t *testing.T) {
		mw, err := MetricsMiddleware().Builder(&Service{})
		require.NoError(t, err)
		assert.Nil(t, mw)
	})
}

func TestRecovererMiddleware(t *testing.T) {
	t.Parallel()

	mw := RecovererMiddleware().Middleware
	_, err := mw(func(*message.Message) ([]*message.Message, error) {
		panic("boom")
	})(message.NewMessage("m", nil))
	assert.Error(t, err)
}

func TestRegisterMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("requires configuration", func(t *testing.T) {
		svc := &Service{}
		assert.Error(t, svc.RegisterMiddleware(MiddlewareRegistration{Name: "empty"}))
	})

	t.Run("invokes builder", func(t *testing.T) {
		svc := &Service{}
		called := false
		err := svc.RegisterMiddleware(MiddlewareRegistration{
			Name: "builder",
			Builder: func(s *Service) (message.HandlerMiddleware, error) {
				called = true
				assert.Same(t, svc, s)
				return func(h message.HandlerFunc) message.HandlerFunc { return h }, nil
			},
		})
		require.NoError(t, err)
		assert.True(t, called)
		assert.Len(t, svc.middlewares, 1)
	})

	t.Run("propagates builder error", func(t *testing.T) {
		svc := &Service{}
		expected := errors.New("builder failed")
		err := svc.RegisterMiddleware(MiddlewareRegistration{
			Builder: func(*Service) (message.HandlerMiddleware, error) { return nil, expected },
		})
		assert.ErrorIs(t, err, expected)
		assert.Empty(t, svc.middlewares)
	})

	t.Run("ignores nil middleware from builder", func(t *testing.T) {
		svc := &Service{}
		err := svc.RegisterMiddleware(MiddlewareRegistration{
			Builder: func(*Service) (message.HandlerMiddleware, error) { return nil, nil },
		})
		require.NoError(t, err)
		assert.Empty(t, svc.middlewares)
	})
}

func TestDefaultMiddlewaresOrder(t *testing.T) {
	names := make([]string, 0)
	for _, reg := range DefaultMiddlewares() {
		names = append(names, reg.Name)
	}
	assert.Equal(t, []string{"correlation_id", "log_messages", "tracer", "metrics", "recoverer"}, names)
}
