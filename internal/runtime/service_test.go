package runtime

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/msgkit/internal/runtime/config"
	"github.com/drblury/msgkit/internal/runtime/envelope"
	errspkg "github.com/drblury/msgkit/internal/runtime/errors"
	"github.com/drblury/msgkit/internal/runtime/jsoncodec"
	"github.com/drblury/msgkit/internal/runtime/listener"
	loggingpkg "github.com/drblury/msgkit/internal/runtime/logging"
	transportpkg "github.com/drblury/msgkit/transport"
	_ "github.com/drblury/msgkit/transport/channel"
)

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.New(io.Discard, "debug")
}

type collectingStrategy struct {
	mu    sync.Mutex
	texts []string
}

func (c *collectingStrategy) Handle(_ context.Context, d listener.Delivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, d.Text())
	return nil
}

func (c *collectingStrategy) Close() error { return nil }

func (c *collectingStrategy) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func newTestService(t *testing.T, deps ServiceDependencies) *Service {
	t.Helper()
	conf := configpkg.New()
	conf.ConnectionFactory = "ConnectionFactory"
	if deps.Registerer == nil {
		reg := prometheus.NewRegistry()
		deps.Registerer = reg
		deps.Gatherer = reg
	}
	svc, err := NewService(context.Background(), conf, newTestLogger(), deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(context.Background(), nil, newTestLogger(), ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	_, err = NewService(context.Background(), configpkg.New(), nil, ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)

	conf := configpkg.New()
	conf.Transport = "kafka"
	_, err = NewService(context.Background(), conf, newTestLogger(), ServiceDependencies{})
	var cfgErr *errspkg.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "brokers are required")
}

func TestNewServiceTransportFailure(t *testing.T) {
	original := buildTransport
	t.Cleanup(func() { buildTransport = original })

	cause := errors.New("connection refused")
	buildTransport = func(context.Context, transportpkg.Config, watermill.LoggerAdapter) (transportpkg.Transport, error) {
		return transportpkg.Transport{}, cause
	}

	_, err := NewService(context.Background(), configpkg.New(), newTestLogger(), ServiceDependencies{Registerer: prometheus.NewRegistry()})
	var transportErr *errspkg.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "connect", transportErr.Op)
	assert.ErrorIs(t, err, cause)
}

func TestNewServiceMiddlewareBuilderError(t *testing.T) {
	conf := configpkg.New()
	_, err := NewService(context.Background(), conf, newTestLogger(), ServiceDependencies{
		Registerer: prometheus.NewRegistry(),
		Middlewares: []MiddlewareRegistration{{
			Name:    "broken",
			Builder: func(*Service) (message.HandlerMiddleware, error) { return nil, errors.New("nope") },
		}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestNewServiceDisableDefaultMiddlewares(t *testing.T) {
	svc := newTestService(t, ServiceDependencies{DisableDefaultMiddlewares: true})
	assert.Empty(t, svc.middlewares)

	svc = newTestService(t, ServiceDependencies{})
	assert.Len(t, svc.middlewares, len(DefaultMiddlewares()))
}

func TestServicePipelineToListener(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{Persistent: true, OutputChannelBuffer: 16}, watermill.NopLogger{})
	var handled []string
	hooks := DeliveryHooks{OnHandled: func(ctx DeliveryContext) { handled = append(handled, ctx.MessageUUID) }}

	svc := newTestService(t, ServiceDependencies{
		Transport:   &transportpkg.Transport{Publisher: pubSub, Subscriber: pubSub},
		Middlewares: []MiddlewareRegistration{DeliveryHooksMiddleware(hooks)},
	})

	pipeline, err := svc.Pipeline("orders", envelope.NewProvenance("msgkit-test", ""))
	require.NoError(t, err)
	require.NoError(t, pipeline.SendText(context.Background(), "hello", envelope.TypeStdin))
	require.NoError(t, pipeline.SendText(context.Background(), "stop", envelope.TypeStdin))

	strategy := &collectingStrategy{}
	ctrl, err := svc.NewListener("orders", strategy, listener.WithSentinel("STOP"))
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reason, err := ctrl.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, listener.StopSentinel, reason)
	assert.Equal(t, []string{"hello", "stop"}, strategy.received())
	assert.Len(t, handled, 2)

	snap := svc.Metrics().Snapshot()
	assert.Equal(t, uint64(2), snap.Sent[string(envelope.TypeStdin)])
	assert.Equal(t, uint64(2), snap.Deliveries["text"])
}

func TestServiceStatusHandler(t *testing.T) {
	svc := newTestService(t, ServiceDependencies{})
	_, err := svc.NewListener("orders", &collectingStrategy{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	svc.handleGetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status Status
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "msgkit", status.App)
	assert.Equal(t, "channel", status.Transport)
	require.Len(t, status.Listeners, 1)
	assert.Equal(t, "orders", status.Listeners[0].Topic)
	assert.Equal(t, listener.StateNotStarted.String(), status.Listeners[0].State)

	rec = httptest.NewRecorder()
	svc.handleGetStatus(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServiceServeWithoutServers(t *testing.T) {
	svc := newTestService(t, ServiceDependencies{})
	assert.NoError(t, svc.Serve(context.Background()))
}

func TestServiceCloseStopsListeners(t *testing.T) {
	svc := newTestService(t, ServiceDependencies{})
	ctrl, err := svc.NewListener("orders", &collectingStrategy{})
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background()))
	require.True(t, ctrl.IsRunning())

	require.NoError(t, svc.Close())
	assert.Equal(t, listener.StateStopped, ctrl.State())
	assert.Equal(t, listener.StopRequested, ctrl.Reason())
	assert.NoError(t, svc.Close())
}

func TestServiceNewHeapstalk(t *testing.T) {
	svc := newTestService(t, ServiceDependencies{})
	assert.NotNil(t, svc.NewHeapstalk())
	assert.True(t, svc.Capabilities().SupportsQueue)
}
