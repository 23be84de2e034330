package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	configpkg "github.com/drblury/msgkit/internal/runtime/config"
	"github.com/drblury/msgkit/internal/runtime/envelope"
	errspkg "github.com/drblury/msgkit/internal/runtime/errors"
	"github.com/drblury/msgkit/internal/runtime/listener"
	loggingpkg "github.com/drblury/msgkit/internal/runtime/logging"
	"github.com/drblury/msgkit/internal/runtime/producer"
	"github.com/drblury/msgkit/internal/runtime/tailer"
	transportpkg "github.com/drblury/msgkit/transport"
)

const shutdownTimeout = 5 * time.Second

var buildTransport = transportpkg.Build

// ServiceDependencies holds the optional collaborators that the Service can use.
type ServiceDependencies struct {
	// Transport skips the registry when set.
	Transport *transportpkg.Transport
	// Registerer receives the Prometheus collectors. Nil uses the default registry.
	Registerer prometheus.Registerer
	// Gatherer backs /metrics. Nil uses the default gatherer.
	Gatherer                  prometheus.Gatherer
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
}

// Service owns one transport connection and hands out pipelines, tailers and
// listeners bound to it.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber
	metrics    *Metrics
	gatherer   prometheus.Gatherer

	middlewares   []message.HandlerMiddleware
	middlewaresMu sync.RWMutex

	listeners   []*listener.Controller
	listenersMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	resourceTracker *resourceTracker
	closeOnce       sync.Once
}

// NewService validates conf and connects the configured transport.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigurationError("connection factory", conf.ConnectionFactory, err)
	}

	log.Info("Creating msgkit service", loggingpkg.LogFields{
		"transport":          conf.Transport,
		"connection_factory": conf.ConnectionFactory,
		"config":             conf,
	})

	var t transportpkg.Transport
	if deps.Transport != nil {
		t = *deps.Transport
	} else {
		var err error
		t, err = buildTransport(ctx, conf, loggingpkg.NewWatermillAdapter(log))
		if err != nil {
			return nil, &errspkg.TransportError{Op: "connect", Err: err}
		}
	}

	metrics := NewMetrics(deps.Registerer)
	if err := metrics.Register(); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Service{
		Conf:            conf,
		Logger:          log,
		publisher:       t.Publisher,
		subscriber:      t.Subscriber,
		metrics:         metrics,
		gatherer:        gatherer,
		resourceTracker: newResourceTracker(),
	}

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		_ = s.Close()
		return nil, err
	}
	if conf.MetricsPort > 0 {
		s.RegisterHTTPHandler(conf.MetricsPort, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
		s.RegisterHTTPHandler(conf.MetricsPort, "/api/status", http.HandlerFunc(s.handleGetStatus))
	}
	return s, nil
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// Metrics exposes the service collectors.
func (s *Service) Metrics() *Metrics { return s.metrics }

// Capabilities reports what the configured transport supports.
func (s *Service) Capabilities() transportpkg.Capabilities {
	return transportpkg.GetCapabilities(s.Conf.Transport)
}

// Pipeline returns a producer publishing on topic with the given identity.
func (s *Service) Pipeline(topic string, provenance envelope.Provenance) (*producer.Pipeline, error) {
	return producer.New(s.publisher, topic, provenance,
		producer.WithLogger(s.Logger),
		producer.WithObserver(s.metrics),
	)
}

// NewTailer returns a tailer sending through sender.
func (s *Service) NewTailer(sender producer.TextSender, opts ...tailer.Option) (*tailer.Tailer, error) {
	opts = append([]tailer.Option{tailer.WithObserver(s.metrics)}, opts...)
	return tailer.New(sender, s.Logger, opts...)
}

// NewListener returns a controller for topic using the service middleware
// chain. The controller is reported on /api/status.
func (s *Service) NewListener(topic string, strategy listener.Strategy, opts ...listener.Option) (*listener.Controller, error) {
	s.middlewaresMu.RLock()
	mws := append([]message.HandlerMiddleware(nil), s.middlewares...)
	s.middlewaresMu.RUnlock()

	base := []listener.Option{
		listener.WithMiddlewares(mws...),
		listener.WithMetrics(s.metrics),
	}
	c, err := listener.New(s.subscriber, topic, strategy, s.Logger, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	s.listenersMu.Lock()
	s.listeners = append(s.listeners, c)
	s.listenersMu.Unlock()
	return c, nil
}

// NewHeapstalk returns a heapstalk strategy reporting heap usage.
func (s *Service) NewHeapstalk() *listener.Heapstalk {
	return listener.NewHeapstalk(s.Logger, listener.WithMemoryProbe(s.resourceTracker.HeapBytes))
}

// RegisterHTTPHandler mounts handler on the server for port.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

// Serve runs the registered HTTP servers until ctx is cancelled. It returns
// immediately when none are registered.
func (s *Service) Serve(ctx context.Context) error {
	s.httpServersMu.Lock()
	servers := make([]*http.Server, 0, len(s.httpServers))
	for port, mux := range s.httpServers {
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		})
	}
	s.httpServersMu.Unlock()

	if len(servers) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

// Close stops all listeners and closes the transport.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.listenersMu.RLock()
		for _, c := range s.listeners {
			c.Stop()
		}
		s.listenersMu.RUnlock()

		var errs []error
		if s.publisher != nil {
			errs = append(errs, s.publisher.Close())
		}
		if s.subscriber != nil && any(s.subscriber) != any(s.publisher) {
			errs = append(errs, s.subscriber.Close())
		}
		err = errors.Join(errs...)
	})
	return err
}
