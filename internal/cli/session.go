package cli

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/drblury/msgkit/internal/runtime"
	configpkg "github.com/drblury/msgkit/internal/runtime/config"
	loggingpkg "github.com/drblury/msgkit/internal/runtime/logging"
	"github.com/drblury/msgkit/internal/runtime/naming"
	transportpkg "github.com/drblury/msgkit/transport"
)

// Overridable in tests.
var (
	newService          = runtime.NewService
	serviceDependencies = func() runtime.ServiceDependencies { return runtime.ServiceDependencies{} }
)

// session is one resolved connection factory and destination with a
// connected service.
type session struct {
	logger loggingpkg.ServiceLogger
	conf   *configpkg.Config
	dest   naming.Destination
	svc    *runtime.Service
}

// resolve looks up the connection factory and the destination without
// connecting.
func resolve(opts *rootOptions, destination string) (*configpkg.Config, naming.Destination, error) {
	names, err := naming.Load(opts.jndi())
	if err != nil {
		return nil, naming.Destination{}, err
	}
	conf, err := names.ResolveConnectionFactory(opts.connectionFactory())
	if err != nil {
		return nil, naming.Destination{}, err
	}
	dest, err := names.ResolveDestination(destination)
	if err != nil {
		return nil, naming.Destination{}, err
	}

	conf.DestinationKind = dest.Kind
	if app := opts.app(); app != "" {
		conf.AppName = app
	}
	conf.MetricsPort = opts.metricsPort()
	return conf, dest, nil
}

func openSession(ctx context.Context, cmd *cobra.Command, opts *rootOptions, destination, encoding string) (*session, error) {
	logger := loggingpkg.New(cmd.ErrOrStderr(), opts.logLevel())

	conf, dest, err := resolve(opts, destination)
	if err != nil {
		return nil, err
	}
	if encoding != "" {
		conf.Encoding = encoding
	}

	if transportpkg.DefaultRegistry.Has(conf.Transport) {
		if caps := transportpkg.GetCapabilities(conf.Transport); !caps.SupportsKind(dest.Kind) {
			logger.Info("Destination kind is not supported by the transport, delivery semantics may differ", loggingpkg.LogFields{
				"transport":   conf.Transport,
				"destination": dest.Physical,
				"kind":        dest.Kind,
			})
		}
	}

	deps := serviceDependencies()
	if loggingpkg.ParseLevel(opts.logLevel()) < loggingpkg.ParseLevel("debug") {
		deps.Middlewares = append(deps.Middlewares, runtime.DeliveryHooksMiddleware(runtime.LoggingHooks(logger)))
	}

	svc, err := newService(ctx, conf, logger, deps)
	if err != nil {
		return nil, err
	}
	return &session{logger: logger, conf: conf, dest: dest, svc: svc}, nil
}

// run executes work next to the service's HTTP servers. The servers are
// shut down once work returns.
func (s *session) run(ctx context.Context, work func(ctx context.Context) error) error {
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error {
		defer cancel()
		return work(gctx)
	})
	g.Go(func() error {
		return s.svc.Serve(gctx)
	})
	return g.Wait()
}

func (s *session) Close() {
	if err := s.svc.Close(); err != nil {
		s.logger.Error("Failed to close connection", err, nil)
	}
}
