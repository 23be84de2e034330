package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	errspkg "github.com/drblury/msgkit/internal/runtime/errors"
	"github.com/drblury/msgkit/internal/runtime/listener"
	loggingpkg "github.com/drblury/msgkit/internal/runtime/logging"
)

var errSubscriptionClosed = errors.New("subscription closed by the broker")

// listen runs strategy on the session destination until a stop trigger
// fires or ctx is cancelled. Reaching max is reported as
// ErrMaxMessagesReached.
func (s *session) listen(ctx context.Context, strategy listener.Strategy, max int64, sentinel string) error {
	ctrl, err := s.svc.NewListener(s.dest.Physical, strategy,
		listener.WithMaxMessages(max),
		listener.WithSentinel(sentinel),
	)
	if err != nil {
		return err
	}
	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	reason, err := ctrl.Wait(ctx)
	if err != nil {
		ctrl.Stop()
		reason = ctrl.Reason()
	}

	s.logger.Info("Listener finished", loggingpkg.LogFields{
		"destination": s.dest.Physical,
		"reason":      reason.String(),
		"received":    ctrl.Count(),
	})

	switch reason {
	case listener.StopMaxMessages:
		return fmt.Errorf("%w: %d", errspkg.ErrMaxMessagesReached, max)
	case listener.StopSubscriptionClosed:
		return &errspkg.TransportError{Op: "subscribe", Topic: s.dest.Physical, Err: errSubscriptionClosed}
	}
	return nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
