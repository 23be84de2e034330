package listener

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	charsetpkg "github.com/drblury/msgkit/internal/runtime/charset"
	errspkg "github.com/drblury/msgkit/internal/runtime/errors"
	loggingpkg "github.com/drblury/msgkit/internal/runtime/logging"
)

// ReceiverOption customises a Receiver.
type ReceiverOption func(*Receiver)

// WithWriterFactory replaces the default stdout sink.
func WithWriterFactory(f WriterFactory) ReceiverOption {
	return func(r *Receiver) {
		if f != nil {
			r.factory = f
		}
	}
}

// WithEncoding sets the output charset. UTF-8 is the default.
func WithEncoding(name string) ReceiverOption {
	return func(r *Receiver) {
		if name != "" {
			r.encoding = name
		}
	}
}

// Receiver writes every text payload to its sink, one message per line.
type Receiver struct {
	logger   loggingpkg.ServiceLogger
	factory  WriterFactory
	encoding string

	mu   sync.Mutex
	sink io.WriteCloser
	out  *bufio.Writer
}

// NewReceiver builds a Receiver writing to stdout unless overridden.
func NewReceiver(logger loggingpkg.ServiceLogger, opts ...ReceiverOption) *Receiver {
	if logger == nil {
		logger = loggingpkg.Nop()
	}
	r := &Receiver{
		logger:   logger,
		factory:  StdoutSink(),
		encoding: charsetpkg.Default,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle writes d to the sink. Bytes and unknown payloads write a notice
// line and return an error.
func (r *Receiver) Handle(_ context.Context, d Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.open(); err != nil {
		return err
	}
	if r.out == nil {
		return nil
	}

	var result error
	switch d.Kind {
	case PayloadText:
		_, err := r.out.WriteString(d.Text() + "\n")
		if err != nil {
			return &errspkg.IOError{Op: "write", Err: err}
		}
	case PayloadBytes:
		_, _ = r.out.WriteString("BytesMessage not supported at this time.\n")
		result = errspkg.ErrBinaryUnsupported
	default:
		_, _ = fmt.Fprintf(r.out, "Unknown message type: %s\n", d.ContentType)
		result = fmt.Errorf("%w: %s", errspkg.ErrUnsupportedPayload, d.ContentType)
	}

	if err := r.out.Flush(); err != nil {
		return &errspkg.IOError{Op: "flush", Err: err}
	}
	return result
}

// open creates the sink lazily. An unsupported charset is logged once; the
// sink stays open and later writes are skipped.
func (r *Receiver) open() error {
	if r.sink != nil {
		return nil
	}
	sink, err := r.factory()
	if err != nil {
		return err
	}
	r.sink = sink

	w, err := charsetpkg.NewWriter(sink, r.encoding)
	if err != nil {
		r.logger.Error("Bad encoding", err, loggingpkg.LogFields{"encoding": r.encoding})
		return nil
	}
	r.out = bufio.NewWriter(w)
	return nil
}

// Close flushes and closes the sink.
func (r *Receiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sink == nil {
		return nil
	}
	if r.out != nil {
		_ = r.out.Flush()
	}
	err := r.sink.Close()
	r.sink = nil
	r.out = nil
	return err
}
