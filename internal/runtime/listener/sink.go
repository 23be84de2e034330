package listener

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	errspkg "github.com/drblury/msgkit/internal/runtime/errors"
)

// WriterFactory opens the receiver output on first use.
type WriterFactory func() (io.WriteCloser, error)

// Rotation configures size or age based rotation of a file sink.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Enabled reports whether any rotation setting is present.
func (r Rotation) Enabled() bool {
	return r.MaxSizeMB > 0 || r.MaxBackups > 0 || r.MaxAgeDays > 0 || r.Compress
}

// StdoutSink writes to the process stdout. Closing it leaves stdout open.
func StdoutSink() WriterFactory {
	return func() (io.WriteCloser, error) {
		return nopCloser{Writer: os.Stdout}, nil
	}
}

// FileSink truncates and writes path, or hands it to lumberjack when
// rotation is enabled.
func FileSink(path string, rotation Rotation) WriterFactory {
	return func() (io.WriteCloser, error) {
		if rotation.Enabled() {
			return &lumberjack.Logger{
				Filename:   path,
				MaxSize:    rotation.MaxSizeMB,
				MaxBackups: rotation.MaxBackups,
				MaxAge:     rotation.MaxAgeDays,
				Compress:   rotation.Compress,
			}, nil
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, &errspkg.IOError{Op: "open", Path: path, Err: err}
		}
		return f, nil
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
