// Package tailer follows a named pipe or growing file and forwards newly
// written lines as batched text messages.
package tailer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/drblury/msgkit/internal/runtime/envelope"
	errspkg "github.com/drblury/msgkit/internal/runtime/errors"
	loggingpkg "github.com/drblury/msgkit/internal/runtime/logging"
	"github.com/drblury/msgkit/internal/runtime/producer"
)

// DefaultPollInterval is the idle sleep between reads at end of stream.
const DefaultPollInterval = 100 * time.Millisecond

// nullChunk is the chunk built from a lone "null" line; it is never sent.
const nullChunk = "null\n"

// Chunk results reported to the Observer.
const (
	ResultSent    = "sent"
	ResultDropped = "dropped"
	ResultSkipped = "skipped"
)

// Observer is notified about every flushed or discarded chunk.
type Observer interface {
	ObserveChunk(result string)
}

// Option customises a Tailer.
type Option func(*Tailer)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(t *Tailer) {
		if d > 0 {
			t.poll = d
		}
	}
}

// WithWatch enables fsnotify wake-ups so writes end the idle sleep early.
func WithWatch(enabled bool) Option {
	return func(t *Tailer) { t.watch = enabled }
}

// WithObserver registers a chunk observer.
func WithObserver(o Observer) Option {
	return func(t *Tailer) { t.observer = o }
}

// Tailer batches lines into chunks and sends each chunk when the input goes
// quiet.
type Tailer struct {
	sender   producer.TextSender
	logger   loggingpkg.ServiceLogger
	observer Observer
	poll     time.Duration
	watch    bool
}

// New creates a Tailer that sends through sender.
func New(sender producer.TextSender, logger loggingpkg.ServiceLogger, opts ...Option) (*Tailer, error) {
	if sender == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	t := &Tailer{
		sender: sender,
		logger: logger,
		poll:   DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Tail opens path once and runs the read loop on it until ctx is cancelled
// or a read fails. The file is closed on cancellation so a read blocked on a
// FIFO returns. On a FIFO an unterminated last line is sent with its chunk
// once the writer closes; on a regular file it is held until completed.
func (t *Tailer) Tail(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &errspkg.IOError{Op: "open", Path: path, Err: err}
	}
	stop := context.AfterFunc(ctx, func() { _ = f.Close() })
	defer func() {
		if stop() {
			_ = f.Close()
		}
	}()

	var wake <-chan fsnotify.Event
	if t.watch {
		watcher, werr := fsnotify.NewWatcher()
		if werr != nil {
			t.logger.Error("fsnotify unavailable, polling only", werr, loggingpkg.LogFields{"path": path})
		} else {
			defer func() { _ = watcher.Close() }()
			if werr = watcher.Add(filepath.Dir(path)); werr != nil {
				t.logger.Error("Failed to watch fifo directory", werr, loggingpkg.LogFields{"path": path})
			} else {
				wake = filterEvents(ctx, watcher, path)
			}
		}
	}

	info, err := f.Stat()
	if err != nil {
		return &errspkg.IOError{Op: "stat", Path: path, Err: err}
	}
	pipe := info.Mode()&os.ModeNamedPipe != 0

	t.logger.Info("Tailing fifo", loggingpkg.LogFields{"path": path, "named_pipe": pipe})
	err = t.run(ctx, f, path, pipe, wake)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Run reads r until ctx is cancelled or a read error occurs. A partial line
// at end of stream is held until it is completed or ctx is cancelled.
func (t *Tailer) Run(ctx context.Context, r io.Reader) error {
	return t.run(ctx, r, "", false, nil)
}

func (t *Tailer) run(ctx context.Context, r io.Reader, path string, pipe bool, wake <-chan fsnotify.Event) error {
	reader := bufio.NewReader(r)
	var (
		chunk   strings.Builder
		partial strings.Builder
	)

	for {
		line, err := reader.ReadString('\n')
		if strings.HasSuffix(line, "\n") {
			partial.WriteString(line[:len(line)-1])
			completeLine(&chunk, &partial)
			continue
		}
		partial.WriteString(line)

		if err != nil && !errors.Is(err, io.EOF) {
			if ctx.Err() != nil {
				t.drain(ctx, &chunk, &partial)
				return ctx.Err()
			}
			return &errspkg.IOError{Op: "read", Path: path, Err: err}
		}

		if ctx.Err() != nil {
			t.drain(ctx, &chunk, &partial)
			return ctx.Err()
		}

		// EOF on a FIFO means the writer closed, so its last line is complete.
		if pipe && partial.Len() > 0 {
			completeLine(&chunk, &partial)
		}
		t.flush(ctx, &chunk)

		if !t.sleep(ctx, wake) {
			t.drain(ctx, &chunk, &partial)
			return ctx.Err()
		}
	}
}

// drain flushes whatever is buffered once the loop has been cancelled.
func (t *Tailer) drain(ctx context.Context, chunk, partial *strings.Builder) {
	if partial.Len() > 0 {
		completeLine(chunk, partial)
	}
	t.flush(context.WithoutCancel(ctx), chunk)
}

// completeLine moves partial into chunk as a terminated line.
func completeLine(chunk, partial *strings.Builder) {
	chunk.WriteString(strings.TrimSuffix(partial.String(), "\r"))
	chunk.WriteByte('\n')
	partial.Reset()
}

func (t *Tailer) flush(ctx context.Context, chunk *strings.Builder) {
	if chunk.Len() == 0 {
		return
	}
	text := chunk.String()
	chunk.Reset()

	if text == nullChunk {
		t.observe(ResultSkipped)
		return
	}
	if err := t.sender.SendText(ctx, text, envelope.TypeFIFO); err != nil {
		t.logger.Error("Failed to send fifo chunk", err, loggingpkg.LogFields{"size": len(text)})
		t.observe(ResultDropped)
		return
	}
	t.observe(ResultSent)
}

func (t *Tailer) sleep(ctx context.Context, wake <-chan fsnotify.Event) bool {
	timer := time.NewTimer(t.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	case <-wake:
	}
	return true
}

func (t *Tailer) observe(result string) {
	if t.observer != nil {
		t.observer.ObserveChunk(result)
	}
}

// filterEvents forwards write and create events for path only.
func filterEvents(ctx context.Context, watcher *fsnotify.Watcher, path string) <-chan fsnotify.Event {
	out := make(chan fsnotify.Event, 1)
	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					continue
				}
				select {
				case out <- ev:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out
}
