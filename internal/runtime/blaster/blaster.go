// Package blaster sends one payload repeatedly and reports throughput.
package blaster

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/drblury/msgkit/internal/runtime/envelope"
	loggingpkg "github.com/drblury/msgkit/internal/runtime/logging"
	"github.com/drblury/msgkit/internal/runtime/producer"
)

// ProgressEvery is the message interval between progress lines.
const ProgressEvery = 100

const timestampLayout = "2006-01-02 @ 15:04:05"

// Report summarises one run.
type Report struct {
	Sent    int
	Failed  int
	Start   time.Time
	End     time.Time
	Elapsed time.Duration
}

// Option customises a Blaster.
type Option func(*Blaster)

// WithPayload sets the text sent on every iteration. An empty payload is
// replaced per message by the app name followed by the sequence number.
func WithPayload(text string, messageType envelope.MessageType) Option {
	return func(b *Blaster) {
		b.payload = text
		b.messageType = messageType
	}
}

// WithAppName sets the prefix used for empty payloads.
func WithAppName(app string) Option {
	return func(b *Blaster) { b.app = app }
}

// WithCorrelationID is echoed in the report header.
func WithCorrelationID(id string) Option {
	return func(b *Blaster) { b.correlationID = id }
}

// WithThreads records the requested thread count. Only one is used.
func WithThreads(n int) Option {
	return func(b *Blaster) { b.threads = n }
}

// WithLogger sets the logger used for send failures.
func WithLogger(logger loggingpkg.ServiceLogger) Option {
	return func(b *Blaster) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Blaster) {
		if now != nil {
			b.now = now
		}
	}
}

// Blaster sends sequentially on a single goroutine.
type Blaster struct {
	sender        producer.TextSender
	out           io.Writer
	logger        loggingpkg.ServiceLogger
	payload       string
	messageType   envelope.MessageType
	app           string
	correlationID string
	threads       int
	now           func() time.Time
}

// New creates a Blaster writing its report to out.
func New(sender producer.TextSender, out io.Writer, opts ...Option) *Blaster {
	b := &Blaster{
		sender:      sender,
		out:         out,
		logger:      loggingpkg.Nop(),
		messageType: envelope.TypeRandom,
		threads:     1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run sends count messages. Failed sends are logged and counted. A cancelled
// ctx ends the loop early with a partial report.
func (b *Blaster) Run(ctx context.Context, count int) (Report, error) {
	if b.threads > 1 {
		b.printf("Ignoring thread count argument. Only one thread supported currently.\n")
	}
	if b.correlationID != "" {
		b.printf("Correlation ID: %s\n", b.correlationID)
	}

	report := Report{Start: b.now()}
	b.printf("Starting time: %s\n", report.Start.Format(timestampLayout))

	var runErr error
	for m := 1; m <= count; m++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		text := b.payload
		if text == "" {
			text = b.app + strconv.Itoa(m)
		}
		if err := b.sender.SendText(ctx, text, b.messageType); err != nil {
			report.Failed++
			b.logger.Error("Failed to send message", err, loggingpkg.LogFields{"sequence": m})
		} else {
			report.Sent++
		}

		if m >= ProgressEvery && m%ProgressEvery == 0 {
			elapsed := b.now().Sub(report.Start).Milliseconds()
			b.printf("  * %d messages in (ms): %d - m/s: %d\n", m, elapsed, Rate(m, elapsed))
		}
	}

	report.End = b.now()
	report.Elapsed = report.End.Sub(report.Start)
	b.printf("Ending time: %s\n", report.End.Format(timestampLayout))
	b.printf("Elapsed time: %s\n", FormatElapsed(report.Elapsed))
	b.printf("Elapsed time (ms): %d\n", report.Elapsed.Milliseconds())
	return report, runErr
}

func (b *Blaster) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(b.out, format, args...)
}

// Rate is messages per second over elapsedMS, truncated. It is 0 when no
// time has elapsed.
func Rate(messages int, elapsedMS int64) int64 {
	if elapsedMS <= 0 {
		return 0
	}
	return int64(float64(messages) / float64(elapsedMS) * 1000)
}

// FormatElapsed renders d as mm:ss.SSS.
func FormatElapsed(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d.%03d", ms/60000, (ms/1000)%60, ms%1000)
}
