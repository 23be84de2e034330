package listener

import (
	"context"
	goruntime "runtime"
	"strconv"
	"sync"

	loggingpkg "github.com/drblury/msgkit/internal/runtime/logging"
)

// DefaultHeapstalkSentinel ends a heapstalk run.
const DefaultHeapstalkSentinel = "exit"

// MemoryProbe returns the currently allocated heap in bytes.
type MemoryProbe func() uint64

// HeapstalkOption customises a Heapstalk.
type HeapstalkOption func(*Heapstalk)

// WithMemoryProbe replaces the runtime.MemStats based probe.
func WithMemoryProbe(p MemoryProbe) HeapstalkOption {
	return func(h *Heapstalk) {
		if p != nil {
			h.probe = p
		}
	}
}

// Heapstalk retains every text payload in memory so heap growth under load
// can be observed.
type Heapstalk struct {
	logger loggingpkg.ServiceLogger
	probe  MemoryProbe

	mu       sync.Mutex
	messages []string
}

func NewHeapstalk(logger loggingpkg.ServiceLogger, opts ...HeapstalkOption) *Heapstalk {
	if logger == nil {
		logger = loggingpkg.Nop()
	}
	h := &Heapstalk{logger: logger, probe: heapAlloc}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Heapstalk) Handle(_ context.Context, d Delivery) error {
	if d.Kind != PayloadText {
		return nil
	}
	h.mu.Lock()
	h.messages = append(h.messages, d.Text()+"\n")
	retained := len(h.messages)
	h.mu.Unlock()

	h.logger.Info("Message received: "+strconv.FormatInt(d.Seq, 10), loggingpkg.LogFields{
		"retained":   retained,
		"heap_bytes": h.probe(),
	})
	return nil
}

// Retained returns a copy of the stored payloads.
func (h *Heapstalk) Retained() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages...)
}

func (h *Heapstalk) Close() error { return nil }

func heapAlloc() uint64 {
	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)
	return m.HeapAlloc
}
