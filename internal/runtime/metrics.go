package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "msgkit"

// Metrics records producer, tailer and listener activity. It satisfies the
// observer interfaces of those packages.
type Metrics struct {
	mu sync.RWMutex

	sent         map[string]uint64
	sendFailures map[string]uint64
	chunks       map[string]uint64
	deliveries   map[string]uint64
	handleErrors uint64
	lastSendAt   time.Time
	lastRecvAt   time.Time

	// Prometheus collectors
	messagesTotal   *prometheus.CounterVec
	sendSeconds     *prometheus.HistogramVec
	chunksTotal     *prometheus.CounterVec
	deliveriesTotal *prometheus.CounterVec
	handleSeconds   *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// MetricsSnapshot is the JSON view served on /api/status.
type MetricsSnapshot struct {
	Sent          map[string]uint64 `json:"sent"`
	SendFailures  map[string]uint64 `json:"send_failures"`
	Chunks        map[string]uint64 `json:"chunks"`
	Deliveries    map[string]uint64 `json:"deliveries"`
	HandleErrors  uint64            `json:"handle_errors"`
	LastSentAt    time.Time         `json:"last_sent_at,omitempty"`
	LastReceiveAt time.Time         `json:"last_received_at,omitempty"`
	CollectedAt   time.Time         `json:"collected_at"`
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newHistogramVec(subsystem, name, help string, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		labels,
	)
}

// NewMetrics creates the collectors. A nil registerer uses the Prometheus
// default registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		sent:            make(map[string]uint64),
		sendFailures:    make(map[string]uint64),
		chunks:          make(map[string]uint64),
		deliveries:      make(map[string]uint64),
		registerer:      registerer,
		messagesTotal:   newCounterVec("producer", "messages_total", "Messages published, by payload source and result", []string{"type", "result"}),
		sendSeconds:     newHistogramVec("producer", "send_duration_seconds", "Time spent in a single publish call", []string{"type"}),
		chunksTotal:     newCounterVec("tailer", "chunks_total", "FIFO chunks flushed, by result", []string{"result"}),
		deliveriesTotal: newCounterVec("listener", "deliveries_total", "Messages delivered to a listener, by payload kind and result", []string{"kind", "result"}),
		handleSeconds:   newHistogramVec("listener", "handle_duration_seconds", "Time spent handling one delivery", []string{"kind"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.messagesTotal,
		m.sendSeconds,
		m.chunksTotal,
		m.deliveriesTotal,
		m.handleSeconds,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			// Check if it's already registered (not an error)
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveSend records one publish attempt.
func (m *Metrics) ObserveSend(messageType string, err error, elapsed time.Duration) {
	m.messagesTotal.WithLabelValues(messageType, result(err)).Inc()
	m.sendSeconds.WithLabelValues(messageType).Observe(elapsed.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.sendFailures[messageType]++
		return
	}
	m.sent[messageType]++
	m.lastSendAt = time.Now()
}

// ObserveChunk records a tailer flush outcome.
func (m *Metrics) ObserveChunk(outcome string) {
	m.chunksTotal.WithLabelValues(outcome).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[outcome]++
}

// ObserveDelivery records one listener delivery.
func (m *Metrics) ObserveDelivery(kind string, err error) {
	m.deliveriesTotal.WithLabelValues(kind, result(err)).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[kind]++
	if err != nil {
		m.handleErrors++
	}
	m.lastRecvAt = time.Now()
}

// ObserveHandle records the duration of one strategy call.
func (m *Metrics) ObserveHandle(kind string, elapsed time.Duration) {
	m.handleSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// Snapshot returns a copy of the in-process counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MetricsSnapshot{
		Sent:          cloneCounts(m.sent),
		SendFailures:  cloneCounts(m.sendFailures),
		Chunks:        cloneCounts(m.chunks),
		Deliveries:    cloneCounts(m.deliveries),
		HandleErrors:  m.handleErrors,
		LastSentAt:    m.lastSendAt,
		LastReceiveAt: m.lastRecvAt,
		CollectedAt:   time.Now(),
	}
}

func cloneCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
