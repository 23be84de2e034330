package runtime

import (
	"net/http"
	"time"

	"github.com/drblury/msgkit/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/msgkit/internal/runtime/logging"
	transportpkg "github.com/drblury/msgkit/transport"
)

// Status is the document served on /api/status.
type Status struct {
	App               string                    `json:"app"`
	ConnectionFactory string                    `json:"connection_factory"`
	Transport         string                    `json:"transport"`
	Capabilities      transportpkg.Capabilities `json:"capabilities"`
	Listeners         []ListenerStatus          `json:"listeners"`
	Metrics           MetricsSnapshot           `json:"metrics"`
	Resources         ResourceUsage             `json:"resources"`
	CollectedAt       time.Time                 `json:"collected_at"`
}

// ListenerStatus describes one listener controller.
type ListenerStatus struct {
	Topic    string `json:"topic"`
	State    string `json:"state"`
	Received int64  `json:"received"`
	Reason   string `json:"stop_reason,omitempty"`
	// Pending is reported when the transport can count queued messages.
	Pending *int64 `json:"pending,omitempty"`
}

// Status collects the current service state.
func (s *Service) Status() Status {
	introspector, _ := s.subscriber.(transportpkg.QueueIntrospector)

	s.listenersMu.RLock()
	listeners := make([]ListenerStatus, 0, len(s.listeners))
	for _, c := range s.listeners {
		ls := ListenerStatus{
			Topic:    c.Topic(),
			State:    c.State().String(),
			Received: c.Count(),
		}
		if reason := c.Reason(); reason.String() != "none" {
			ls.Reason = reason.String()
		}
		if introspector != nil {
			if pending, err := introspector.GetPendingCount(c.Topic()); err == nil {
				ls.Pending = &pending
			} else {
				s.Logger.Debug("Failed to count pending messages", loggingpkg.LogFields{"topic": c.Topic(), "error": err.Error()})
			}
		}
		listeners = append(listeners, ls)
	}
	s.listenersMu.RUnlock()

	return Status{
		App:               s.Conf.AppName,
		ConnectionFactory: s.Conf.ConnectionFactory,
		Transport:         s.Conf.Transport,
		Capabilities:      s.Capabilities(),
		Listeners:         listeners,
		Metrics:           s.metrics.Snapshot(),
		Resources:         s.resourceTracker.Snapshot(),
		CollectedAt:       time.Now(),
	}
}

func (s *Service) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := jsoncodec.Encode(w, s.Status()); err != nil {
		s.Logger.Error("Failed to encode status", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
