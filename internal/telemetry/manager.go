package telemetry

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/comms"
	"github.com/aiperf/aiperf/internal/comms/zmq"
	"github.com/aiperf/aiperf/internal/config"
	"github.com/aiperf/aiperf/internal/messages"
	"github.com/aiperf/aiperf/internal/models"
)

// NormalizeURLs dedup-normalizes user-provided DCGM URLs: append /metrics
// when missing, strip trailing slashes, prepend the default endpoint, drop
// duplicates preserving first-seen order.
func NormalizeURLs(defaultURL string, urls []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range append([]string{defaultURL}, urls...) {
		if raw == "" {
			continue
		}
		u := strings.TrimRight(raw, "/")
		if !strings.HasSuffix(u, "/metrics") {
			u += "/metrics"
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Pusher is the subset of *zmq.Pusher the manager needs to forward record
// batches to the Records Manager.
type Pusher interface {
	Push(ctx context.Context, msg messages.Message) error
}

// Manager probes the configured DCGM endpoints, starts one Collector per
// reachable endpoint, and forwards every batch as a TelemetryRecordsMessage
// over the records push channel.
type Manager struct {
	*comms.Service
	logger zerolog.Logger

	cfg       config.TelemetryConfig
	pusher    Pusher
	publisher comms.Publisher
	probe     *http.Client

	collectors []*Collector
}

// NewManager builds the Telemetry Manager service.
func NewManager(serviceID string, logger zerolog.Logger, cfg config.TelemetryConfig, subscriber *zmq.Subscriber, pusher Pusher, publisher comms.Publisher, heartbeatInterval time.Duration) *Manager {
	m := &Manager{
		logger:    logger,
		cfg:       cfg,
		pusher:    pusher,
		publisher: publisher,
		probe:     &http.Client{Timeout: cfg.ProbeTimeout},
	}

	hooks := comms.Hooks{
		OnInit: func(ctx context.Context) error {
			// Collectors have no configure behavior; wiring still ACKs the
			// controller's broadcasts.
			return comms.WireCommands(ctx, subscriber, publisher, serviceID, "telemetry_manager", logger,
				func(_ context.Context, cmd *messages.CommandMessage) error {
					if cmd.Command == messages.CommandShutdown {
						m.TriggerShutdown()
					}
					return nil
				})
		},
		OnStart: func(ctx context.Context) error {
			m.startCollectors(ctx)
			return nil
		},
	}

	m.Service = comms.NewService("telemetry_manager", serviceID, logger, publisher, heartbeatInterval, hooks, nil)
	return m
}

// startCollectors probes every normalized endpoint, reports status, and
// spawns a Collector per reachable URL. On total failure it sends a
// disabled status; the caller is expected to schedule shutdown.
func (m *Manager) startCollectors(ctx context.Context) {
	tested := NormalizeURLs(m.cfg.DefaultURL, m.cfg.URLs)
	var reachable []string
	for _, u := range tested {
		if m.probeEndpoint(ctx, u) {
			reachable = append(reachable, u)
		}
	}

	status := &messages.TelemetryStatusMessage{
		Envelope:           messages.Envelope{MessageType: messages.TypeTelemetryStatus, RequestNs: time.Now().UnixNano()},
		Enabled:            len(reachable) > 0,
		EndpointsTested:    tested,
		EndpointsReachable: reachable,
	}
	if len(reachable) == 0 {
		status.Reason = "no DCGM endpoints reachable"
	}
	m.publisher.Publish(status, "")

	for _, u := range reachable {
		c := NewCollector(u, m.cfg.PollInterval, m.logger,
			func(records []models.TelemetryRecord) { m.forward(ctx, records) },
			func(details aierrors.ErrorDetails) {
				m.logger.Warn().Str("error_type", details.Type).Str("error", details.Message).Msg("telemetry: collector error")
			})
		m.collectors = append(m.collectors, c)
		go c.Run(ctx)
	}
}

// probeEndpoint HEADs the URL, falling back to GET for exporters that
// reject HEAD.
func (m *Manager) probeEndpoint(ctx context.Context, url string) bool {
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return false
		}
		resp, err := m.probe.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 400 {
			return true
		}
	}
	return false
}

// forward wraps one batch in a TelemetryRecordsMessage and pushes it over
// the same channel metric records travel.
func (m *Manager) forward(ctx context.Context, records []models.TelemetryRecord) {
	msg := &messages.TelemetryRecordsMessage{
		Envelope: messages.Envelope{MessageType: messages.TypeTelemetryRecords, RequestNs: time.Now().UnixNano()},
		Records:  records,
	}
	if err := m.pusher.Push(ctx, msg); err != nil {
		m.logger.Error().Err(err).Msg("telemetry: records push failed")
	}
}

// Enabled reports whether any collector is running.
func (m *Manager) Enabled() bool { return len(m.collectors) > 0 }
