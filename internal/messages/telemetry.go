package messages

import "github.com/aiperf/aiperf/internal/models"

// TelemetryRecordsMessage forwards one poll's worth of GPU snapshots from
// the Telemetry Manager to the Records Manager, over the same PUSH channel
// used for metric records.
type TelemetryRecordsMessage struct {
	Envelope
	Records []models.TelemetryRecord `json:"records"`
}

func (m *TelemetryRecordsMessage) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeTelemetryRecords, "", func() Message {
		return &TelemetryRecordsMessage{Envelope: Envelope{MessageType: TypeTelemetryRecords}}
	})
}

// TelemetryStatusMessage is sent once at Telemetry Manager startup,
// reporting which DCGM endpoints were reachable.
type TelemetryStatusMessage struct {
	Envelope
	Enabled           bool     `json:"enabled"`
	Reason            string   `json:"reason,omitempty"`
	EndpointsTested   []string `json:"endpoints_tested"`
	EndpointsReachable []string `json:"endpoints_reachable"`
}

func (m *TelemetryStatusMessage) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeTelemetryStatus, "", func() Message {
		return &TelemetryStatusMessage{Envelope: Envelope{MessageType: TypeTelemetryStatus}}
	})
}
