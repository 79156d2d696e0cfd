package messages

import "encoding/json"

// CreditPhaseConfig configures one phase (warmup or profiling)
// Invariant: exactly one of TotalExpectedRequests / ExpectedDurationSec is
// set; both-set or both-unset is invalid (checked by config.UserConfig.Validate
// and re-asserted in internal/timing).
type CreditPhaseConfig struct {
	TotalExpectedRequests *int     `json:"total_expected_requests,omitempty"`
	ExpectedDurationSec   *float64 `json:"expected_duration_sec,omitempty"`
}

// IsRequestCountBounded reports whether this phase is bounded by request
// count rather than duration.
func (c CreditPhaseConfig) IsRequestCountBounded() bool {
	return c.TotalExpectedRequests != nil
}

// ProfileConfigurePayload is the payload of the PROFILE_CONFIGURE command:
// full run configuration broadcast to every service before PROFILE_START.
type ProfileConfigurePayload struct {
	EndpointType     string            `json:"endpoint_type"`
	EndpointBaseURL  string            `json:"endpoint_base_url"`
	CustomEndpoint   string            `json:"custom_endpoint,omitempty"`
	Streaming        bool              `json:"streaming"`
	PrimaryModelName string            `json:"primary_model_name,omitempty"`
	APIKey           string            `json:"api_key,omitempty"`
	ExtraParams      map[string]any    `json:"extra_params,omitempty"`
	URLParams        map[string]string `json:"url_params,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`

	LoadMode       string  `json:"load_mode"`
	RequestRate    float64 `json:"request_rate,omitempty"`
	MaxConcurrency int     `json:"max_concurrency"`
	RandomSeed     *int64  `json:"random_seed,omitempty"`

	Warmup    *CreditPhaseConfig `json:"warmup,omitempty"`
	Profiling CreditPhaseConfig  `json:"profiling"`

	BenchmarkGraceSec float64 `json:"benchmark_grace_period_sec,omitempty"`
	CancelAfterSec    float64 `json:"cancel_after_sec,omitempty"`
	CancelDrainSec    float64 `json:"cancel_drain_timeout_sec"`
}

// CommandMessage is the generic envelope for every addressed command in
// the run: PROFILE_CONFIGURE, PROFILE_START, PROFILE_CANCEL,
// PROCESS_RECORDS, SHUTDOWN. Payload is kept as json.RawMessage so the
// registry only needs one Go type per command name; handlers decode the
// specific payload they expect.
type CommandMessage struct {
	Envelope
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (m *CommandMessage) GetEnvelope() Envelope { return m.Envelope }

// DecodeConfigurePayload decodes m.Payload as ProfileConfigurePayload; only
// valid when m.Command == CommandProfileConfigure.
func (m *CommandMessage) DecodeConfigurePayload() (ProfileConfigurePayload, error) {
	var p ProfileConfigurePayload
	if len(m.Payload) == 0 {
		return p, nil
	}
	err := json.Unmarshal(m.Payload, &p)
	return p, err
}

func init() {
	for _, cmd := range []string{
		CommandProfileConfigure,
		CommandProfileStart,
		CommandProfileCancel,
		CommandProcessRecords,
		CommandShutdown,
	} {
		cmd := cmd
		Register(TypeCommand, cmd, func() Message {
			return &CommandMessage{Envelope: Envelope{MessageType: TypeCommand, Command: cmd}}
		})
	}
}

// CommandResponseMessage is the ACK a service publishes for every command
// it receives, correlated by command_id; the controller collects these over
// pub/sub.
type CommandResponseMessage struct {
	Envelope
	ServiceID string `json:"service_id"`
	Success   bool   `json:"success"`
	Detail    string `json:"detail,omitempty"`
}

func (m *CommandResponseMessage) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeCommandResponse, "", func() Message {
		return &CommandResponseMessage{Envelope: Envelope{MessageType: TypeCommandResponse}}
	})
}

// ErrorMessage carries ErrorDetails back from a ROUTER handler that raised,
// or a NO_RESPONSE sentinel when the handler returned nil.
type ErrorMessage struct {
	Envelope
	ErrorType    string `json:"error_type"`
	ErrorCode    int    `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message"`
}

func (m *ErrorMessage) GetEnvelope() Envelope { return m.Envelope }

// NoResponseErrorType is the ErrorType used when a ROUTER handler returns a
// nil response.
const NoResponseErrorType = "NO_RESPONSE"

func init() {
	Register(TypeError, "", func() Message {
		return &ErrorMessage{Envelope: Envelope{MessageType: TypeError}}
	})
}
