// Package adapters implements endpoint adapters: one per inference
// API shape (chat, completions, embeddings, rankings), each translating a
// dataset Turn into an HTTP request body and an HTTP response chunk back
// into a models.ParsedResponse.
package adapters

import (
	"encoding/json"

	"github.com/aiperf/aiperf/internal/models"
)

// RequestInfo is everything an adapter needs to build one HTTP body: the
// turns to send (almost always length 1, except chat's multi-turn history),
// the endpoint's configured model/extra params, and whether this request is
// streaming.
type RequestInfo struct {
	Turns            []models.Turn
	PrimaryModelName string
	ExtraParams      map[string]any
	Streaming        bool
}

// Metadata describes one adapter's capabilities.
type Metadata struct {
	EndpointPath      string
	SupportsStreaming bool
	ProducesTokens    bool
	TokenizesInput    bool
	SupportsAudio     bool
	SupportsImages    bool
	SupportsVideos    bool
	MetricsTitle      string
}

// Adapter implements two functions for one endpoint type.
type Adapter interface {
	Metadata() Metadata
	FormatPayload(info RequestInfo) (map[string]any, error)
	ParseResponse(raw []byte) (*models.ParsedResponse, error)
}

// ErrAdapter is raised for adapter-level formatting/parsing violations.
type ErrAdapter struct {
	Op  string
	Msg string
}

func (e *ErrAdapter) Error() string { return "adapter: " + e.Op + ": " + e.Msg }

func newAdapterErr(op, msg string) error { return &ErrAdapter{Op: op, Msg: msg} }

// modelName prefers turn.model over the endpoint's primary model name.
func modelName(turn models.Turn, primary string) string {
	if turn.Model != "" {
		return turn.Model
	}
	return primary
}

// mergeExtraParams applies endpoint.extra onto payload after construction,
//'s shared rule. Extra params never overwrite keys the adapter
// itself is responsible for (model, messages/prompt/input) to avoid a
// misconfigured extra_params silently breaking the request shape.
func mergeExtraParams(payload map[string]any, extra map[string]any) map[string]any {
	for k, v := range extra {
		if _, exists := payload[k]; !exists {
			payload[k] = v
		}
	}
	return payload
}

// New resolves the Adapter for an endpoint type string ("chat" |
// "completions" | "embeddings" | "rankings").
func New(endpointType string) (Adapter, error) {
	switch endpointType {
	case "chat":
		return ChatAdapter{}, nil
	case "completions":
		return CompletionsAdapter{}, nil
	case "embeddings":
		return EmbeddingsAdapter{}, nil
	case "rankings":
		return RankingsAdapter{}, nil
	default:
		return nil, newAdapterErr("new", "unknown endpoint type "+endpointType)
	}
}

// decodeRaw is the shared first step of every adapter's ParseResponse: raw
// is one JSON object, either a full unary body or one SSE message's data
// field.
func decodeRaw(raw []byte) (map[string]any, error) {
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
