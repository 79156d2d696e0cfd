package adapters

import (
	"strings"

	"github.com/aiperf/aiperf/internal/models"
)

// CompletionsAdapter implements the single-turn /v1/completions contract.
type CompletionsAdapter struct{}

func (CompletionsAdapter) Metadata() Metadata {
	return Metadata{
		EndpointPath:      "/v1/completions",
		SupportsStreaming: true,
		ProducesTokens:    true,
		TokenizesInput:    true,
		MetricsTitle:      "LLM Metrics",
	}
}

// FormatPayload concatenates the (only) turn's non-empty text contents into
// a flat "prompt" string.
func (a CompletionsAdapter) FormatPayload(info RequestInfo) (map[string]any, error) {
	if len(info.Turns) == 0 {
		return nil, newAdapterErr("format_payload", "completions requires exactly one turn")
	}
	turn := info.Turns[0]
	prompt := strings.Join(turn.NonEmptyTexts(), " ")

	payload := map[string]any{
		"model":  modelName(turn, info.PrimaryModelName),
		"prompt": prompt,
		"stream": info.Streaming,
	}
	return mergeExtraParams(payload, info.ExtraParams), nil
}

// ParseResponse reads choices[0].text.
func (a CompletionsAdapter) ParseResponse(raw []byte) (*models.ParsedResponse, error) {
	v, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}
	choices, _ := v["choices"].([]any)
	if len(choices) == 0 {
		return nil, nil
	}
	choice, _ := choices[0].(map[string]any)
	text, _ := choice["text"].(string)
	if text == "" {
		return nil, nil
	}
	return &models.ParsedResponse{
		Kind:  models.ResponseText,
		Text:  &models.TextResponseData{Text: text},
		Usage: parseUsage(v),
	}, nil
}
