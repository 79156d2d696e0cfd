package adapters

import (
	"strings"

	"github.com/aiperf/aiperf/internal/models"
)

// ChatAdapter implements the chat/completions endpoint contract
type ChatAdapter struct{}

func (ChatAdapter) Metadata() Metadata {
	return Metadata{
		EndpointPath:      "/v1/chat/completions",
		SupportsStreaming: true,
		ProducesTokens:    true,
		TokenizesInput:    true,
		SupportsAudio:     true,
		SupportsImages:    true,
		SupportsVideos:    true,
		MetricsTitle:      "LLM Metrics",
	}
}

// FormatPayload builds messages[] from every turn, one message per turn
//. A turn with exactly one text content part and nothing else uses a
// flat string "content" field instead of a content-parts array, the
// Dynamo-compatibility hotfix.
func (a ChatAdapter) FormatPayload(info RequestInfo) (map[string]any, error) {
	messages := make([]map[string]any, 0, len(info.Turns))
	var model string

	for _, turn := range info.Turns {
		if model == "" {
			model = modelName(turn, info.PrimaryModelName)
		}
		msg, err := a.buildMessage(turn)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	payload := map[string]any{
		"model":    model,
		"messages": messages,
		"stream":   info.Streaming,
	}
	return mergeExtraParams(payload, info.ExtraParams), nil
}

func (a ChatAdapter) buildMessage(turn models.Turn) (map[string]any, error) {
	role := turn.Role
	if role == "" {
		role = "user"
	}

	onlyText := len(turn.Texts) == 1 && len(turn.Images) == 0 && len(turn.Audios) == 0 && len(turn.Videos) == 0
	if onlyText {
		return map[string]any{"role": role, "content": turn.Texts[0].Text}, nil
	}

	var parts []map[string]any
	for _, t := range turn.Texts {
		if t.Text == "" {
			continue
		}
		parts = append(parts, map[string]any{"type": "text", "text": t.Text})
	}
	for _, img := range turn.Images {
		parts = append(parts, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": img.URLOrData},
		})
	}
	for _, aud := range turn.Audios {
		format, data, ok := strings.Cut(aud.URLOrData, ",")
		if !ok {
			return nil, newAdapterErr("format_payload", `audio content must be "format,base64data"`)
		}
		parts = append(parts, map[string]any{
			"type":        "input_audio",
			"input_audio": map[string]any{"data": data, "format": format},
		})
	}
	for _, vid := range turn.Videos {
		parts = append(parts, map[string]any{
			"type":      "video_url",
			"video_url": map[string]any{"url": vid.URLOrData},
		})
	}

	if turn.MaxTokens != nil {
		return map[string]any{"role": role, "content": parts, "max_tokens": *turn.MaxTokens}, nil
	}
	return map[string]any{"role": role, "content": parts}, nil
}

// ParseResponse branches on the "object" field: chat.completion carries a
// full message under choices[0].message; chat.completion.chunk carries a
// delta under choices[0].delta.
func (a ChatAdapter) ParseResponse(raw []byte) (*models.ParsedResponse, error) {
	v, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}

	object, _ := v["object"].(string)
	choices, _ := v["choices"].([]any)
	if len(choices) == 0 {
		return nil, nil
	}
	choice, _ := choices[0].(map[string]any)

	var body map[string]any
	switch object {
	case "chat.completion":
		body, _ = choice["message"].(map[string]any)
	case "chat.completion.chunk":
		body, _ = choice["delta"].(map[string]any)
	default:
		return nil, nil
	}
	if body == nil {
		return nil, nil
	}

	content, _ := body["content"].(string)
	reasoning := preferReasoningField(body)

	parsed := &models.ParsedResponse{Usage: parseUsage(v)}
	if reasoning != "" || content != "" {
		parsed.Kind = models.ResponseReasoning
		parsed.Reasoning = &models.ReasoningResponseData{Content: content, Reasoning: reasoning}
	} else {
		return nil, nil
	}
	return parsed, nil
}

// preferReasoningField implements "Prefer reasoning_content >
// reasoning" precedence rule.
func preferReasoningField(body map[string]any) string {
	if v, ok := body["reasoning_content"].(string); ok && v != "" {
		return v
	}
	if v, ok := body["reasoning"].(string); ok {
		return v
	}
	return ""
}

func parseUsage(v map[string]any) *models.Usage {
	u, ok := v["usage"].(map[string]any)
	if !ok {
		return nil
	}
	return &models.Usage{
		PromptTokens:     intField(u, "prompt_tokens"),
		CompletionTokens: intField(u, "completion_tokens"),
		TotalTokens:      intField(u, "total_tokens"),
		ReasoningTokens:  reasoningTokens(u),
	}
}

func reasoningTokens(u map[string]any) int {
	details, ok := u["completion_tokens_details"].(map[string]any)
	if !ok {
		return 0
	}
	return intField(details, "reasoning_tokens")
}

func intField(m map[string]any, key string) int {
	f, ok := m[key].(float64)
	if !ok {
		return 0
	}
	return int(f)
}
