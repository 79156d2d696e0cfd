package adapters

import "github.com/aiperf/aiperf/internal/models"

// EmbeddingsAdapter implements the single-turn /v1/embeddings contract.
type EmbeddingsAdapter struct{}

func (EmbeddingsAdapter) Metadata() Metadata {
	return Metadata{
		EndpointPath:   "/v1/embeddings",
		TokenizesInput: true,
		MetricsTitle:   "Embeddings Metrics",
	}
}

// FormatPayload builds "input" from the turn's non-empty texts; a turn
// requesting max_tokens is rejected.
func (a EmbeddingsAdapter) FormatPayload(info RequestInfo) (map[string]any, error) {
	if len(info.Turns) == 0 {
		return nil, newAdapterErr("format_payload", "embeddings requires exactly one turn")
	}
	turn := info.Turns[0]
	if turn.MaxTokens != nil {
		return nil, newAdapterErr("format_payload", "embeddings does not support max_tokens")
	}

	payload := map[string]any{
		"model": modelName(turn, info.PrimaryModelName),
		"input": turn.NonEmptyTexts(),
	}
	return mergeExtraParams(payload, info.ExtraParams), nil
}

// ParseResponse expects every data[*].object == "embedding"; any mismatched
// entry is rejected rather than silently dropped.
func (a EmbeddingsAdapter) ParseResponse(raw []byte) (*models.ParsedResponse, error) {
	v, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}
	data, _ := v["data"].([]any)
	if len(data) == 0 {
		return nil, nil
	}

	embeddings := make([][]float64, 0, len(data))
	for _, item := range data {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, newAdapterErr("parse_response", "embeddings data item is not an object")
		}
		if obj, _ := row["object"].(string); obj != "embedding" {
			return nil, newAdapterErr("parse_response", "embeddings data item has unexpected object type "+obj)
		}
		vec, _ := row["embedding"].([]any)
		if vec == nil {
			continue
		}
		floats := make([]float64, 0, len(vec))
		for _, x := range vec {
			if f, ok := x.(float64); ok {
				floats = append(floats, f)
			}
		}
		embeddings = append(embeddings, floats)
	}
	if len(embeddings) == 0 {
		return nil, nil
	}
	return &models.ParsedResponse{
		Kind:      models.ResponseEmbedding,
		Embedding: &models.EmbeddingResponseData{Embeddings: embeddings},
		Usage:     parseUsage(v),
	}, nil
}
