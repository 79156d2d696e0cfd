package adapters

import "github.com/aiperf/aiperf/internal/models"

// RankingsAdapter implements the single-turn /v1/ranking contract
//
// The ranking API names the two text roles "query" and "passages" but the shared Turn
// model carries only a flat Texts list (no per-item role tag). This adapter
// treats the first non-empty text as the query and every remaining
// non-empty text as a passage — the convention the dataset side is expected
// to follow when assembling a rankings conversation. See DESIGN.md.
type RankingsAdapter struct{}

func (RankingsAdapter) Metadata() Metadata {
	return Metadata{
		EndpointPath: "/v1/ranking",
		MetricsTitle: "Rankings Metrics",
	}
}

func (a RankingsAdapter) FormatPayload(info RequestInfo) (map[string]any, error) {
	if len(info.Turns) == 0 {
		return nil, newAdapterErr("format_payload", "rankings requires exactly one turn")
	}
	texts := info.Turns[0].NonEmptyTexts()
	if len(texts) == 0 {
		return nil, newAdapterErr("format_payload", "rankings requires a query")
	}

	payload := map[string]any{
		"model":    modelName(info.Turns[0], info.PrimaryModelName),
		"query":    map[string]any{"text": texts[0]},
		"passages": passagesFrom(texts[1:]),
	}
	return mergeExtraParams(payload, info.ExtraParams), nil
}

func passagesFrom(texts []string) []map[string]any {
	passages := make([]map[string]any, 0, len(texts))
	for _, t := range texts {
		passages = append(passages, map[string]any{"text": t})
	}
	return passages
}

// ParseResponse passes the "rankings" array through verbatim.
func (a RankingsAdapter) ParseResponse(raw []byte) (*models.ParsedResponse, error) {
	v, err := decodeRaw(raw)
	if err != nil {
		return nil, err
	}
	rankingsRaw, ok := v["rankings"].([]any)
	if !ok {
		return nil, nil
	}
	rankings := make([]map[string]any, 0, len(rankingsRaw))
	for _, r := range rankingsRaw {
		if m, ok := r.(map[string]any); ok {
			rankings = append(rankings, m)
		}
	}
	return &models.ParsedResponse{
		Kind:     models.ResponseRankings,
		Rankings: &models.RankingsResponseData{Rankings: rankings},
		Usage:    parseUsage(v),
	}, nil
}
