package models

// ResponseKind discriminates the parsed response payload union
type ResponseKind string

const (
	ResponseText       ResponseKind = "text"
	ResponseReasoning  ResponseKind = "reasoning"
	ResponseEmbedding  ResponseKind = "embedding"
	ResponseRankings   ResponseKind = "rankings"
)

// TextResponseData holds a plain-text chunk (chat/completions, object union member).
type TextResponseData struct {
	Text string `json:"text"`
}

// ReasoningResponseData holds a chat response that may carry both visible
// content and a reasoning trace; parsing fixes the precedence of the two
// possible reasoning field names.
type ReasoningResponseData struct {
	Content   string `json:"content,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// EmbeddingResponseData holds one or more embedding vectors.
type EmbeddingResponseData struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// RankingsResponseData holds a rankings array, passed through verbatim.
type RankingsResponseData struct {
	Rankings []map[string]any `json:"rankings"`
}

// Usage is the optional server-reported token usage on one response chunk.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	ReasoningTokens  int `json:"reasoning_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ParsedResponse wraps one parsed response chunk with its arrival timestamp
// and optional usage. Exactly one of Text, Reasoning, Embedding and
// Rankings is set; Kind says which.
type ParsedResponse struct {
	PerfNs int64        `json:"perf_ns"`
	Kind   ResponseKind `json:"kind"`

	Text       *TextResponseData      `json:"text,omitempty"`
	Reasoning  *ReasoningResponseData `json:"reasoning,omitempty"`
	Embedding  *EmbeddingResponseData `json:"embedding,omitempty"`
	Rankings   *RankingsResponseData  `json:"rankings,omitempty"`

	Usage *Usage `json:"usage,omitempty"`
}

// HasOutputContent reports whether this chunk carries non-reasoning output,
// the distinction TTFO (time-to-first-output-token) needs to skip
// reasoning-only chunks.
func (p ParsedResponse) HasOutputContent() bool {
	switch p.Kind {
	case ResponseText:
		return p.Text != nil && p.Text.Text != ""
	case ResponseReasoning:
		return p.Reasoning != nil && p.Reasoning.Content != ""
	case ResponseEmbedding, ResponseRankings:
		return true
	default:
		return false
	}
}

// ParsedResponseRecord is a RequestRecord plus its parsed responses and
// derived token counts.
type ParsedResponseRecord struct {
	Record *RequestRecord `json:"record"`

	Parsed []ParsedResponse `json:"parsed"`

	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	ReasoningTokens int `json:"reasoning_tokens"`
}
