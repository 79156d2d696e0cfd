// Package models holds the plain data types: conversations/turns,
// request records, parsed responses, metric records, and telemetry records.
// None of these are messages themselves (see internal/messages for the
// envelope); they are the payloads messages carry.
package models

// MediaItem is one piece of turn content. Only the field matching Kind is
// populated; the rest are the zero value.
type MediaItem struct {
	Kind string `json:"kind"` // "text" | "image" | "audio" | "video"
	Text string `json:"text,omitempty"`
	// URLOrData holds a URL or inline base64 payload depending on the
	// adapter; for audio it is the raw "format,base64data" string the chat
	// requires adapters to split themselves.
	URLOrData string `json:"data,omitempty"`
}

// Turn is one turn of a Conversation.
type Turn struct {
	Model     string      `json:"model,omitempty"`
	Role      string      `json:"role,omitempty"`
	MaxTokens *int        `json:"max_tokens,omitempty"`
	Texts     []MediaItem `json:"texts,omitempty"`
	Images    []MediaItem `json:"images,omitempty"`
	Audios    []MediaItem `json:"audios,omitempty"`
	Videos    []MediaItem `json:"videos,omitempty"`

	// TimestampNs is set for fixed-schedule conversations.
	TimestampNs *int64 `json:"timestamp_ns,omitempty"`
	// DelayNs is the wait before sending this turn relative to the previous one.
	DelayNs *int64 `json:"delay_ns,omitempty"`
}

// NonEmptyTexts returns the turn's text contents with blanks removed, the
// rule every single-turn adapter (completions/embeddings/rankings) uses to
// build its flat payload.
func (t Turn) NonEmptyTexts() []string {
	out := make([]string, 0, len(t.Texts))
	for _, m := range t.Texts {
		if m.Text != "" {
			out = append(out, m.Text)
		}
	}
	return out
}

// Conversation is an ordered list of Turns identified by SessionID.
type Conversation struct {
	SessionID string `json:"session_id"`
	Turns     []Turn `json:"turns"`
}
