package adapters

import (
	"testing"

	"github.com/aiperf/aiperf/internal/models"
)

func TestChatFormatPayloadSingleTextFlattensContent(t *testing.T) {
	a := ChatAdapter{}
	info := RequestInfo{
		Turns: []models.Turn{{
			Role:  "user",
			Texts: []models.MediaItem{{Kind: "text", Text: "hello"}},
		}},
		PrimaryModelName: "m1",
	}

	payload, err := a.FormatPayload(info)
	if err != nil {
		t.Fatalf("FormatPayload error: %v", err)
	}
	msgs, _ := payload["messages"].([]map[string]any)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	content, ok := msgs[0]["content"].(string)
	if !ok || content != "hello" {
		t.Fatalf("expected flat string content %q, got %#v", "hello", msgs[0]["content"])
	}
}

func TestChatFormatPayloadMultiModalUsesContentParts(t *testing.T) {
	a := ChatAdapter{}
	info := RequestInfo{
		Turns: []models.Turn{{
			Texts:  []models.MediaItem{{Kind: "text", Text: "hello"}},
			Images: []models.MediaItem{{Kind: "image", URLOrData: "http://x/img.png"}},
		}},
		PrimaryModelName: "m1",
	}
	payload, err := a.FormatPayload(info)
	if err != nil {
		t.Fatalf("FormatPayload error: %v", err)
	}
	msgs := payload["messages"].([]map[string]any)
	parts, ok := msgs[0]["content"].([]map[string]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("expected 2 content parts, got %#v", msgs[0]["content"])
	}
}

func TestChatFormatPayloadBadAudioFormat(t *testing.T) {
	a := ChatAdapter{}
	info := RequestInfo{
		Turns: []models.Turn{{
			Audios: []models.MediaItem{{Kind: "audio", URLOrData: "no-comma-here"}},
		}},
	}
	if _, err := a.FormatPayload(info); err == nil {
		t.Fatal("expected error for malformed audio data")
	}
}

func TestChatParseResponsePrefersReasoningContent(t *testing.T) {
	a := ChatAdapter{}
	raw := []byte(`{"object":"chat.completion.chunk","choices":[{"delta":{"reasoning_content":"rc","reasoning":"r"}}]}`)
	parsed, err := a.ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse error: %v", err)
	}
	if parsed == nil || parsed.Reasoning == nil || parsed.Reasoning.Reasoning != "rc" {
		t.Fatalf("expected reasoning_content to win, got %#v", parsed)
	}
}

func TestChatParseResponseFullCompletionReasoning(t *testing.T) {
	a := ChatAdapter{}
	raw := []byte(`{"object":"chat.completion","choices":[{"message":{"content":"Answer","reasoning_content":"Thinking","reasoning":"Ignored"}}]}`)
	parsed, err := a.ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse error: %v", err)
	}
	if parsed == nil || parsed.Reasoning == nil {
		t.Fatalf("expected reasoning data, got %#v", parsed)
	}
	if parsed.Reasoning.Content != "Answer" || parsed.Reasoning.Reasoning != "Thinking" {
		t.Fatalf("content/reasoning = %q/%q, want Answer/Thinking", parsed.Reasoning.Content, parsed.Reasoning.Reasoning)
	}
}

func TestEmbeddingsRejectsWrongObjectType(t *testing.T) {
	a := EmbeddingsAdapter{}
	raw := []byte(`{"data":[{"object":"not-embedding","embedding":[1,2]}]}`)
	if _, err := a.ParseResponse(raw); err == nil {
		t.Fatal("expected error for mismatched object type")
	}
}

func TestRankingsRequiresQuery(t *testing.T) {
	a := RankingsAdapter{}
	info := RequestInfo{Turns: []models.Turn{{}}}
	if _, err := a.FormatPayload(info); err == nil {
		t.Fatal("expected error when no query text is present")
	}
}
