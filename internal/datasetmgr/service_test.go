package datasetmgr

import (
	"testing"

	"github.com/aiperf/aiperf/internal/models"
)

func text(s string) models.MediaItem { return models.MediaItem{Kind: "text", Text: s} }

func testConversations() []models.Conversation {
	return []models.Conversation{
		{
			SessionID: "conv-1",
			Turns: []models.Turn{
				{Texts: []models.MediaItem{text("first")}},
				{Texts: []models.MediaItem{text("second")}},
			},
		},
		{
			SessionID: "conv-2",
			Turns:     []models.Turn{{Texts: []models.MediaItem{text("only")}}},
		},
	}
}

func TestStoreTurnByConversation(t *testing.T) {
	store := NewStore(testConversations(), nil)

	id, turn, done, err := store.Turn("conv-1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "conv-1" || turn.Texts[0].Text != "first" || done {
		t.Errorf("turn 0: id=%q text=%q done=%v", id, turn.Texts[0].Text, done)
	}

	_, turn, done, err = store.Turn("conv-1", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if turn.Texts[0].Text != "second" || !done {
		t.Errorf("turn 1: text=%q done=%v, want second/true", turn.Texts[0].Text, done)
	}
}

func TestStoreTurnPastEnd(t *testing.T) {
	store := NewStore(testConversations(), nil)
	_, turn, done, err := store.Turn("conv-2", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if turn != nil || !done {
		t.Errorf("past-end turn should be nil/done, got turn=%v done=%v", turn, done)
	}
}

func TestStoreTurnUnknownConversation(t *testing.T) {
	store := NewStore(testConversations(), nil)
	if _, _, _, err := store.Turn("missing", 0); err == nil {
		t.Error("expected error for unknown conversation")
	}
}

func TestStoreAnonymousPickIsSeeded(t *testing.T) {
	seed := int64(42)
	a := NewStore(testConversations(), &seed)
	b := NewStore(testConversations(), &seed)
	for i := 0; i < 10; i++ {
		idA, _, _, _ := a.Turn("", 0)
		idB, _, _, _ := b.Turn("", 0)
		if idA != idB {
			t.Fatalf("pick %d diverged: %q vs %q", i, idA, idB)
		}
	}
}

func TestStoreSchedule(t *testing.T) {
	t2, t1 := int64(2000), int64(1000)
	store := NewStore([]models.Conversation{
		{SessionID: "late", Turns: []models.Turn{{TimestampNs: &t2}}},
		{SessionID: "early", Turns: []models.Turn{{TimestampNs: &t1}}},
		{SessionID: "unscheduled", Turns: []models.Turn{{}}},
	}, nil)

	entries := store.Schedule()
	if len(entries) != 2 {
		t.Fatalf("expected 2 scheduled entries, got %d", len(entries))
	}
	if entries[0].ConversationID != "early" || entries[1].ConversationID != "late" {
		t.Errorf("schedule not sorted by timestamp: %+v", entries)
	}
}
