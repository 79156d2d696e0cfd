package datasetmgr

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aiperf/aiperf/internal/models"
)

// LoadConversations reads a conversations JSON file produced by the
// dataset-composition collaborator. An empty path yields a minimal
// single-conversation dataset so the harness runs without one.
func LoadConversations(path string) ([]models.Conversation, error) {
	if path == "" {
		return []models.Conversation{{
			SessionID: "default",
			Turns: []models.Turn{{
				Texts: []models.MediaItem{{Kind: "text", Text: "Hello, how are you?"}},
			}},
		}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	var conversations []models.Conversation
	if err := json.Unmarshal(data, &conversations); err != nil {
		return nil, fmt.Errorf("decoding dataset: %w", err)
	}
	if len(conversations) == 0 {
		return nil, fmt.Errorf("dataset %s contains no conversations", path)
	}
	return conversations, nil
}
