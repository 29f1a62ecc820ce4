// Package history holds the shared chat-history document: its JSON codec,
// the merge of local and remote views, and the per-account local mirror.
package history

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/cloudchat/internal/client/models"
)

// Decode parses a history document. Empty input and JSON null decode to an
// empty list; anything else that is not a JSON array of messages is an error.
func Decode(data []byte) ([]models.Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []models.Message{}, nil
	}

	var msgs []models.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

// Encode renders msgs as a JSON array; nil encodes as [].
func Encode(msgs []models.Message) ([]byte, error) {
	if msgs == nil {
		msgs = []models.Message{}
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return b, nil
}
