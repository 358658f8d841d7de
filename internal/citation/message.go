package citation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Hit is a raw retrieval result as written by the answer backend.
type Hit struct {
	SourceID string   `json:"sourceId"`
	Content  string   `json:"content"`
	Score    *float64 `json:"score,omitempty"`
}

// Message is the citation payload of one answer. Either Citations is filled
// directly or Hits carries raw retrieval results to convert.
type Message struct {
	Citations []Citation `json:"citations,omitempty"`
	Hits      []Hit      `json:"hits,omitempty"`
}

// ErrEmptyMessage is returned when a message file carries no citations.
var ErrEmptyMessage = errors.New("message has no citations")

// ReadMessage decodes a message and returns its citations. Hits are numbered
// from 1 in the order they appear.
func ReadMessage(r io.Reader) ([]Citation, error) {
	var msg Message
	if err := json.NewDecoder(r).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if len(msg.Citations) > 0 {
		return msg.Citations, nil
	}
	if len(msg.Hits) == 0 {
		return nil, ErrEmptyMessage
	}
	out := make([]Citation, 0, len(msg.Hits))
	for i, hit := range msg.Hits {
		out = append(out, FromSource(i+1, hit.SourceID, hit.Content, hit.Score))
	}
	return out, nil
}

// LoadMessage reads a message file from disk.
func LoadMessage(path string) ([]Citation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open message: %w", err)
	}
	defer f.Close()
	return ReadMessage(f)
}
