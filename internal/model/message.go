package model

import (
	"sort"
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ProsodyScores maps an open-ended emotion label to an intensity in [0,1].
type ProsodyScores map[string]float64

// ConversationMessage is one utterance exchanged over the live voice session.
type ConversationMessage struct {
	ID         string         `json:"id"`
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	Prosody    ProsodyScores  `json:"prosody,omitempty"`
	Emotions   []EmotionScore `json:"emotions,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`

	// Populated when replayed from the transcript stream.
	Sequence uint64 `json:"sequence,omitempty"`
}

// Top returns the n highest-scoring emotion labels, highest first.
func (p ProsodyScores) Top(n int) []EmotionScore {
	scores := make([]EmotionScore, 0, len(p))
	for label, score := range p {
		scores = append(scores, EmotionScore{Label: label, Score: score})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].less(scores[j]) })
	if n >= 0 && n < len(scores) {
		scores = scores[:n]
	}
	return scores
}

// EmotionScore is a single prosody label with its score.
type EmotionScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (e EmotionScore) less(o EmotionScore) bool {
	if e.Score != o.Score {
		return e.Score > o.Score
	}
	return e.Label < o.Label
}

// ListMessagesResponse is the response for listing session messages.
type ListMessagesResponse struct {
	Messages     []ConversationMessage `json:"messages"`
	HasMore      bool                  `json:"has_more,omitempty"`
	LastSequence uint64                `json:"last_sequence,omitempty"`
}

// SendTextRequest injects a typed user turn into the live session.
type SendTextRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}
