package models

import "time"

// AnswerRecord is one resolved question, kept for operational review.
type AnswerRecord struct {
	ID              string    `json:"id"`
	Channel         string    `json:"channel"`
	Question        string    `json:"question"`
	MatchedQuestion string    `json:"matched_question,omitempty"`
	Answer          string    `json:"answer,omitempty"`
	Similarity      float64   `json:"similarity"`
	Found           bool      `json:"found"`
	LatencyMS       int64     `json:"latency_ms"`
	CreatedAt       time.Time `json:"created_at"`
}
