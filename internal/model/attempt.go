package model

import "time"

// ClassificationAttempt tracks how often a conversation has been classified.
type ClassificationAttempt struct {
	ThreadKey    string    `json:"thread_key"`
	AttemptCount int       `json:"attempt_count"`
	CodesTried   []string  `json:"codes_tried"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Escalation replaces an automated answer once a conversation has exhausted
// its classification attempts.
type Escalation struct {
	ThreadKey    string   `json:"thread_key"`
	Summary      string   `json:"summary"`
	CodesTried   []string `json:"codes_tried"`
	AttemptCount int      `json:"attempt_count"`
}
