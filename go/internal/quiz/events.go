package quiz

import (
	"context"
	"time"
)

// Session lifecycle event types mirrored to the event bus when one is
// configured.
const (
	EventSessionCreated   = "SessionCreated"
	EventSessionStarted   = "SessionStarted"
	EventQuestionAdvanced = "QuestionAdvanced"
	EventSessionEnded     = "SessionEnded"
)

// SessionCreatedPayload is emitted when a session is registered in the store.
type SessionCreatedPayload struct {
	QuestionCount int       `json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// SessionStartedPayload is emitted when the host starts the quiz.
type SessionStartedPayload struct {
	Teams          []string  `json:"teams"`
	StartedAt      time.Time `json:"started_at"`
	PerQuestionSec int       `json:"per_question_sec"`
}

// QuestionAdvancedPayload is emitted on every question transition.
type QuestionAdvancedPayload struct {
	Idx        int       `json:"idx"`
	DeadlineAt time.Time `json:"deadline_at"`
}

// SessionEndedPayload is emitted when the last question is exhausted.
type SessionEndedPayload struct {
	Scores  map[string]int `json:"scores"`
	EndedAt time.Time      `json:"ended_at"`
}

// EventPublisher mirrors session lifecycle events to an external bus. The
// engine never depends on delivery; publish failures are logged and dropped.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, sessionID string, payload any) error
}

// NopPublisher discards all events. Used when no event bus is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, eventType, sessionID string, payload any) error {
	return nil
}
