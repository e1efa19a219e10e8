package gateway

import (
	"encoding/json"

	"github.com/quizlive/quizlive/go/internal/models"
)

// Envelope is the wire frame for every message on the quiz channel, in both
// directions: a type tag plus a type-specific payload.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EventType tags the payload carried by an Envelope.
type EventType string

const (
	// Inbound (client -> server)
	EventTypeJoin   EventType = "join"
	EventTypeStart  EventType = "start"
	EventTypeAnswer EventType = "answer"

	// Outbound (server -> client)
	EventTypeSessionState EventType = "session_state"
	EventTypeAnswerResult EventType = "answer_result"
	EventTypeErrorMsg     EventType = "error_msg"
)

// JoinPayload asks to associate the connection with its session, either as
// the host or as a player controlling the named team.
type JoinPayload struct {
	Role     models.ConnectionRole `json:"role"`
	TeamName string                `json:"teamName,omitempty"`
}

// AnswerPayload submits the team's choice for the current question.
type AnswerPayload struct {
	Choice int `json:"choice"`
}

// AnswerResultPayload reports correctness and the team's updated score to
// the submitting connection only.
type AnswerResultPayload struct {
	Correct bool `json:"correct"`
	Score   int  `json:"score"`
}

// ErrorPayload reports a per-connection error such as a bad session id.
type ErrorPayload struct {
	Msg string `json:"msg"`
}

// NewEnvelope wraps a payload into a typed envelope.
func NewEnvelope(t EventType, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Data: data}, nil
}
