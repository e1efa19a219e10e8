package models

import (
	"time"
)

// SessionStatus defines the lifecycle state of a quiz session.
type SessionStatus string

const (
	SessionStatusLobby   SessionStatus = "lobby"
	SessionStatusRunning SessionStatus = "running"
	SessionStatusEnded   SessionStatus = "ended"
)

// Question is a single multiple-choice quiz question. Answer is the
// zero-based index into Options.
type Question struct {
	Prompt  string   `json:"question"`
	Options []string `json:"options"`
	Answer  int      `json:"answer"`
}

// SessionSnapshot is the canonical broadcastable projection of a session.
// Deadline is non-nil only while the session is running.
type SessionSnapshot struct {
	Status    SessionStatus  `json:"status"`
	Idx       int            `json:"idx"`
	Teams     map[string]int `json:"teams"`
	Questions []Question     `json:"questions"`
	Deadline  *time.Time     `json:"deadline"`
}

// ConnectionRole identifies a websocket connection as the quiz host or a
// player controlling one team.
type ConnectionRole string

const (
	RoleHost   ConnectionRole = "host"
	RolePlayer ConnectionRole = "player"
)
