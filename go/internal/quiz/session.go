package quiz

import (
	"sync"
	"time"

	"github.com/quizlive/quizlive/go/internal/models"
)

// Session is one quiz run. All mutable fields are guarded by mu; the engine
// is the only mutator. Multiple goroutines (websocket read pumps, timer
// fires) invoke engine operations on a Session concurrently.
type Session struct {
	ID string

	mu        sync.Mutex
	status    models.SessionStatus
	questions []models.Question
	idx       int
	teams     map[string]int
	answered  map[string]int // team -> question index last answered
	deadline  *time.Time
	timerGen  uint64 // invalidates superseded timer fires
}

// snapshotLocked builds the broadcastable projection of the session.
// Caller must hold s.mu.
func (s *Session) snapshotLocked() models.SessionSnapshot {
	teams := make(map[string]int, len(s.teams))
	for name, score := range s.teams {
		teams[name] = score
	}
	var deadline *time.Time
	if s.deadline != nil {
		d := *s.deadline
		deadline = &d
	}
	return models.SessionSnapshot{
		Status:    s.status,
		Idx:       s.idx,
		Teams:     teams,
		Questions: s.questions,
		Deadline:  deadline,
	}
}
