package quiz

import (
	"sync"

	"github.com/google/uuid"
	"github.com/quizlive/quizlive/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Store is the in-memory registry of all live sessions, keyed by id.
// Sessions persist for the lifetime of the process; there is no expiry.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Create allocates a fresh session in the lobby state and registers it.
func (st *Store) Create(questions []models.Question) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		status:    models.SessionStatusLobby,
		questions: questions,
		teams:     make(map[string]int),
		answered:  make(map[string]int),
	}

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()

	log.Info().
		Str("session_id", s.ID).
		Int("questions", len(questions)).
		Msg("session created")

	return s
}

// Get returns the session for the given id.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
