package quiz

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/quizlive/quizlive/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Broadcaster delivers outbound messages to connections. BroadcastState goes
// to every connection of a session; SendAnswerResult only to the submitter.
// Implementations must not block: they are invoked while the session lock is
// held so the enqueue order of snapshots matches the mutation order, and a
// slow or dead connection must not stall the engine.
type Broadcaster interface {
	BroadcastState(sessionID string, snap models.SessionSnapshot)
	SendAnswerResult(connID string, correct bool, score int)
}

// Engine owns the lifecycle of every session: joins, starts, answer
// aggregation and timer-driven advancement. It is the single mutator of
// Session state; each session is guarded by its own mutex so sessions
// progress independently.
type Engine struct {
	store       *Store
	registry    *Registry
	broadcast   Broadcaster
	events      EventPublisher
	clock       clockwork.Clock
	perQuestion time.Duration

	activeTimers   map[string]*armedTimer
	activeTimersMu sync.Mutex
}

// NewEngine creates an engine advancing questions after perQuestion elapses.
func NewEngine(store *Store, registry *Registry, broadcast Broadcaster, events EventPublisher, perQuestion time.Duration) *Engine {
	return &Engine{
		store:        store,
		registry:     registry,
		broadcast:    broadcast,
		events:       events,
		clock:        clockwork.NewRealClock(),
		perQuestion:  perQuestion,
		activeTimers: make(map[string]*armedTimer),
	}
}

// CreateSession registers a fresh lobby session for the given questions and
// returns its id.
func (e *Engine) CreateSession(questions []models.Question) string {
	s := e.store.Create(questions)
	e.publishEvent(EventSessionCreated, s.ID, SessionCreatedPayload{
		QuestionCount: len(questions),
		CreatedAt:     e.clock.Now(),
	})
	return s.ID
}

// Join associates a connection with a session. Players must supply a team
// name; joining under an existing team name resets that team's score to
// zero. Every successful join broadcasts the new state.
func (e *Engine) Join(connID, sessionID string, role models.ConnectionRole, teamName string) error {
	s, ok := e.store.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	team := ""
	if role == models.RolePlayer {
		team = strings.TrimSpace(teamName)
		if team == "" {
			return ErrTeamNameRequired
		}
	}

	e.registry.Bind(connID, sessionID, role, team)

	s.mu.Lock()
	if team != "" {
		s.teams[team] = 0
	}
	e.broadcast.BroadcastState(sessionID, s.snapshotLocked())
	s.mu.Unlock()

	log.Info().
		Str("conn_id", connID).
		Str("session_id", sessionID).
		Str("role", string(role)).
		Str("team", team).
		Msg("connection joined session")

	return nil
}

// Leave drops the connection's binding. In the lobby the team is removed
// with it; once the session is running the team and its score survive the
// disconnect. Unmapped connections are a no-op.
func (e *Engine) Leave(connID string) {
	b, ok := e.registry.Unbind(connID)
	if !ok {
		return
	}
	log.Info().
		Str("conn_id", connID).
		Str("session_id", b.SessionID).
		Msg("connection left session")

	if b.Role != models.RolePlayer || b.Team == "" {
		return
	}
	s, ok := e.store.Get(b.SessionID)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.status != models.SessionStatusLobby {
		s.mu.Unlock()
		return
	}
	delete(s.teams, b.Team)
	e.broadcast.BroadcastState(b.SessionID, s.snapshotLocked())
	s.mu.Unlock()
}

// Start moves the session to the first question, arms the deadline timer
// and broadcasts. Unknown sessions are ignored.
func (e *Engine) Start(sessionID string) {
	s, ok := e.store.Get(sessionID)
	if !ok {
		log.Warn().Str("session_id", sessionID).Msg("start for unknown session")
		return
	}

	s.mu.Lock()
	s.idx = 0
	s.status = models.SessionStatusRunning
	s.answered = make(map[string]int)
	teams := make([]string, 0, len(s.teams))
	for name := range s.teams {
		teams = append(teams, name)
	}
	e.armLocked(s)
	e.broadcast.BroadcastState(sessionID, s.snapshotLocked())
	s.mu.Unlock()

	log.Info().
		Str("session_id", sessionID).
		Int("teams", len(teams)).
		Msg("session started")

	e.publishEvent(EventSessionStarted, sessionID, SessionStartedPayload{
		Teams:          teams,
		StartedAt:      e.clock.Now(),
		PerQuestionSec: int(e.perQuestion / time.Second),
	})
}

// Answer records a team's choice for the current question. Late, duplicate
// or otherwise irrelevant submissions are silently dropped; they are
// expected in a real-time system, not errors. Once every team has answered
// the session advances immediately, superseding the pending timer.
func (e *Engine) Answer(connID string, choice int) {
	b, ok := e.registry.Lookup(connID)
	if !ok || b.Team == "" {
		return
	}
	s, ok := e.store.Get(b.SessionID)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.status != models.SessionStatusRunning {
		s.mu.Unlock()
		return
	}
	if last, ok := s.answered[b.Team]; ok && last == s.idx {
		// Duplicate submission for this question; must not double-score.
		s.mu.Unlock()
		return
	}

	correct := choice == s.questions[s.idx].Answer
	if correct {
		s.teams[b.Team]++
	}
	s.answered[b.Team] = s.idx
	score := s.teams[b.Team]

	if len(s.answered) == len(s.teams) {
		e.advanceLocked(s)
	}
	e.broadcast.SendAnswerResult(connID, correct, score)
	e.broadcast.BroadcastState(b.SessionID, s.snapshotLocked())
	s.mu.Unlock()
}

// Snapshot returns the current broadcastable projection of a session.
func (e *Engine) Snapshot(sessionID string) (models.SessionSnapshot, error) {
	s, ok := e.store.Get(sessionID)
	if !ok {
		return models.SessionSnapshot{}, ErrSessionNotFound
	}
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return snap, nil
}

// advanceLocked moves the session to the next question, or ends it when the
// last question is exhausted. Caller must hold s.mu and broadcast the
// resulting snapshot afterwards.
func (e *Engine) advanceLocked(s *Session) {
	s.idx++
	s.answered = make(map[string]int)

	if s.idx >= len(s.questions) {
		s.idx = len(s.questions) - 1
		s.status = models.SessionStatusEnded
		e.cancelTimer(s.ID)
		s.deadline = nil

		log.Info().Str("session_id", s.ID).Msg("session ended")
		e.publishEvent(EventSessionEnded, s.ID, SessionEndedPayload{
			Scores:  s.snapshotLocked().Teams,
			EndedAt: e.clock.Now(),
		})
		return
	}

	e.armLocked(s)
	log.Debug().
		Str("session_id", s.ID).
		Int("idx", s.idx).
		Msg("advanced to next question")
	e.publishEvent(EventQuestionAdvanced, s.ID, QuestionAdvancedPayload{
		Idx:        s.idx,
		DeadlineAt: *s.deadline,
	})
}

// publishEvent mirrors a lifecycle event without blocking the caller.
func (e *Engine) publishEvent(eventType, sessionID string, payload any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.events.Publish(ctx, eventType, sessionID, payload); err != nil {
			log.Error().
				Err(err).
				Str("event_type", eventType).
				Str("session_id", sessionID).
				Msg("failed to publish session event")
		}
	}()
}
