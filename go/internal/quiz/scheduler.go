package quiz

import (
	"github.com/jonboulle/clockwork"
	"github.com/quizlive/quizlive/go/internal/models"
	"github.com/rs/zerolog/log"
)

// armedTimer is the single scheduled fire a session may have. Closing cancel
// releases the waiting goroutine without firing.
type armedTimer struct {
	timer  clockwork.Timer
	cancel chan struct{}
}

// armLocked replaces the session's deadline timer with a fresh one for the
// current question. The captured generation makes superseded fires no-ops:
// a fire that arrives after the timer was replaced or the session ended is
// dropped rather than acting on stale state. Caller must hold s.mu.
func (e *Engine) armLocked(s *Session) {
	s.timerGen++
	gen := s.timerGen

	deadline := e.clock.Now().Add(e.perQuestion)
	s.deadline = &deadline

	at := &armedTimer{
		timer:  e.clock.NewTimer(e.perQuestion),
		cancel: make(chan struct{}),
	}
	e.replaceTimer(s.ID, at)

	go func() {
		select {
		case <-at.timer.Chan():
			e.removeTimer(s.ID, at)
			e.handleFire(s.ID, gen)
		case <-at.cancel:
			stopAndDrainTimer(at.timer)
		}
	}()

	log.Debug().
		Str("session_id", s.ID).
		Uint64("generation", gen).
		Time("deadline", deadline).
		Msg("armed question timer")
}

// handleFire is the deadline fallback: if the session is still running and
// the generation has not been superseded, advance to the next question.
func (e *Engine) handleFire(sessionID string, gen uint64) {
	s, ok := e.store.Get(sessionID)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.status != models.SessionStatusRunning || gen != s.timerGen {
		s.mu.Unlock()
		log.Debug().
			Str("session_id", sessionID).
			Uint64("generation", gen).
			Msg("dropping stale timer fire")
		return
	}
	e.advanceLocked(s)
	snap := s.snapshotLocked()
	e.broadcast.BroadcastState(sessionID, snap)
	s.mu.Unlock()

	log.Info().
		Str("session_id", sessionID).
		Int("idx", snap.Idx).
		Msg("deadline elapsed")
}

// replaceTimer atomically swaps in a new timer for a session, cancelling any
// existing one so at most one armed timer exists per session.
func (e *Engine) replaceTimer(sessionID string, at *armedTimer) {
	e.activeTimersMu.Lock()
	defer e.activeTimersMu.Unlock()

	if existing, ok := e.activeTimers[sessionID]; ok {
		close(existing.cancel)
		log.Debug().Str("session_id", sessionID).Msg("replaced existing timer")
	}
	e.activeTimers[sessionID] = at
}

// cancelTimer cancels and removes the session's armed timer, if any.
func (e *Engine) cancelTimer(sessionID string) {
	e.activeTimersMu.Lock()
	defer e.activeTimersMu.Unlock()

	if at, ok := e.activeTimers[sessionID]; ok {
		close(at.cancel)
		delete(e.activeTimers, sessionID)
		log.Debug().Str("session_id", sessionID).Msg("cancelled timer")
	}
}

// removeTimer clears the bookkeeping entry after a timer fires. The entry is
// only removed if it still refers to the fired timer; a replacement may
// already have taken the slot.
func (e *Engine) removeTimer(sessionID string, at *armedTimer) {
	e.activeTimersMu.Lock()
	defer e.activeTimersMu.Unlock()
	if cur, ok := e.activeTimers[sessionID]; ok && cur == at {
		delete(e.activeTimers, sessionID)
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel so the
// goroutine that owned it cannot leak. This follows the pattern recommended
// in the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
