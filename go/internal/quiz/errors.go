package quiz

import "errors"

var (
	// ErrSessionNotFound is returned when an operation references a session
	// id the store does not know about.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTeamNameRequired is returned when a player joins without a
	// non-empty team name.
	ErrTeamNameRequired = errors.New("team name required")
)
