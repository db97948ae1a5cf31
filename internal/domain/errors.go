package domain

import "errors"

var (
	// ErrDuelNotFound is returned when a duel handle does not exist.
	ErrDuelNotFound = errors.New("duel not found")
	// ErrDuelExists is returned when starting a duel with an ID already in use.
	ErrDuelExists = errors.New("duel already exists")
	// ErrDuelNotOver is returned when asking for a result before the terminal state.
	ErrDuelNotOver = errors.New("duel not over yet")
	// ErrNotYourTurn is returned when a player acts outside their turn.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrNotAParticipant is returned when the player is neither attacker nor defender.
	ErrNotAParticipant = errors.New("player is not a duel participant")
	// ErrInvalidDifficulty is returned for a difficulty outside 1..5.
	ErrInvalidDifficulty = errors.New("difficulty must be between 1 and 5")
	// ErrInvalidOption is returned for an option index outside the presented set.
	ErrInvalidOption = errors.New("option index out of range")
	// ErrQuestionUnavailable indicates a content gap: no question exists for
	// the requested category and difficulty.
	ErrQuestionUnavailable = errors.New("no question available")
	// ErrUnknownCategory indicates a category string outside the fixed set.
	ErrUnknownCategory = errors.New("unknown category")
)
