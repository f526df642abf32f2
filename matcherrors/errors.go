package matcherrors

import "errors"

// Rejoin/matchmaking sentinel errors, kept in one package to avoid
// circular imports. The gateway and problems packages use some of them;
// the rest are unused.
var (
	ErrMatchNotFound        = errors.New("match not found")
	ErrMatchFinished        = errors.New("match finished")
	ErrInvalidToken         = errors.New("invalid token")
	ErrNotDisconnected      = errors.New("this player is not disconnected")
	ErrNoActiveMatch        = errors.New("no active match for this user")
	ErrAlreadyQueued        = errors.New("already queued")
	ErrAlreadyInMatch       = errors.New("already in a match")
	ErrInsufficientProblems = errors.New("insufficient problems")
)
