package match

import "errors"

// Error codes surfaced to clients. The gateway maps each to a catalog key.
const (
	CodeNotFound         = "not_found"
	CodeMatchFull        = "match_full"
	CodeAlreadyStarted   = "already_started"
	CodeTurnViolation    = "turn_violation"
	CodeInvalidColumn    = "invalid_column"
	CodePlayerNotInMatch = "player_not_in_match"
	CodeAlreadyInMatch   = "already_in_match"
	CodeInvalidArgs      = "invalid_args"
)

// DomainError is a rejected lifecycle operation. Nothing was written when
// one is returned.
type DomainError struct {
	Code    string
	Message string
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "match error"
}

// Is lets a missing player also match ErrNotFound.
func (e DomainError) Is(target error) bool {
	t, ok := target.(DomainError)
	if !ok {
		return false
	}
	if t.Code == e.Code {
		return true
	}
	return e.Code == CodePlayerNotInMatch && t.Code == CodeNotFound
}

var (
	ErrNotFound         = DomainError{Code: CodeNotFound, Message: "match not found"}
	ErrMatchFull        = DomainError{Code: CodeMatchFull, Message: "match already has two players"}
	ErrAlreadyStarted   = DomainError{Code: CodeAlreadyStarted, Message: "match already started"}
	ErrTurnViolation    = DomainError{Code: CodeTurnViolation, Message: "not your turn"}
	ErrInvalidColumn    = DomainError{Code: CodeInvalidColumn, Message: "invalid move"}
	ErrPlayerNotInMatch = DomainError{Code: CodePlayerNotInMatch, Message: "player not in match"}
	ErrAlreadyInMatch   = DomainError{Code: CodeAlreadyInMatch, Message: "session already seated in this match"}
	ErrInvalidArgs      = DomainError{Code: CodeInvalidArgs, Message: "invalid arguments"}
)

// Internal outcomes of timer-driven operations. Callers drop them silently.
var (
	ErrCountdownAborted = errf("countdown aborted")
	ErrStaleTimer       = errf("stale timer")
	errConflict         = errf("concurrent update")
	errIDExhausted      = errf("could not allocate a unique match id")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error { return staticErr(s) }

// CodeOf extracts the client-facing code, or "" for non-domain errors.
func CodeOf(err error) string {
	var de DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsSilent reports outcomes that timer callbacks swallow.
func IsSilent(err error) bool {
	return errors.Is(err, ErrCountdownAborted) || errors.Is(err, ErrStaleTimer) || errors.Is(err, ErrNotFound)
}
