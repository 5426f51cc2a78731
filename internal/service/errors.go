package service

import (
	"errors"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthorization
	KindStateConflict
	KindIntegrity
	KindMismatch
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindStateConflict:
		return "state_conflict"
	case KindIntegrity:
		return "integrity"
	case KindMismatch:
		return "mismatch"
	}
	return "internal"
}

// Error is a classified service failure. Sentinels are compared with errors.Is,
// context is added by wrapping them with fmt.Errorf("%w: ...").
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrInvalidInput       = &Error{KindValidation, "invalid input"}
	ErrMissingPairing     = &Error{KindValidation, "missing group placement for bracket pairing"}
	ErrInvalidPlacement   = &Error{KindValidation, "invalid group placement"}
	ErrInvalidScore       = &Error{KindValidation, "invalid score"}
	ErrTeamNotInMatch     = &Error{KindValidation, "team does not play in this match"}
	ErrTooManyGroups      = &Error{KindValidation, "too many groups"}
	ErrUnauthorized       = &Error{KindAuthorization, "not permitted"}
	ErrInvalidState       = &Error{KindStateConflict, "operation not allowed in the current tournament state"}
	ErrInsufficientTeams  = &Error{KindStateConflict, "not enough teams registered"}
	ErrTournamentFull     = &Error{KindStateConflict, "tournament is full"}
	ErrCodeTaken          = &Error{KindStateConflict, "tournament code already in use"}
	ErrTeamNameTaken      = &Error{KindStateConflict, "team name already taken"}
	ErrPlayerInTeam       = &Error{KindStateConflict, "player already in a team"}
	ErrMatchCompleted     = &Error{KindStateConflict, "match already completed"}
	ErrDuplicateResult    = &Error{KindStateConflict, "result already submitted, waiting for the opponent"}
	ErrGroupsIncomplete   = &Error{KindStateConflict, "group stage still has open matches"}
	ErrIncompleteRound    = &Error{KindStateConflict, "current round still has open matches"}
	ErrNoNextRound        = &Error{KindStateConflict, "no further round to generate"}
	ErrTournamentNotFound = &Error{KindIntegrity, "tournament not found"}
	ErrTeamNotFound       = &Error{KindIntegrity, "team not found"}
	ErrMatchNotFound      = &Error{KindIntegrity, "match not found"}
	ErrUserNotFound       = &Error{KindIntegrity, "user not found"}
	ErrResultMismatch     = &Error{KindMismatch, "submitted result does not match the opponent's, both teams must resubmit"}
	ErrReconciliation     = &Error{KindInternal, "could not record match result"}
	ErrPersistence        = &Error{KindInternal, "storage failure"}
)

// KindOf classifies err. Errors that carry no *Error are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
