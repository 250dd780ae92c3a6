package domain

import "errors"

// Kind classifies client-visible failures.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindForbidden
	KindPreconditionFailed
	KindExpired
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindPreconditionFailed:
		return "precondition_failed"
	case KindExpired:
		return "expired"
	default:
		return "internal"
	}
}

// Error is a typed engine error. Values are compared by identity with errors.Is.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	// ErrRoomNotFound is returned for unknown room ids or expired room codes.
	ErrRoomNotFound = newError(KindNotFound, "room_not_found", "room not found")
	// ErrPlayerNotInRoom is returned when the caller has no active membership.
	ErrPlayerNotInRoom = newError(KindNotFound, "player_not_in_room", "player not in room")

	ErrRoomFull           = newError(KindConflict, "room_full", "room is full")
	ErrRoomNotJoinable    = newError(KindConflict, "room_not_joinable", "room is not accepting players")
	ErrInvalidPlayerState = newError(KindConflict, "invalid_player_state", "player state does not allow this action")
	// ErrRoomTerminal is returned for any mutation of a completed or cancelled room.
	ErrRoomTerminal = newError(KindConflict, "room_terminal", "room has already ended")
	// ErrAlreadyStarted is returned when start is requested twice.
	ErrAlreadyStarted = newError(KindConflict, "already_started", "room has already started")
	// ErrCodeTaken is used by stores when a room code is already reserved.
	ErrCodeTaken = newError(KindConflict, "code_taken", "room code already in use")
	// ErrStaleState is returned by stores when another writer saved the room first.
	ErrStaleState = newError(KindConflict, "stale_state", "room was modified concurrently, retry")

	ErrNotCreator       = newError(KindForbidden, "not_creator", "only the room creator can do this")
	ErrIdentityMismatch = newError(KindForbidden, "identity_mismatch", "player id does not match caller")

	ErrInsufficientPlayers = newError(KindPreconditionFailed, "insufficient_players", "at least two players are required")
	ErrPlayersNotReady     = newError(KindPreconditionFailed, "players_not_ready", "not every player is ready")
	ErrRoomNotActive       = newError(KindPreconditionFailed, "room_not_active", "room is not in progress")
	ErrQuestionMismatch    = newError(KindPreconditionFailed, "question_mismatch", "question is not the current question")
	ErrNoQuestions         = newError(KindPreconditionFailed, "no_questions", "question source returned no questions")

	// ErrInvalidRoomOptions rejects malformed create requests.
	ErrInvalidRoomOptions = newError(KindPreconditionFailed, "invalid_room_options", "invalid room options")
)

// KindOf returns the classification of err, KindInternal when it is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine-readable code of err, "internal" when unknown.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
