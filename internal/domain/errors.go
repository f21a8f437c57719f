package domain

import "errors"

// Error kinds. Every failure reported to a client wraps exactly one of them.
var (
	ErrValidation  = errors.New("validation error")
	ErrPersistence = errors.New("persistence error")
	ErrProtocol    = errors.New("protocol error")
)

var (
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrAlreadyJoined       = errors.New("session already joined")
	ErrNotJoined           = errors.New("session not joined")
	ErrSessionClosed       = errors.New("session closed")
)

// EventError is a failure that was reported to the originating connection
// through an "error" event. Message is the text the client saw; Err is the
// underlying cause and is only logged.
type EventError struct {
	Kind    error
	Message string
	Err     error
}

func (e *EventError) Error() string {
	if e.Err != nil {
		return e.Kind.Error() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.Error() + ": " + e.Message
}

func (e *EventError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func NewValidationError(message string) *EventError {
	return &EventError{Kind: ErrValidation, Message: message}
}

func NewProtocolError(message string, cause error) *EventError {
	return &EventError{Kind: ErrProtocol, Message: message, Err: cause}
}

func NewPersistenceError(message string, cause error) *EventError {
	return &EventError{Kind: ErrPersistence, Message: message, Err: cause}
}
