package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a rule violation so callers can map it without parsing messages.
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindInvalidInput           Kind = "invalid_input"
	KindInvalidBreed           Kind = "invalid_breed"
	KindUpstreamUnavailable    Kind = "upstream_unavailable"
	KindAlreadyComplete        Kind = "already_complete"
	KindMissionAlreadyComplete Kind = "mission_already_complete"
	KindTargetAlreadyComplete  Kind = "target_already_complete"
	KindMissionAssigned        Kind = "mission_assigned"
)

// Error is returned by the engine for every rule violation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// ErrorCode is the machine-checkable code surfaced to clients.
func (e *Error) ErrorCode() string {
	if e.Code != "" {
		return e.Code
	}
	return string(e.Kind)
}

var (
	ErrNotFound               = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidInput           = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrInvalidBreed           = &Error{Kind: KindInvalidBreed, Message: "invalid breed"}
	ErrUpstreamUnavailable    = &Error{Kind: KindUpstreamUnavailable, Message: "error fetching breeds"}
	ErrAlreadyComplete        = &Error{Kind: KindAlreadyComplete, Message: "mission is already complete"}
	ErrMissionAlreadyComplete = &Error{Kind: KindMissionAlreadyComplete, Message: "mission is already complete"}
	ErrTargetAlreadyComplete  = &Error{Kind: KindTargetAlreadyComplete, Message: "target is already complete"}
	ErrMissionAssigned        = &Error{Kind: KindMissionAssigned, Message: "mission is assigned to a cat"}
)

// Errorf builds a typed error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
