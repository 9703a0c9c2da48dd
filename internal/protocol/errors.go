package protocol

import "fmt"

const (
	// Inbound event data.
	ErrBadEvent    = "E_BAD_EVENT"
	ErrUnknownKind = "E_UNKNOWN_KIND"
	ErrSchema      = "E_SCHEMA"

	// Collaborators.
	ErrNotFound     = "E_NOT_FOUND"
	ErrMismatch     = "E_MISMATCH"
	ErrUnauthorized = "E_UNAUTHORIZED"
	ErrStale        = "E_STALE"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadEvent:     {},
	ErrUnknownKind:  {},
	ErrSchema:       {},
	ErrNotFound:     {},
	ErrMismatch:     {},
	ErrUnauthorized: {},
	ErrStale:        {},
	ErrInternal:     {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Error is a coded failure surfaced by decoding, validation and the
// collaborators around the engine.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by code, so errors.Is(err, &Error{Code: X}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
