package protocol

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrBadEvent,
		ErrUnknownKind,
		ErrSchema,
		ErrNotFound,
		ErrMismatch,
		ErrUnauthorized,
		ErrStale,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestErrorMatchesByCode(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrap: %w", &Error{Code: ErrMismatch, Message: "commander", Cause: cause})
	if !errors.Is(err, &Error{Code: ErrMismatch}) {
		t.Fatalf("expected code match through wrapping")
	}
	if errors.Is(err, &Error{Code: ErrStale}) {
		t.Fatalf("unexpected match for different code")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause reachable")
	}
	if got := CodeOf(err); got != ErrMismatch {
		t.Fatalf("CodeOf=%q want=%q", got, ErrMismatch)
	}
	if got := CodeOf(cause); got != "" {
		t.Fatalf("CodeOf(plain)=%q want empty", got)
	}
}
