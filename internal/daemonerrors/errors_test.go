package daemonerrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapAndIs(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(Transient, cause, "fetch failed")

	if !Is(err, Transient) {
		t.Fatalf("expected Is(err, Transient) to be true")
	}
	if Is(err, Fatal) {
		t.Fatalf("expected Is(err, Fatal) to be false")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to unwrap to cause")
	}
}

func TestKindRetryable(t *testing.T) {
	cases := map[Kind]bool{
		Validation:   false,
		Auth:         false,
		NotFound:     false,
		PolicyDenied: false,
		Timeout:      false,
		Transient:    true,
		Fatal:        false,
	}
	for kind, want := range cases {
		if got := kind.Retryable(); got != want {
			t.Errorf("Kind(%s).Retryable() = %v, want %v", kind, got, want)
		}
	}
}

func TestAsExtractsStructuredError(t *testing.T) {
	err := New(NotFound, "run not found")
	de, ok := As(err)
	if !ok {
		t.Fatalf("expected As to find *Error")
	}
	if de.Kind != NotFound {
		t.Fatalf("got kind %s, want %s", de.Kind, NotFound)
	}

	wrapped := fmt.Errorf("context: %w", err)
	de2, ok := As(wrapped)
	if !ok || de2.Kind != NotFound {
		t.Fatalf("expected As to unwrap through fmt.Errorf wrapping")
	}
}
