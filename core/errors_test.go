package core

import (
	"errors"
	"net/http"
	"testing"
)

func TestErrorKindHTTPStatus(t *testing.T) {
	cases := []struct {
		kind ErrorKind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindSignatureInvalid, http.StatusBadRequest},
		{KindNotParticipant, http.StatusBadRequest},
		{KindOutcomeMismatch, http.StatusBadRequest},
		{KindNoActiveProposal, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindChainUnavailable, http.StatusServiceUnavailable},
		{KindContractCall, http.StatusServiceUnavailable},
		{KindInternal, http.StatusInternalServerError},
		{ErrorKind("unknown"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := c.kind.HTTPStatus(); got != c.want {
			t.Errorf("%s.HTTPStatus(): got %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestErrorKindCode(t *testing.T) {
	if KindValidation.Code() != "VALIDATION" {
		t.Errorf("got %q", KindValidation.Code())
	}
	if ErrorKind("").Code() != string(KindInternal) {
		t.Errorf("empty kind should fall back to INTERNAL, got %q", ErrorKind("").Code())
	}
}

func TestErrorWrapAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := WrapError(KindInternal, "failed to do thing", cause)

	if !errors.Is(wrapped, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}

	var target *Error
	if !errors.As(wrapped, &target) {
		t.Fatal("expected errors.As to extract *Error")
	}
	if target.Kind != KindInternal {
		t.Errorf("got kind %s", target.Kind)
	}
}

func TestAsError(t *testing.T) {
	wrapped := NewError(KindConflict, "already exists")
	extracted, ok := AsError(wrapped)
	if !ok || extracted.Kind != KindConflict {
		t.Fatalf("got %v, %v", extracted, ok)
	}

	_, ok = AsError(errors.New("plain error"))
	if ok {
		t.Fatal("expected false for a non-taxonomy error")
	}
}

func TestErrorMessageFormatting(t *testing.T) {
	plain := NewError(KindValidation, "bad input")
	if plain.Error() != "VALIDATION: bad input" {
		t.Errorf("got %q", plain.Error())
	}

	wrapped := WrapError(KindInternal, "query failed", errors.New("connection reset"))
	want := "INTERNAL: query failed: connection reset"
	if wrapped.Error() != want {
		t.Errorf("got %q, want %q", wrapped.Error(), want)
	}
}
