package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeOf(t *testing.T) {
	t.Parallel()

	err := E(CodeRateLimited, "Op", "msg", nil)
	if CodeOf(err) != CodeRateLimited {
		t.Fatalf("got %s", CodeOf(err))
	}
	// Wrapping preserves the code.
	wrapped := fmt.Errorf("context: %w", err)
	if CodeOf(wrapped) != CodeRateLimited {
		t.Fatalf("wrapped: got %s", CodeOf(wrapped))
	}
	if CodeOf(errors.New("plain")) != CodeInternal {
		t.Fatal("plain errors must count as INTERNAL")
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code Code
		want int
	}{
		{CodeInvalidArgument, http.StatusBadRequest},
		{CodeParameterMissing, http.StatusBadRequest},
		{CodeSizeExceeded, http.StatusRequestEntityTooLarge},
		{CodeSessionExpired, http.StatusNotFound},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(E(tc.code, "Op", "", nil)); got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.code, got, tc.want)
		}
	}
}

func TestAppErrorMessageComposition(t *testing.T) {
	t.Parallel()

	err := E(CodeInternal, "Service.Method", "it broke", errors.New("inner"))
	if err.Error() != "Service.Method: it broke: inner" {
		t.Fatalf("unexpected error string: %q", err.Error())
	}
	if !IsCode(err, CodeInternal) || IsCode(err, CodeNotFound) {
		t.Fatal("IsCode mismatch")
	}
}
