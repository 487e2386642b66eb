package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"pgregory.net/rapid"
)

func allCodes() []Code {
	return []Code{
		InvalidArgument,
		FailedPrecondition,
		FetchFailed,
		ResourceExhausted,
		Internal,
	}
}

func testCodeOf_RoundtripForTypedErrors(t *rapid.T) {
	code := rapid.SampledFrom(allCodes()).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")

	err := New(code, message)
	if got := CodeOf(err); got != code {
		t.Fatalf("CodeOf(New) mismatch: got=%q want=%q", got, code)
	}
	if got := MessageOf(err); got != message {
		t.Fatalf("MessageOf(New) mismatch: got=%q want=%q", got, message)
	}
}

func TestCodeOf_RoundtripForTypedErrors(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOf_RoundtripForTypedErrors)
}

func testCodeOfAndMessageOf_WrappedTypedError(t *rapid.T) {
	code := rapid.SampledFrom(allCodes()).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")
	cause := errors.New(rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "cause"))

	err := Wrap(code, message, cause)
	wrapped := fmt.Errorf("outer: %w", err)

	if got := CodeOf(wrapped); got != code {
		t.Fatalf("CodeOf(wrapped) mismatch: got=%q want=%q", got, code)
	}
	if got := MessageOf(wrapped); got != message {
		t.Fatalf("MessageOf(wrapped) mismatch: got=%q want=%q", got, message)
	}
	if !errors.Is(wrapped, err) {
		t.Fatal("wrapped error should match original via errors.Is")
	}
}

func TestCodeOfAndMessageOf_WrappedTypedError(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOfAndMessageOf_WrappedTypedError)
}

func TestCodeOf_UntypedErrorDefaultsToInternal(t *testing.T) {
	t.Parallel()
	err := errors.New("dial tcp 10.0.0.1:443: connection refused")
	if got := CodeOf(err); got != Internal {
		t.Fatalf("expected internal code for untyped error, got %q", got)
	}
	if got := MessageOf(err); got != "internal error" {
		t.Fatalf("untyped error message should be masked, got %q", got)
	}
}

func TestWrap_UnwrapReturnsCause(t *testing.T) {
	t.Parallel()
	cause := errors.New("upstream returned 503")
	err := Wrap(FetchFailed, "identity fetch failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("Wrap should preserve the cause chain")
	}
	if got := CodeOf(err); got != FetchFailed {
		t.Fatalf("expected fetch_failed, got %q", got)
	}
}

func TestHTTPStatus_MapsAllCodes(t *testing.T) {
	t.Parallel()
	cases := map[Code]int{
		InvalidArgument:    http.StatusBadRequest,
		FailedPrecondition: http.StatusConflict,
		FetchFailed:        http.StatusBadGateway,
		ResourceExhausted:  http.StatusTooManyRequests,
		Internal:           http.StatusInternalServerError,
		Code("unknown"):    http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := HTTPStatus(code); got != want {
			t.Fatalf("HTTPStatus(%q) = %d, want %d", code, got, want)
		}
	}
}
