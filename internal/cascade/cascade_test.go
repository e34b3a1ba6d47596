package cascade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omnihear/omnihear/internal/utils"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestRunFirstSuccessWins(t *testing.T) {
	t.Parallel()

	secondCalled := false
	cands := []Candidate[string]{
		{Provider: "a", Attempt: func(ctx context.Context) (string, error) { return "from-a", nil }},
		{Provider: "b", Attempt: func(ctx context.Context) (string, error) {
			secondCalled = true
			return "from-b", nil
		}},
	}

	out, err := Run(context.Background(), testLog(), "transcription", nil, cands)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Value != "from-a" || out.Provider != "a" {
		t.Fatalf("wrong winner: %q from %q", out.Value, out.Provider)
	}
	if secondCalled {
		t.Fatal("later candidate invoked after a success")
	}
	if len(out.Attempted) != 1 || out.Attempted[0] != "a" {
		t.Fatalf("unexpected attempted list: %v", out.Attempted)
	}
}

func TestRunContinuesPastFailure(t *testing.T) {
	t.Parallel()

	cands := []Candidate[string]{
		{Provider: "a", Attempt: func(ctx context.Context) (string, error) {
			return "", errors.New("boom")
		}},
		{Provider: "b", Model: "m1", Attempt: func(ctx context.Context) (string, error) {
			return "ok", nil
		}},
	}

	out, err := Run(context.Background(), testLog(), "generation", nil, cands)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Value != "ok" || out.Provider != "b" || out.Model != "m1" {
		t.Fatalf("wrong winner: %+v", out)
	}
	if len(out.Attempted) != 2 {
		t.Fatalf("expected both candidates attempted, got %v", out.Attempted)
	}
	if len(out.Failures) != 1 || out.Failures[0].Provider != "a" {
		t.Fatalf("unexpected failures: %+v", out.Failures)
	}
}

func TestRunEmptyResultCountsAsFailure(t *testing.T) {
	t.Parallel()

	cands := []Candidate[string]{
		{Provider: "a", Attempt: func(ctx context.Context) (string, error) { return "   ", nil }},
		{Provider: "b", Attempt: func(ctx context.Context) (string, error) { return "text", nil }},
	}
	isEmpty := func(s string) bool {
		for _, r := range s {
			if r != ' ' {
				return false
			}
		}
		return true
	}

	out, err := Run(context.Background(), testLog(), "transcription", isEmpty, cands)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Provider != "b" {
		t.Fatalf("empty result was accepted from %q", out.Provider)
	}
	if out.Failures[0].Kind != KindEmpty {
		t.Fatalf("expected empty kind, got %s", out.Failures[0].Kind)
	}
}

func TestRunExhaustion(t *testing.T) {
	t.Parallel()

	fail := func(err error) Candidate[string] {
		return Candidate[string]{Provider: "p", Attempt: func(ctx context.Context) (string, error) {
			return "", err
		}}
	}

	out, err := Run(context.Background(), testLog(), "generation", nil, []Candidate[string]{
		fail(errors.New("opaque")),
		fail(utils.E(utils.CodeRateLimited, "fake", "quota", nil)),
		fail(utils.E(utils.CodeInvalidArgument, "fake", "bad input", nil)),
	})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected *ExhaustedError, got %T", err)
	}
	if ex.Kind() != KindRateLimited {
		t.Fatalf("rate limit should win the kind election, got %s", ex.Kind())
	}
	if len(out.Attempted) != 3 || len(out.Failures) != 3 {
		t.Fatalf("expected all candidates recorded: %v / %d failures", out.Attempted, len(out.Failures))
	}
}

func TestRunNoCandidates(t *testing.T) {
	t.Parallel()

	_, err := Run[string](context.Background(), testLog(), "transcription", nil, nil)
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected *ExhaustedError, got %v", err)
	}
	if ex.Kind() != KindUnknown {
		t.Fatalf("expected unknown kind with no failures, got %s", ex.Kind())
	}
}

func TestRunCandidateTimeout(t *testing.T) {
	t.Parallel()

	cands := []Candidate[string]{
		{Provider: "slow", Timeout: 10 * time.Millisecond, Attempt: func(ctx context.Context) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(5 * time.Second):
				return "too late", nil
			}
		}},
		{Provider: "fast", Attempt: func(ctx context.Context) (string, error) { return "win", nil }},
	}

	out, err := Run(context.Background(), testLog(), "transcription", nil, cands)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Provider != "fast" {
		t.Fatalf("expected fallback past timed-out candidate, got %q", out.Provider)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"rate limited", utils.E(utils.CodeRateLimited, "x", "", nil), KindRateLimited},
		{"forbidden", utils.E(utils.CodeForbidden, "x", "", nil), KindPermissionDenied},
		{"invalid", utils.E(utils.CodeInvalidArgument, "x", "", nil), KindInvalidInput},
		{"not found", utils.E(utils.CodeNotFound, "x", "", nil), KindNotFound},
		{"deadline", context.DeadlineExceeded, KindUnknown},
		{"opaque", errors.New("boom"), KindUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}
