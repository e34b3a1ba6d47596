// Package cascade runs an ordered list of interchangeable backends until one
// succeeds or all fail. Both the transcription and the generation stages
// iterate their candidates through the same runner: attempt with a bounded
// timeout, classify the failure, log it, move on. A candidate is never
// retried. On RateLimited the runner moves on immediately rather than backing
// off, so worst-case latency stays one timeout per candidate.
package cascade

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Candidate is one entry of an ordered cascade list.
type Candidate[T any] struct {
	Provider string
	Model    string
	Timeout  time.Duration
	Attempt  func(ctx context.Context) (T, error)
}

func (c Candidate[T]) label() string {
	if c.Model == "" {
		return c.Provider
	}
	return c.Provider + "/" + c.Model
}

// Failure is one classified, recovered per-candidate failure.
type Failure struct {
	Provider string
	Model    string
	Kind     Kind
	Err      error
}

// Outcome reports the winning candidate plus everything tried before it.
type Outcome[T any] struct {
	Value     T
	Provider  string
	Model     string
	Attempted []string
	Failures  []Failure
}

// ExhaustedError is returned when every candidate failed. It keeps the
// per-candidate record and elects the most actionable kind to surface.
type ExhaustedError struct {
	Stage    string
	Failures []Failure
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: all %d candidates failed (%s)", e.Stage, len(e.Failures), e.Kind())
}

// Kind picks which classified failure to surface. Rate limits win over
// everything else: the caller can act on those (wait, change tier), while
// Unknown is just noise.
func (e *ExhaustedError) Kind() Kind {
	priority := []Kind{KindRateLimited, KindPermissionDenied, KindInvalidInput, KindNotFound, KindEmpty}
	for _, k := range priority {
		for _, f := range e.Failures {
			if f.Kind == k {
				return k
			}
		}
	}
	return KindUnknown
}

const defaultAttemptTimeout = 60 * time.Second

// Run iterates candidates in order and returns on the first usable result.
// Once a candidate succeeds no later candidate is invoked. An empty result
// (per isEmpty) counts as a failure and the cascade continues. If every
// candidate fails the returned error is an *ExhaustedError; the Outcome
// still carries the attempted list and failures for provenance.
func Run[T any](ctx context.Context, log *logrus.Entry, stage string, isEmpty func(T) bool, candidates []Candidate[T]) (Outcome[T], error) {
	out := Outcome[T]{}

	if len(candidates) == 0 {
		return out, &ExhaustedError{Stage: stage}
	}

	for i, cand := range candidates {
		out.Attempted = append(out.Attempted, cand.label())

		timeout := cand.Timeout
		if timeout <= 0 {
			timeout = defaultAttemptTimeout
		}
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		v, err := cand.Attempt(attemptCtx)
		cancel()

		if err == nil && isEmpty != nil && isEmpty(v) {
			err = fmt.Errorf("candidate returned empty result")
			err = &emptyResult{err}
		}
		if err != nil {
			kind := Classify(err)
			out.Failures = append(out.Failures, Failure{Provider: cand.Provider, Model: cand.Model, Kind: kind, Err: err})
			log.WithFields(logrus.Fields{
				"stage":     stage,
				"provider":  cand.Provider,
				"model":     cand.Model,
				"kind":      string(kind),
				"candidate": fmt.Sprintf("%d/%d", i+1, len(candidates)),
			}).WithError(err).Warn("cascade candidate failed")
			continue
		}

		out.Value = v
		out.Provider = cand.Provider
		out.Model = cand.Model
		log.WithFields(logrus.Fields{
			"stage":    stage,
			"provider": cand.Provider,
			"model":    cand.Model,
		}).Info("cascade candidate succeeded")
		return out, nil
	}

	exhausted := &ExhaustedError{Stage: stage, Failures: out.Failures}
	log.WithFields(logrus.Fields{
		"stage": stage,
		"kind":  string(exhausted.Kind()),
	}).Error("cascade exhausted")
	return out, exhausted
}

type emptyResult struct{ error }

func (e *emptyResult) Unwrap() error { return e.error }
