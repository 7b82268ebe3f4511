package queue

import (
	"errors"
	"time"
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetry
	OutcomeFatal
)

// Result is what a handler returns. Retry policy is decided from it alone; handlers never schedule
// retries themselves.
type Result struct {
	Outcome Outcome
	Value   any
	Err     error
}

func Success(v any) Result { return Result{Outcome: OutcomeSuccess, Value: v} }

func Retry(err error) Result {
	return Result{Outcome: OutcomeRetry, Err: &RetryableError{Err: err}}
}

func Fatal(err error) Result {
	return Result{Outcome: OutcomeFatal, Err: &FatalError{Err: err}}
}

// FromError maps a plain error: nil succeeds, a FatalError anywhere in the chain is fatal, anything
// else is retryable.
func FromError(err error) Result {
	if err == nil {
		return Success(nil)
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return Result{Outcome: OutcomeFatal, Err: err}
	}
	return Retry(err)
}

type RetryableError struct{ Err error }

func (e *RetryableError) Error() string {
	if e.Err == nil {
		return "retryable error"
	}
	return e.Err.Error()
}
func (e *RetryableError) Unwrap() error { return e.Err }

type FatalError struct{ Err error }

func (e *FatalError) Error() string {
	if e.Err == nil {
		return "fatal error"
	}
	return e.Err.Error()
}
func (e *FatalError) Unwrap() error { return e.Err }

type DecisionKind int

const (
	DecisionComplete DecisionKind = iota
	DecisionRetry
	DecisionFail
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionComplete:
		return "complete"
	case DecisionRetry:
		return "retry"
	default:
		return "fail"
	}
}

type Decision struct {
	Kind  DecisionKind
	Delay time.Duration
}

type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, BackoffBase: DefaultBackoffBase}
}

// Decide maps a handler result after the attempts-th execution to the job's next transition.
func Decide(r Result, attempts int, p RetryPolicy) Decision {
	switch r.Outcome {
	case OutcomeSuccess:
		return Decision{Kind: DecisionComplete}
	case OutcomeFatal:
		return Decision{Kind: DecisionFail}
	}
	if attempts >= p.MaxAttempts {
		return Decision{Kind: DecisionFail}
	}
	return Decision{Kind: DecisionRetry, Delay: Backoff(p.BackoffBase, attempts)}
}
