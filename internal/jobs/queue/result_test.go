package queue

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesFromBase(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 3; attempt++ {
		d := Backoff(time.Second, attempt)
		assert.Equal(t, time.Duration(1<<(attempt-1))*time.Second, d)
		assert.Greater(t, d, prev)
		prev = d
	}
	assert.Equal(t, time.Second, Backoff(time.Second, 0))
}

func TestDecide(t *testing.T) {
	p := DefaultRetryPolicy()
	boom := errors.New("boom")

	assert.Equal(t, Decision{Kind: DecisionComplete}, Decide(Success("ok"), 1, p))
	assert.Equal(t, Decision{Kind: DecisionRetry, Delay: time.Second}, Decide(Retry(boom), 1, p))
	assert.Equal(t, Decision{Kind: DecisionRetry, Delay: 2 * time.Second}, Decide(Retry(boom), 2, p))
	assert.Equal(t, Decision{Kind: DecisionFail}, Decide(Retry(boom), 3, p))
	assert.Equal(t, Decision{Kind: DecisionFail}, Decide(Retry(boom), 4, p))
	assert.Equal(t, Decision{Kind: DecisionFail}, Decide(Fatal(boom), 1, p))
}

func TestFromError(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, FromError(nil).Outcome)
	assert.Equal(t, OutcomeRetry, FromError(errors.New("transient")).Outcome)

	wrapped := fmt.Errorf("parse: %w", &FatalError{Err: errors.New("corrupt")})
	r := FromError(wrapped)
	assert.Equal(t, OutcomeFatal, r.Outcome)
	assert.ErrorContains(t, r.Err, "corrupt")

	var re *RetryableError
	assert.True(t, errors.As(Retry(errors.New("x")).Err, &re))
}
