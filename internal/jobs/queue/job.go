package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateDelayed   State = "delayed"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// Job is the persisted record of one unit of work. Terminal jobs are kept as history.
type Job struct {
	ID          string          `json:"id"`
	Queue       Name            `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	BackoffBase time.Duration   `json:"backoffBase"`
	State       State           `json:"state"`
	LastError   string          `json:"lastError,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	TraceID     string          `json:"traceId,omitempty"`
	RequestID   string          `json:"requestId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
}

func (j *Job) Policy() RetryPolicy {
	return RetryPolicy{MaxAttempts: j.MaxAttempts, BackoffBase: j.BackoffBase}
}

// DecodePayload returns the typed payload for the job's queue.
func (j *Job) DecodePayload() (Payload, error) {
	return DecodePayload(j.Queue, j.Payload)
}

func (j *Job) toHash() map[string]interface{} {
	h := map[string]interface{}{
		"id":           j.ID,
		"queue":        string(j.Queue),
		"payload":      string(j.Payload),
		"attempts":     j.Attempts,
		"max_attempts": j.MaxAttempts,
		"backoff_ms":   j.BackoffBase.Milliseconds(),
		"state":        string(j.State),
		"last_error":   j.LastError,
		"trace_id":     j.TraceID,
		"request_id":   j.RequestID,
		"created_at":   j.CreatedAt.UnixMilli(),
		"updated_at":   j.UpdatedAt.UnixMilli(),
	}
	if len(j.Result) > 0 {
		h["result"] = string(j.Result)
	}
	return h
}

func jobFromHash(h map[string]string) (*Job, error) {
	if len(h) == 0 {
		return nil, nil
	}
	atoi := func(k string) int {
		n, _ := strconv.Atoi(h[k])
		return n
	}
	msec := func(k string) int64 {
		n, _ := strconv.ParseInt(h[k], 10, 64)
		return n
	}
	j := &Job{
		ID:          h["id"],
		Queue:       Name(h["queue"]),
		Payload:     json.RawMessage(h["payload"]),
		Attempts:    atoi("attempts"),
		MaxAttempts: atoi("max_attempts"),
		BackoffBase: time.Duration(msec("backoff_ms")) * time.Millisecond,
		State:       State(h["state"]),
		LastError:   h["last_error"],
		TraceID:     h["trace_id"],
		RequestID:   h["request_id"],
		CreatedAt:   time.UnixMilli(msec("created_at")).UTC(),
		UpdatedAt:   time.UnixMilli(msec("updated_at")).UTC(),
	}
	if j.ID == "" {
		return nil, fmt.Errorf("job hash missing id")
	}
	if r := h["result"]; r != "" {
		j.Result = json.RawMessage(r)
	}
	if f := msec("finished_at"); f > 0 {
		t := time.UnixMilli(f).UTC()
		j.FinishedAt = &t
	}
	return j, nil
}

// Counts is a point-in-time view of one queue.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

func (c Counts) Total() int64 {
	return c.Waiting + c.Active + c.Completed + c.Failed + c.Delayed
}
