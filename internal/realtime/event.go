package realtime

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventQueued      EventType = "queued"
	EventStarted     EventType = "started"
	EventProgress    EventType = "progress"
	EventStatus      EventType = "status"
	EventComplete    EventType = "complete"
	EventError       EventType = "error"
	EventThink       EventType = "think"
	EventSearchQuery EventType = "searchQuery"
	EventVisitURL    EventType = "visitUrl"
	EventReadContent EventType = "readContent"
	EventResult      EventType = "result"
)

// ProgressEvent is one lifecycle update about a subject (a document or task id). Events are ephemeral:
// only the latest per subject is kept, as a snapshot.
type ProgressEvent struct {
	Subject   string         `json:"subject"`
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

func NewEvent(subject string, t EventType, payload map[string]any) ProgressEvent {
	return ProgressEvent{
		Subject:   subject,
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// IsTerminal reports whether no further events are expected for the subject.
func (e ProgressEvent) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// FrameData is the JSON carried on a stream data line: the payload fields flattened alongside type and
// timestamp, which take precedence over payload keys of the same name.
func (e ProgressEvent) FrameData() ([]byte, error) {
	m := make(map[string]any, len(e.Payload)+2)
	for k, v := range e.Payload {
		m[k] = v
	}
	m["type"] = e.Type
	m["timestamp"] = e.Timestamp
	return json.Marshal(m)
}
