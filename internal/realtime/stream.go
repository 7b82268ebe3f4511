package realtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

const (
	DefaultRetryInterval = 5 * time.Second
	DefaultHeartbeat     = 30 * time.Second
	DefaultGrace         = time.Second
)

// Source is the subscribe side of the progress bus.
type Source interface {
	Subscribe(ctx context.Context, subject string) (*Subscription, error)
	// Snapshot returns the last event published for subject, or nil.
	Snapshot(ctx context.Context, subject string) (*ProgressEvent, error)
}

type StreamOptions struct {
	RetryInterval time.Duration
	Heartbeat     time.Duration
	// Grace is how long the stream stays open after a terminal event so the frame reaches the client.
	Grace time.Duration
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = DefaultHeartbeat
	}
	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}
	return o
}

// Stream relays one subject's events to one client as text/event-stream frames. All writes happen on
// the goroutine running Run, so nothing is written after Run returns.
type Stream struct {
	src     Source
	subject string
	w       io.Writer
	flusher http.Flusher
	opts    StreamOptions
	log     *logger.Logger

	closed   bool
	sub      *Subscription
	grace    *time.Timer
	teardown sync.Once
}

func NewStream(src Source, subject string, w io.Writer, opts StreamOptions, baseLog *logger.Logger) *Stream {
	s := &Stream{
		src:     src,
		subject: subject,
		w:       w,
		opts:    opts.withDefaults(),
		log:     baseLog.With("component", "ProgressStream", "subject", subject),
	}
	if f, ok := w.(http.Flusher); ok {
		s.flusher = f
	}
	return s
}

// SetHeaders writes the response headers a streaming client and any proxy in between need.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Run streams until ctx is cancelled, the grace period after a terminal event elapses, the
// subscription ends, or a write fails. The only error returned is a failed subscription.
func (s *Stream) Run(ctx context.Context) error {
	defer s.close()

	s.write(fmt.Sprintf("retry: %d\n\n", s.opts.RetryInterval.Milliseconds()))
	s.write(fmt.Sprintf(": ping %d\n\n", time.Now().UnixMilli()))
	if s.closed {
		return nil
	}

	sub, err := s.src.Subscribe(ctx, s.subject)
	if err != nil {
		s.log.Warn("subscribe failed", "error", err)
		s.write("event: error\ndata: {\"error\":\"subscribe failed\"}\n\n")
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	s.sub = sub

	var graceC <-chan time.Time
	onEvent := func(ev ProgressEvent) {
		s.writeEvent(ev)
		if ev.IsTerminal() && !s.closed {
			graceC = s.restartGrace()
		}
	}

	// The subscription opens before the snapshot is read, so the snapshot may also arrive live.
	var replayed *ProgressEvent
	if snap, err := s.src.Snapshot(ctx, s.subject); err != nil {
		s.log.Debug("snapshot unavailable", "error", err)
	} else if snap != nil {
		replayed = snap
		onEvent(*snap)
	}

	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()

	for !s.closed {
		select {
		case <-ctx.Done():
			return nil
		case <-graceC:
			return nil
		case <-heartbeat.C:
			s.write(fmt.Sprintf(": heartbeat %d\n\n", time.Now().UnixMilli()))
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if replayed != nil && ev.Type == replayed.Type && ev.Timestamp == replayed.Timestamp {
				replayed = nil
				continue
			}
			onEvent(ev)
		}
	}
	return nil
}

// restartGrace replaces any pending close timer; a second terminal event does not stack closures.
func (s *Stream) restartGrace() <-chan time.Time {
	if s.grace != nil {
		s.grace.Stop()
	}
	s.grace = time.NewTimer(s.opts.Grace)
	return s.grace.C
}

func (s *Stream) writeEvent(ev ProgressEvent) {
	data, err := ev.FrameData()
	if err != nil {
		s.log.Warn("Failed to marshal progress event", "type", ev.Type, "error", err)
		return
	}
	s.write(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, data))
}

// write drops frames once the client is gone; a failed write is the normal way a disconnect shows up.
func (s *Stream) write(frame string) {
	if s.closed {
		return
	}
	if _, err := io.WriteString(s.w, frame); err != nil {
		s.log.Debug("client gone", "error", err)
		s.closed = true
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *Stream) close() {
	s.teardown.Do(func() {
		s.closed = true
		if s.grace != nil {
			s.grace.Stop()
		}
		s.sub.Close()
	})
}
