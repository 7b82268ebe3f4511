package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
	"github.com/yungbote/deepmed-backend/internal/realtime"
)

// memoryBus is the in-process Bus used in tests and when Redis is not configured. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type memoryBus struct {
	log *logger.Logger

	mu        sync.RWMutex
	subs      map[string]map[chan realtime.ProgressEvent]struct{}
	snapshots map[string]realtime.ProgressEvent
	done      chan struct{}
}

func NewMemoryBus(log *logger.Logger) Bus {
	return &memoryBus{
		log:       log.With("service", "MemoryProgressBus"),
		subs:      make(map[string]map[chan realtime.ProgressEvent]struct{}),
		snapshots: make(map[string]realtime.ProgressEvent),
		done:      make(chan struct{}),
	}
}

func (b *memoryBus) Publish(ctx context.Context, subject string, ev realtime.ProgressEvent) error {
	if subject == "" {
		return fmt.Errorf("subject required")
	}
	ev.Subject = subject
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		return fmt.Errorf("bus closed")
	default:
	}
	b.snapshots[subject] = ev
	for ch := range b.subs[subject] {
		select {
		case ch <- ev:
		default:
			b.log.Warn("Dropping progress event; subscriber buffer full", "subject", subject, "type", ev.Type)
		}
	}
	b.mu.Unlock()
	return nil
}

func (b *memoryBus) Subscribe(ctx context.Context, subject string) (*realtime.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return nil, fmt.Errorf("bus closed")
	default:
	}

	ch := make(chan realtime.ProgressEvent, subscriberBuffer)
	if b.subs[subject] == nil {
		b.subs[subject] = make(map[chan realtime.ProgressEvent]struct{})
	}
	b.subs[subject][ch] = struct{}{}

	release := func() { b.unsubscribe(subject, ch) }
	go func() {
		select {
		case <-ctx.Done():
			release()
		case <-b.done:
		}
	}()
	return realtime.NewSubscription(ch, release), nil
}

func (b *memoryBus) unsubscribe(subject string, ch chan realtime.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[subject]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(b.subs, subject)
	}
}

func (b *memoryBus) Snapshot(ctx context.Context, subject string) (*realtime.ProgressEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ev, ok := b.snapshots[subject]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

// SubscriberCount reports live subscriptions for subject.
func (b *memoryBus) SubscriberCount(subject string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[subject])
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.done:
		return nil
	default:
		close(b.done)
	}
	for subject, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, subject)
	}
	return nil
}
