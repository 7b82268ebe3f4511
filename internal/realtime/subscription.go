package realtime

import "sync"

// Subscription is a live feed of events for one subject. Close releases it and is safe to call more
// than once; C is closed once the subscription ends.
type Subscription struct {
	C <-chan ProgressEvent

	once    sync.Once
	release func()
}

func NewSubscription(c <-chan ProgressEvent, release func()) *Subscription {
	return &Subscription{C: c, release: release}
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}
