package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
	"github.com/yungbote/deepmed-backend/internal/realtime"
)

const (
	DefaultSnapshotTTL = time.Hour
	subscriberBuffer   = 64
)

type redisBus struct {
	log         *logger.Logger
	rdb         goredis.UniversalClient
	snapshotTTL time.Duration
}

// NewRedisBus publishes on document:progress:<subject> and stores the latest event at
// document:progress:last:<subject>. The client is owned by the caller.
func NewRedisBus(rdb goredis.UniversalClient, snapshotTTL time.Duration, log *logger.Logger) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if snapshotTTL <= 0 {
		snapshotTTL = DefaultSnapshotTTL
	}
	return &redisBus{
		log:         log.With("service", "RedisProgressBus"),
		rdb:         rdb,
		snapshotTTL: snapshotTTL,
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, subject string, ev realtime.ProgressEvent) error {
	if subject == "" {
		return fmt.Errorf("subject required")
	}
	ev.Subject = subject
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = b.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, SnapshotKey(subject), raw, b.snapshotTTL)
		p.Publish(ctx, Channel(subject), raw)
		return nil
	})
	return err
}

func (b *redisBus) Subscribe(ctx context.Context, subject string) (*realtime.Subscription, error) {
	sub := b.rdb.Subscribe(ctx, Channel(subject))

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan realtime.ProgressEvent, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev realtime.ProgressEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad redis progress payload", "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return realtime.NewSubscription(out, func() {
		close(done)
		_ = sub.Close()
	}), nil
}

func (b *redisBus) Snapshot(ctx context.Context, subject string) (*realtime.ProgressEvent, error) {
	raw, err := b.rdb.Get(ctx, SnapshotKey(subject)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ev realtime.ProgressEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &ev, nil
}

// Close is a no-op; the shared client is closed by its owner.
func (b *redisBus) Close() error { return nil }
