package bus

import (
	"context"

	"github.com/yungbote/deepmed-backend/internal/realtime"
)

const (
	channelPrefix  = "document:progress:"
	snapshotPrefix = "document:progress:last:"
)

// Bus fans progress events out to every live subscriber of a subject and remembers the latest event
// per subject. Late subscribers get the snapshot, never a replay.
type Bus interface {
	Publish(ctx context.Context, subject string, ev realtime.ProgressEvent) error
	Subscribe(ctx context.Context, subject string) (*realtime.Subscription, error)
	Snapshot(ctx context.Context, subject string) (*realtime.ProgressEvent, error)
	Close() error
}

func Channel(subject string) string     { return channelPrefix + subject }
func SnapshotKey(subject string) string { return snapshotPrefix + subject }
