// Command queuectl inspects and feeds the ingestion queues through the same Redis the server uses.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/yungbote/deepmed-backend/internal/jobs/orchestrator"
	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
	"github.com/yungbote/deepmed-backend/internal/jobs/runtime"
	"github.com/yungbote/deepmed-backend/internal/pkg/envutil"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
	"github.com/yungbote/deepmed-backend/internal/realtime/bus"
	"github.com/yungbote/deepmed-backend/internal/services"
)

// JobQueue is the part of the orchestrator the commands drive. Jobs are only written and read here;
// nothing is consumed.
type JobQueue interface {
	EnqueueRaw(ctx context.Context, name string, raw []byte) (string, error)
	Status(ctx context.Context, name string) (queue.Counts, error)
	StatusAll(ctx context.Context) (map[queue.Name]queue.Counts, error)
	Job(ctx context.Context, name, id string) (*queue.Job, error)
}

type redisFlags struct {
	addr        string
	password    string
	db          int
	prefix      string
	snapshotTTL time.Duration
}

// connect returns an orchestrator with no handlers; it is never started. Enqueued jobs are announced
// on the progress bus the same way the server announces them.
func (f redisFlags) connect() (JobQueue, func() error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: f.addr, Password: f.password, DB: f.db})
	log := logger.Nop()
	cfg := orchestrator.Config{}
	if progress, err := bus.NewRedisBus(rdb, f.snapshotTTL, log); err == nil {
		cfg.OnEnqueued = services.NewQueuedPublisher(log, progress)
	}
	store := queue.NewStore(rdb, f.prefix, log)
	return orchestrator.New(store, runtime.NewRegistry(), log, cfg), rdb.Close
}

func newRootCmd(open func() (JobQueue, func() error)) *cobra.Command {
	flags := redisFlags{}
	root := &cobra.Command{
		Use:           "queuectl",
		Short:         "Inspect and enqueue ingestion jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.addr, "redis-addr", envutil.String("REDIS_ADDR", "localhost:6379"), "Redis address")
	root.PersistentFlags().StringVar(&flags.password, "redis-password", envutil.String("REDIS_PASSWORD", ""), "Redis password")
	root.PersistentFlags().IntVar(&flags.db, "redis-db", envutil.Int("REDIS_DB", 0), "Redis database")
	root.PersistentFlags().StringVar(&flags.prefix, "prefix", envutil.String("QUEUE_PREFIX", "deepmed"), "Queue key prefix")
	root.PersistentFlags().DurationVar(&flags.snapshotTTL, "snapshot-ttl", envutil.Duration("PROGRESS_SNAPSHOT_TTL", time.Hour), "Progress snapshot TTL")

	if open == nil {
		open = func() (JobQueue, func() error) { return flags.connect() }
	}
	root.AddCommand(newEnqueueCmd(open), newStatusCmd(open), newJobCmd(open))
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(nil).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "queuectl:", err)
		os.Exit(1)
	}
}
