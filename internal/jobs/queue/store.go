package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/yungbote/deepmed-backend/internal/pkg/errors"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

const DefaultPrefix = "deepmed"

// promoteScript moves due ids from the delayed zset to the head of the wait list.
// KEYS: delayed, wait. ARGV: now ms, batch size, job key prefix.
var promoteScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LPUSH', KEYS[2], id)
  redis.call('HSET', ARGV[3] .. id, 'state', 'waiting', 'updated_at', ARGV[1])
end
return #ids
`)

// requeueScript drains the active list back into wait.
// KEYS: active, wait. ARGV: job key prefix, now ms.
var requeueScript = goredis.NewScript(`
local n = 0
while true do
  local id = redis.call('RPOPLPUSH', KEYS[1], KEYS[2])
  if not id then break end
  redis.call('HSET', ARGV[1] .. id, 'state', 'waiting', 'updated_at', ARGV[2])
  n = n + 1
end
return n
`)

type keySet struct {
	wait, active, delayed, completed, failed, id, jobPrefix string
}

// Store persists jobs and their queue membership in Redis. Every transition is a single MULTI or Lua
// call so a crash never leaves a job in two lists.
type Store struct {
	rdb    goredis.UniversalClient
	prefix string
	log    *logger.Logger
	now    func() time.Time
}

func NewStore(rdb goredis.UniversalClient, prefix string, baseLog *logger.Logger) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		rdb:    rdb,
		prefix: prefix,
		log:    baseLog.With("component", "QueueStore"),
		now:    time.Now,
	}
}

func (s *Store) keys(q Name) keySet {
	base := s.prefix + ":" + string(q) + ":"
	return keySet{
		wait:      base + "wait",
		active:    base + "active",
		delayed:   base + "delayed",
		completed: base + "completed",
		failed:    base + "failed",
		id:        base + "id",
		jobPrefix: base + "job:",
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

type EnqueueOptions struct {
	Policy    RetryPolicy
	TraceID   string
	RequestID string
}

func (s *Store) Enqueue(ctx context.Context, q Name, payload json.RawMessage, opts EnqueueOptions) (*Job, error) {
	if _, err := ParseName(string(q)); err != nil {
		return nil, err
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Policy.BackoffBase <= 0 {
		opts.Policy.BackoffBase = DefaultBackoffBase
	}
	k := s.keys(q)
	seq, err := s.rdb.Incr(ctx, k.id).Result()
	if err != nil {
		return nil, fmt.Errorf("allocate job id: %w", err)
	}
	now := s.now().UTC()
	job := &Job{
		ID:          strconv.FormatInt(seq, 10),
		Queue:       q,
		Payload:     payload,
		MaxAttempts: opts.Policy.MaxAttempts,
		BackoffBase: opts.Policy.BackoffBase,
		State:       StateWaiting,
		TraceID:     opts.TraceID,
		RequestID:   opts.RequestID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, k.jobPrefix+job.ID, job.toHash())
		p.LPush(ctx, k.wait, job.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", q, err)
	}
	return job, nil
}

// Claim blocks up to block for a waiting job and moves it to active, counting the attempt. It returns
// (nil, nil) when nothing arrived in time.
func (s *Store) Claim(ctx context.Context, q Name, block time.Duration) (*Job, error) {
	k := s.keys(q)
	id, err := s.rdb.BLMove(ctx, k.wait, k.active, "RIGHT", "LEFT", block).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().UnixMilli()
	var all *goredis.MapStringStringCmd
	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HIncrBy(ctx, k.jobPrefix+id, "attempts", 1)
		p.HSet(ctx, k.jobPrefix+id, "state", string(StateActive), "updated_at", now)
		all = p.HGetAll(ctx, k.jobPrefix+id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim %s/%s: %w", q, id, err)
	}
	job, err := jobFromHash(all.Val())
	if err != nil || job == nil {
		// id without a record; drop it so it is not claimed again
		s.log.Warn("dropping orphan job id", "queue", q, "job_id", id, "error", err)
		_ = s.rdb.LRem(ctx, k.active, 1, id).Err()
		_ = s.rdb.Del(ctx, k.jobPrefix+id).Err()
		return nil, nil
	}
	return job, nil
}

func (s *Store) Complete(ctx context.Context, job *Job, result any) error {
	k := s.keys(job.Queue)
	now := s.now().UTC()
	var raw []byte
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			s.log.Warn("job result not serializable", "queue", job.Queue, "job_id", job.ID, "error", err)
		} else {
			raw = b
		}
	}
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.LRem(ctx, k.active, 1, job.ID)
		p.LPush(ctx, k.completed, job.ID)
		p.HSet(ctx, k.jobPrefix+job.ID,
			"state", string(StateCompleted),
			"result", string(raw),
			"finished_at", now.UnixMilli(),
			"updated_at", now.UnixMilli(),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete %s/%s: %w", job.Queue, job.ID, err)
	}
	job.State = StateCompleted
	job.Result = raw
	job.FinishedAt = &now
	job.UpdatedAt = now
	return nil
}

// RetryLater parks the job in the delayed set; the promoter returns it to wait once delay elapses.
func (s *Store) RetryLater(ctx context.Context, job *Job, delay time.Duration, cause error) error {
	k := s.keys(job.Queue)
	now := s.now().UTC()
	readyAt := now.Add(delay).UnixMilli()
	msg := errString(cause)
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.LRem(ctx, k.active, 1, job.ID)
		p.ZAdd(ctx, k.delayed, goredis.Z{Score: float64(readyAt), Member: job.ID})
		p.HSet(ctx, k.jobPrefix+job.ID,
			"state", string(StateDelayed),
			"last_error", msg,
			"updated_at", now.UnixMilli(),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("retry %s/%s: %w", job.Queue, job.ID, err)
	}
	job.State = StateDelayed
	job.LastError = msg
	job.UpdatedAt = now
	return nil
}

func (s *Store) Fail(ctx context.Context, job *Job, cause error) error {
	k := s.keys(job.Queue)
	now := s.now().UTC()
	msg := errString(cause)
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.LRem(ctx, k.active, 1, job.ID)
		p.LPush(ctx, k.failed, job.ID)
		p.HSet(ctx, k.jobPrefix+job.ID,
			"state", string(StateFailed),
			"last_error", msg,
			"finished_at", now.UnixMilli(),
			"updated_at", now.UnixMilli(),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("fail %s/%s: %w", job.Queue, job.ID, err)
	}
	job.State = StateFailed
	job.LastError = msg
	job.FinishedAt = &now
	job.UpdatedAt = now
	return nil
}

// PromoteDue moves up to limit delayed jobs whose ready time has passed back to wait.
func (s *Store) PromoteDue(ctx context.Context, q Name, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	k := s.keys(q)
	n, err := promoteScript.Run(ctx, s.rdb, []string{k.delayed, k.wait}, s.now().UTC().UnixMilli(), limit, k.jobPrefix).Int()
	if err != nil {
		return 0, fmt.Errorf("promote %s: %w", q, err)
	}
	return n, nil
}

// RequeueActive returns every job left in active to wait. Called before workers start, when nothing in
// this process can own an active job.
func (s *Store) RequeueActive(ctx context.Context, q Name) (int, error) {
	k := s.keys(q)
	n, err := requeueScript.Run(ctx, s.rdb, []string{k.active, k.wait}, k.jobPrefix, s.now().UTC().UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("requeue %s: %w", q, err)
	}
	return n, nil
}

func (s *Store) Counts(ctx context.Context, q Name) (Counts, error) {
	k := s.keys(q)
	var waiting, active, completed, failed, delayed *goredis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		waiting = p.LLen(ctx, k.wait)
		active = p.LLen(ctx, k.active)
		completed = p.LLen(ctx, k.completed)
		failed = p.LLen(ctx, k.failed)
		delayed = p.ZCard(ctx, k.delayed)
		return nil
	})
	if err != nil {
		return Counts{}, fmt.Errorf("counts %s: %w", q, err)
	}
	return Counts{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
	}, nil
}

func (s *Store) Get(ctx context.Context, q Name, id string) (*Job, error) {
	h, err := s.rdb.HGetAll(ctx, s.keys(q).jobPrefix+id).Result()
	if err != nil {
		return nil, err
	}
	job, err := jobFromHash(h)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s/%s: %w", q, id, pkgerrors.ErrNotFound)
	}
	return job, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
