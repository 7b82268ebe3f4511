package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/yungbote/deepmed-backend/internal/pkg/errors"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, "test", logger.Nop()), mr
}

func TestStoreLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	job, err := s.Enqueue(ctx, DocumentIndexing, json.RawMessage(`{"documentId":"x"}`), EnqueueOptions{})
	require.NoError(t, err)
	assert.Equal(t, "1", job.ID)
	assert.Equal(t, DefaultMaxAttempts, job.MaxAttempts)

	counts, err := s.Counts(ctx, DocumentIndexing)
	require.NoError(t, err)
	assert.Equal(t, Counts{Waiting: 1}, counts)

	claimed, err := s.Claim(ctx, DocumentIndexing, time.Second)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, 1, claimed.Attempts)
	assert.Equal(t, StateActive, claimed.State)

	require.NoError(t, s.Complete(ctx, claimed, map[string]int{"chunks": 3}))
	counts, _ = s.Counts(ctx, DocumentIndexing)
	assert.Equal(t, Counts{Completed: 1}, counts)

	stored, err := s.Get(ctx, DocumentIndexing, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, stored.State)
	assert.JSONEq(t, `{"chunks":3}`, string(stored.Result))
	assert.NotNil(t, stored.FinishedAt)

	// other queues are untouched
	other, _ := s.Counts(ctx, PDFProcessing)
	assert.Zero(t, other.Total())
}

func TestStoreRetryAndPromote(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, err := s.Enqueue(ctx, ConvertToMarkdown, json.RawMessage(`{}`), EnqueueOptions{})
	require.NoError(t, err)
	job, err := s.Claim(ctx, ConvertToMarkdown, time.Second)
	require.NoError(t, err)

	require.NoError(t, s.RetryLater(ctx, job, 2*time.Second, errors.New("flaky")))
	counts, _ := s.Counts(ctx, ConvertToMarkdown)
	assert.Equal(t, Counts{Delayed: 1}, counts)

	n, err := s.PromoteDue(ctx, ConvertToMarkdown, 10)
	require.NoError(t, err)
	assert.Zero(t, n, "not due yet")

	now = now.Add(2 * time.Second)
	n, err = s.PromoteDue(ctx, ConvertToMarkdown, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := s.Claim(ctx, ConvertToMarkdown, time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, 2, again.Attempts)
	assert.Equal(t, "flaky", again.LastError)

	require.NoError(t, s.Fail(ctx, again, errors.New("gave up")))
	stored, err := s.Get(ctx, ConvertToMarkdown, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, stored.State)
	assert.Equal(t, "gave up", stored.LastError)
	counts, _ = s.Counts(ctx, ConvertToMarkdown)
	assert.Equal(t, Counts{Failed: 1}, counts)
}

func TestStoreRequeueActive(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.Enqueue(ctx, PDFProcessing, json.RawMessage(`{}`), EnqueueOptions{})
		require.NoError(t, err)
		_, err = s.Claim(ctx, PDFProcessing, time.Second)
		require.NoError(t, err)
	}
	counts, _ := s.Counts(ctx, PDFProcessing)
	require.Equal(t, int64(2), counts.Active)

	n, err := s.RequeueActive(ctx, PDFProcessing)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	counts, _ = s.Counts(ctx, PDFProcessing)
	assert.Equal(t, Counts{Waiting: 2}, counts)

	job, err := s.Get(ctx, PDFProcessing, "1")
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, job.State)
}

func TestStoreGetMissing(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Get(context.Background(), PDFProcessing, "404")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestStoreEnqueueUnknownQueue(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Enqueue(context.Background(), Name("mail"), json.RawMessage(`{}`), EnqueueOptions{})
	assert.ErrorIs(t, err, pkgerrors.ErrUnknownQueue)
}
