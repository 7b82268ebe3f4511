package runtime

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
	"github.com/yungbote/deepmed-backend/internal/pkg/ctxutil"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	h := HandlerFunc{Name: queue.DocumentIndexing, Fn: func(*Context) queue.Result { return queue.Success(nil) }}
	require.NoError(t, r.Register(h))
	assert.Error(t, r.Register(h), "duplicate")
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(HandlerFunc{Name: "bogus"}))

	got, ok := r.Get(queue.DocumentIndexing)
	require.True(t, ok)
	assert.Equal(t, queue.DocumentIndexing, got.Queue())
	_, ok = r.Get(queue.PDFProcessing)
	assert.False(t, ok)
}

func TestContext(t *testing.T) {
	id := uuid.New()
	job := &queue.Job{ID: "7", Queue: queue.DocumentIndexing, Attempts: 3, MaxAttempts: 3, TraceID: "t-1", RequestID: "r-1"}
	c := NewContext(context.Background(), job, queue.DocumentIndexingPayload{DocumentID: id.String()}, logger.Nop())

	got, err := c.DocumentID()
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.True(t, c.LastAttempt())

	td := ctxutil.GetTraceData(c.Ctx)
	require.NotNil(t, td)
	assert.Equal(t, "t-1", td.TraceID)
	assert.Equal(t, "r-1", td.RequestID)

	bad := NewContext(context.Background(), job, queue.DocumentIndexingPayload{DocumentID: "nope"}, logger.Nop())
	_, err = bad.DocumentID()
	assert.Error(t, err)
}
