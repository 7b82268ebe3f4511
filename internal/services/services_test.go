package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/deepmed-backend/internal/data/repos"
	"github.com/yungbote/deepmed-backend/internal/data/repos/testutil"
	types "github.com/yungbote/deepmed-backend/internal/domain"
	"github.com/yungbote/deepmed-backend/internal/jobs/orchestrator"
	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
	"github.com/yungbote/deepmed-backend/internal/jobs/runtime"
	"github.com/yungbote/deepmed-backend/internal/pkg/dbctx"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
	"github.com/yungbote/deepmed-backend/internal/realtime"
	"github.com/yungbote/deepmed-backend/internal/realtime/bus"
)

type fixture struct {
	docs     repos.DocumentRepo
	bus      bus.Bus
	progress ProgressReporter
	notifier JobNotifier
	doc      *types.Document
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	ctx := context.Background()
	log := logger.Nop()
	kb := testutil.SeedKnowledgeBase(t, ctx, db)
	doc := testutil.SeedDocument(t, ctx, db, kb.ID, "report.md")

	f := &fixture{docs: repos.NewDocumentRepo(db, log), bus: bus.NewMemoryBus(log), doc: doc}
	f.progress = NewProgressReporter(log, f.docs, f.bus)
	f.notifier = NewJobNotifier(log, f.bus, f.progress)
	t.Cleanup(func() { _ = f.bus.Close() })
	return f
}

func (f *fixture) snapshot(t *testing.T, subject string) *realtime.ProgressEvent {
	t.Helper()
	ev, err := f.bus.Snapshot(context.Background(), subject)
	require.NoError(t, err)
	require.NotNil(t, ev)
	return ev
}

func TestProgressReporterUpdatesDocumentAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subject := f.doc.ID.String()

	require.NoError(t, f.progress.Started(ctx, f.doc.ID, types.DocumentStatusIndexing, "indexing"))
	assert.Equal(t, realtime.EventStarted, f.snapshot(t, subject).Type)

	require.NoError(t, f.progress.Progress(ctx, f.doc.ID, 1.7, "almost"))
	ev := f.snapshot(t, subject)
	assert.Equal(t, realtime.EventProgress, ev.Type)
	assert.EqualValues(t, 1, ev.Payload["progress"])

	stored, err := f.docs.GetByID(dbctx.Context{Ctx: ctx}, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DocumentStatusIndexing, stored.Status)
	assert.Equal(t, 1.0, stored.Progress)
	assert.Equal(t, "almost", stored.ProgressMsg)

	require.NoError(t, f.progress.Error(ctx, f.doc.ID, errors.New("parse failed")))
	ev = f.snapshot(t, subject)
	assert.Equal(t, realtime.EventError, ev.Type)
	assert.Equal(t, "parse failed", ev.Payload["error"])
	stored, err = f.docs.GetByID(dbctx.Context{Ctx: ctx}, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DocumentStatusFailed, stored.Status)
}

func TestJobNotifierRelaysLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subject := f.doc.ID.String()

	events := make(chan orchestrator.LifecycleEvent, 4)
	done := make(chan struct{})
	go func() {
		f.notifier.Run(ctx, events)
		close(done)
	}()

	sub, err := f.bus.Subscribe(ctx, subject)
	require.NoError(t, err)
	defer sub.Close()

	events <- orchestrator.LifecycleEvent{JobID: "1", Queue: queue.ConvertToMarkdown, DocumentID: subject, State: queue.StateCompleted, Attempts: 1}
	events <- orchestrator.LifecycleEvent{JobID: "7", Queue: queue.DocumentIndexing, DocumentID: subject, State: queue.StateCompleted, Attempts: 2, Result: []byte(`{"chunks":4}`)}
	close(events)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notifier did not stop after channel close")
	}

	first := <-sub.C
	assert.Equal(t, realtime.EventStatus, first.Type)
	assert.False(t, first.IsTerminal())

	second := <-sub.C
	assert.Equal(t, realtime.EventComplete, second.Type)
	assert.Equal(t, "7", second.Payload["jobId"])
	assert.Equal(t, map[string]any{"chunks": float64(4)}, second.Payload["result"])
}

func TestJobNotifierFailureMarksDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.notifier.JobFailed(ctx, orchestrator.LifecycleEvent{
		JobID: "3", Queue: queue.PDFProcessing, DocumentID: f.doc.ID.String(), State: queue.StateFailed, Attempts: 3, Error: "pdf: corrupt xref",
	})

	ev := f.snapshot(t, f.doc.ID.String())
	assert.Equal(t, realtime.EventError, ev.Type)
	assert.Equal(t, "pdf: corrupt xref", ev.Payload["error"])

	stored, err := f.docs.GetByID(dbctx.Context{Ctx: ctx}, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DocumentStatusFailed, stored.Status)
	assert.Equal(t, "pdf: corrupt xref", stored.Error)
}

func TestJobNotifierUnknownDocumentStillPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := uuid.New().String()

	f.notifier.JobFailed(ctx, orchestrator.LifecycleEvent{JobID: "9", Queue: queue.DocumentIndexing, DocumentID: missing, State: queue.StateFailed, Error: "boom"})
	ev := f.snapshot(t, missing)
	assert.Equal(t, realtime.EventError, ev.Type)

	f.notifier.JobDone(ctx, orchestrator.LifecycleEvent{JobID: "10", Queue: queue.ConvertToMarkdown, State: queue.StateCompleted})
	ev = f.snapshot(t, "document-convert-to-markdown:10")
	assert.Equal(t, realtime.EventStatus, ev.Type)
}

type countingSource struct {
	calls atomic.Int32
	err   error
}

func (s *countingSource) StatusAll(context.Context) (map[queue.Name]queue.Counts, error) {
	s.calls.Add(1)
	return map[queue.Name]queue.Counts{queue.DocumentIndexing: {Waiting: 2}}, s.err
}

func TestQueueStatusReporter(t *testing.T) {
	src := &countingSource{}
	r := NewQueueStatusReporter(logger.Nop(), src)
	r.Report()
	assert.EqualValues(t, 1, src.calls.Load())

	src.err = errors.New("redis down")
	r.Report()
	assert.EqualValues(t, 2, src.calls.Load())

	require.Error(t, r.Start("not a schedule"))

	r = NewQueueStatusReporter(logger.Nop(), src)
	require.NoError(t, r.Start("@every 1h"))
	r.Stop()
}

func TestEnqueueReplacesStaleTerminalSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subject := f.doc.ID.String()
	require.NoError(t, f.progress.Complete(ctx, f.doc.ID, nil))
	require.Equal(t, realtime.EventComplete, f.snapshot(t, subject).Type)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	orch := orchestrator.New(queue.NewStore(rdb, "test", logger.Nop()), runtime.NewRegistry(), logger.Nop(), orchestrator.Config{
		OnEnqueued: NewQueuedPublisher(logger.Nop(), f.bus),
	})

	jobID, err := orch.Enqueue(ctx, queue.ConvertToMarkdownPayload{DocumentID: subject})
	require.NoError(t, err)

	ev := f.snapshot(t, subject)
	assert.Equal(t, realtime.EventQueued, ev.Type)
	assert.False(t, ev.IsTerminal())
	assert.Equal(t, jobID, ev.Payload["jobId"])
	assert.Equal(t, string(queue.ConvertToMarkdown), ev.Payload["queue"])
}
