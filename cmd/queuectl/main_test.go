package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
	"github.com/yungbote/deepmed-backend/internal/realtime"
	"github.com/yungbote/deepmed-backend/internal/realtime/bus"
)

func run(t *testing.T, mr *miniredis.Miniredis, stdin string, args ...string) (string, error) {
	t.Helper()
	flags := redisFlags{addr: mr.Addr(), prefix: "test", snapshotTTL: time.Hour}
	root := newRootCmd(func() (JobQueue, func() error) { return flags.connect() })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestEnqueueStatusAndJob(t *testing.T) {
	mr := miniredis.RunT(t)
	docID := uuid.NewString()

	out, err := run(t, mr, "", "enqueue", "pdf-processing", "--document", docID)
	require.NoError(t, err)
	assert.Equal(t, "enqueued pdf-processing job 1\n", out)
	raw, err := mr.Get(bus.SnapshotKey(docID))
	require.NoError(t, err)
	var snap realtime.ProgressEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &snap))
	assert.Equal(t, realtime.EventQueued, snap.Type)

	out, err = run(t, mr, "", "status", "pdf-processing")
	require.NoError(t, err)
	var st struct {
		Counts queue.Counts `json:"counts"`
		Total  int64        `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, int64(1), st.Counts.Waiting)
	assert.Equal(t, int64(1), st.Total)

	out, err = run(t, mr, "", "job", "pdf-processing", "1")
	require.NoError(t, err)
	var job queue.Job
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, queue.StateWaiting, job.State)
	var p queue.PDFProcessingPayload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	assert.Equal(t, queue.OperationConvertToMarkdown, p.Operation)
	assert.Equal(t, docID, p.DocumentID)
}

func TestEnqueueRawPayloadFromStdin(t *testing.T) {
	mr := miniredis.RunT(t)
	body := `{"documentId":"` + uuid.NewString() + `"}`

	_, err := run(t, mr, body, "enqueue", "document-indexing", "--payload", "-")
	require.NoError(t, err)

	out, err := run(t, mr, "", "status")
	require.NoError(t, err)
	var all map[string]queue.Counts
	require.NoError(t, json.Unmarshal([]byte(out), &all))
	assert.Len(t, all, 3)
	assert.Equal(t, int64(1), all["document-indexing"].Waiting)
}

func TestEnqueueRejectsBadInput(t *testing.T) {
	mr := miniredis.RunT(t)

	_, err := run(t, mr, "", "enqueue", "document-indexing")
	require.Error(t, err)

	_, err = run(t, mr, "", "enqueue", "document-indexing", "--document", "not-a-uuid")
	require.Error(t, err)

	_, err = run(t, mr, "", "enqueue", "emails", "--document", uuid.NewString())
	require.Error(t, err)

	_, err = run(t, mr, "", "job", "document-indexing", "99")
	require.Error(t, err)
}
