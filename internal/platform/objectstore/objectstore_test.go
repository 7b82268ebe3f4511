package objectstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/yungbote/deepmed-backend/internal/pkg/errors"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, logger.Nop(), Config{Mode: ModeLocal, LocalDir: t.TempDir()})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, "kb/doc/report.md", strings.NewReader("# Title"), ""))
	rc, err := s.Open(ctx, "/kb/doc/report.md")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "# Title", string(body))

	require.NoError(t, s.Delete(ctx, "kb/doc/report.md"))
	require.NoError(t, s.Delete(ctx, "kb/doc/report.md"))
	_, err = s.Open(ctx, "kb/doc/report.md")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStore(logger.Nop(), t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Put(context.Background(), "../../etc/passwd", strings.NewReader("x"), ""))
	assert.Error(t, s.Put(context.Background(), "  ", strings.NewReader("x"), ""))
}

func TestNewRejectsUnknownMode(t *testing.T) {
	_, err := New(context.Background(), logger.Nop(), Config{Mode: "s3"})
	assert.ErrorContains(t, err, "invalid OBJECT_STORAGE_MODE")
}

func TestContentTypeForKey(t *testing.T) {
	assert.Equal(t, "text/markdown; charset=utf-8", contentTypeForKey("a/b.md"))
	assert.Equal(t, "application/pdf", contentTypeForKey("a/b.pdf"))
	assert.Equal(t, "", contentTypeForKey("noext"))
}
