package embedding

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/deepmed-backend/internal/domain"
	"github.com/yungbote/deepmed-backend/internal/pkg/dbctx"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

type fakeEmbedder struct {
	model string
	calls *atomic.Int32
	err   error
}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...einoEmbedding.Option) ([][]float64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), float64(len(f.model))}
	}
	return out, nil
}

type fakeSettings struct {
	byUser map[uuid.UUID]*types.ProviderSetting
	loads  atomic.Int32
}

func (s *fakeSettings) GetByUserID(_ dbctx.Context, id uuid.UUID) (*types.ProviderSetting, error) {
	s.loads.Add(1)
	return s.byUser[id], nil
}

func (s *fakeSettings) Upsert(_ dbctx.Context, ps *types.ProviderSetting) error {
	s.byUser[ps.UserID] = ps
	return nil
}

func TestProviderResolvesPerUserOverride(t *testing.T) {
	user := uuid.New()
	settings := &fakeSettings{byUser: map[uuid.UUID]*types.ProviderSetting{
		user: {UserID: user, EmbeddingModel: "bge-large", APIKey: "user-key"},
	}}
	var built []Config
	calls := &atomic.Int32{}
	factory := func(_ context.Context, cfg Config) (einoEmbedding.Embedder, error) {
		built = append(built, cfg)
		return &fakeEmbedder{model: cfg.Model, calls: calls}, nil
	}
	p := NewProvider(logger.Nop(), Config{APIKey: "default-key", RPS: 1000}, settings, factory)
	ctx := context.Background()

	v, err := p.Embed(ctx, uuid.Nil, "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, float32(len(DefaultModel))}, v)

	v, err = p.Embed(ctx, user, "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 9}, v)
	assert.Equal(t, "bge-large", p.Model(ctx, user))

	_, err = p.Embed(ctx, user, "again")
	require.NoError(t, err)
	require.Len(t, built, 2, "clients are reused per configuration")
	assert.Equal(t, "user-key", built[1].APIKey)
	assert.EqualValues(t, 3, calls.Load())
}

func TestProviderBatchesLargeInputs(t *testing.T) {
	calls := &atomic.Int32{}
	p := NewProvider(logger.Nop(), Config{APIKey: "k", RPS: 1000}, nil, func(context.Context, Config) (einoEmbedding.Embedder, error) {
		return &fakeEmbedder{calls: calls}, nil
	})
	texts := make([]string, maxBatch*2+1)
	for i := range texts {
		texts[i] = "x"
	}
	out, err := p.EmbedBatch(context.Background(), uuid.Nil, texts)
	require.NoError(t, err)
	assert.Len(t, out, len(texts))
	assert.EqualValues(t, 3, calls.Load())
}

func TestProviderErrors(t *testing.T) {
	p := NewProvider(logger.Nop(), Config{}, nil, nil)
	_, err := p.Embed(context.Background(), uuid.Nil, "x")
	assert.ErrorIs(t, err, ErrNotConfigured)

	calls := &atomic.Int32{}
	p = NewProvider(logger.Nop(), Config{APIKey: "k", RPS: 1000}, nil, func(context.Context, Config) (einoEmbedding.Embedder, error) {
		return &fakeEmbedder{calls: calls, err: errors.New("429 too many requests")}, nil
	})
	_, err = p.Embed(context.Background(), uuid.Nil, "x")
	assert.ErrorContains(t, err, "429")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Embed(ctx, uuid.Nil, "x")
	assert.Error(t, err)
}

func TestProviderRequestScopeLoadsSettingOnce(t *testing.T) {
	user := uuid.New()
	settings := &fakeSettings{byUser: map[uuid.UUID]*types.ProviderSetting{
		user: {UserID: user, EmbeddingModel: "bge-large", APIKey: "user-key"},
	}}
	calls := &atomic.Int32{}
	factory := func(_ context.Context, cfg Config) (einoEmbedding.Embedder, error) {
		return &fakeEmbedder{model: cfg.Model, calls: calls}, nil
	}
	p := NewProvider(logger.Nop(), Config{APIKey: "default-key", RPS: 1000}, settings, factory)

	ctx := p.WithRequestScope(context.Background())
	assert.Same(t, ctx, p.WithRequestScope(ctx))
	assert.Equal(t, "bge-large", p.Model(ctx, user))
	_, err := p.Embed(ctx, user, "hello")
	require.NoError(t, err)
	assert.Equal(t, "bge-large", p.Model(ctx, user))
	assert.EqualValues(t, 1, settings.loads.Load())

	p.Model(context.Background(), user)
	p.Model(context.Background(), user)
	assert.EqualValues(t, 3, settings.loads.Load())
}
