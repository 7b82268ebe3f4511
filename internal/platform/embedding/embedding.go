package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/yungbote/deepmed-backend/internal/data/repos"
	"github.com/yungbote/deepmed-backend/internal/pkg/dbctx"
	"github.com/yungbote/deepmed-backend/internal/pkg/envutil"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

var ErrNotConfigured = errors.New("embedding provider not configured")

const (
	DefaultModel = "text-embedding-3-small"
	DefaultRPS   = 10.0
	maxBatch     = 64
)

type Config struct {
	APIKey  string  `yaml:"-"`
	BaseURL string  `yaml:"base_url"`
	Model   string  `yaml:"model"`
	RPS     float64 `yaml:"rps"`
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:  envutil.String("EMBEDDING_API_KEY", ""),
		BaseURL: envutil.String("EMBEDDING_BASE_URL", ""),
		Model:   envutil.String("EMBEDDING_MODEL", DefaultModel),
		RPS:     envutil.Float("EMBEDDING_RPS", DefaultRPS),
	}
}

// Factory builds a client for one resolved provider configuration.
type Factory func(ctx context.Context, cfg Config) (einoEmbedding.Embedder, error)

func NewOpenAIEmbedder(ctx context.Context, cfg Config) (einoEmbedding.Embedder, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   model,
	})
}

// Provider embeds text with the default provider or a user's override from user_provider_setting.
// Clients are built lazily and reused per resolved configuration; every outbound call goes through
// one shared rate limiter.
type Provider struct {
	log      *logger.Logger
	cfg      Config
	settings repos.ProviderSettingRepo
	factory  Factory
	limiter  *rate.Limiter

	mu      sync.Mutex
	clients map[string]einoEmbedding.Embedder
}

func NewProvider(log *logger.Logger, cfg Config, settings repos.ProviderSettingRepo, factory Factory) *Provider {
	if factory == nil {
		factory = NewOpenAIEmbedder
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = DefaultRPS
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Provider{
		log:      log.With("service", "EmbeddingProvider"),
		cfg:      cfg,
		settings: settings,
		factory:  factory,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		clients:  make(map[string]einoEmbedding.Embedder),
	}
}

// Model reports the model used for userID, which is part of the embedding cache key.
func (p *Provider) Model(ctx context.Context, userID uuid.UUID) string {
	cfg, err := p.resolve(ctx, userID)
	if err != nil {
		return p.cfg.Model
	}
	return cfg.Model
}

func (p *Provider) Embed(ctx context.Context, userID uuid.UUID, text string) ([]float32, error) {
	out, err := p.EmbedBatch(ctx, userID, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (p *Provider) EmbedBatch(ctx context.Context, userID uuid.UUID, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	cfg, err := p.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	client, err := p.client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := start + maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		vecs, err := client.EmbedStrings(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed (model=%s): %w", cfg.Model, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embed (model=%s): got %d vectors for %d texts", cfg.Model, len(vecs), end-start)
		}
		for _, v := range vecs {
			out = append(out, toFloat32(v))
		}
	}
	return out, nil
}

type resolveScopeKey struct{}

type resolved struct {
	cfg Config
	err error
}

// resolveScope memoizes provider resolution for one request.
type resolveScope struct {
	mu   sync.Mutex
	byID map[uuid.UUID]resolved
}

// WithRequestScope returns a context under which each user's provider setting is loaded at most
// once. Setting changes made during the request are not seen by it.
func (p *Provider) WithRequestScope(ctx context.Context) context.Context {
	if _, ok := ctx.Value(resolveScopeKey{}).(*resolveScope); ok {
		return ctx
	}
	return context.WithValue(ctx, resolveScopeKey{}, &resolveScope{byID: map[uuid.UUID]resolved{}})
}

func (p *Provider) resolve(ctx context.Context, userID uuid.UUID) (Config, error) {
	scope, ok := ctx.Value(resolveScopeKey{}).(*resolveScope)
	if !ok {
		return p.load(ctx, userID)
	}
	scope.mu.Lock()
	defer scope.mu.Unlock()
	if r, ok := scope.byID[userID]; ok {
		return r.cfg, r.err
	}
	cfg, err := p.load(ctx, userID)
	scope.byID[userID] = resolved{cfg: cfg, err: err}
	return cfg, err
}

func (p *Provider) load(ctx context.Context, userID uuid.UUID) (Config, error) {
	cfg := p.cfg
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if userID != uuid.Nil && p.settings != nil {
		s, err := p.settings.GetByUserID(dbctx.Context{Ctx: ctx}, userID)
		if err != nil {
			p.log.Warn("Load provider setting failed; using default provider", "user_id", userID, "error", err)
		} else if s != nil {
			if strings.TrimSpace(s.BaseURL) != "" {
				cfg.BaseURL = s.BaseURL
			}
			if strings.TrimSpace(s.EmbeddingModel) != "" {
				cfg.Model = s.EmbeddingModel
			}
			if strings.TrimSpace(s.APIKey) != "" {
				cfg.APIKey = s.APIKey
			}
		}
	}
	if cfg.APIKey == "" {
		return Config{}, ErrNotConfigured
	}
	return cfg, nil
}

func (p *Provider) client(ctx context.Context, cfg Config) (einoEmbedding.Embedder, error) {
	sum := sha256.Sum256([]byte(cfg.BaseURL + "|" + cfg.Model + "|" + cfg.APIKey))
	key := hex.EncodeToString(sum[:8])

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c, nil
	}
	c, err := p.factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}
	p.clients[key] = c
	return c, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
