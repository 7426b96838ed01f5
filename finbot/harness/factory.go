package harness

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/finbot-ai/finbot/finbot/config"
	"github.com/finbot-ai/finbot/finbot/harness/adapters"
	harnessports "github.com/finbot-ai/finbot/finbot/harness/ports"
)

// Factory wires harness adapters from configuration, substituting no-ops for
// disabled or unavailable pieces.
type Factory struct {
	llmConfig     config.LLMConfig
	harnessConfig config.HarnessConfig
	db            *sql.DB // optional, enables the audit store
	logger        zerolog.Logger
}

func NewFactory(llmCfg config.LLMConfig, harnessCfg config.HarnessConfig, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{
		llmConfig:     llmCfg,
		harnessConfig: harnessCfg,
		db:            db,
		logger:        logger,
	}
}

// CreateOrchestrator assembles a fully wired orchestrator around the given
// provider and tool set.
func (f *Factory) CreateOrchestrator(ctx context.Context, provider harnessports.Provider, registry *Registry, system string) (*Orchestrator, error) {
	store, err := f.createStore(ctx)
	if err != nil {
		return nil, err
	}
	deps := OrchestratorDeps{
		Provider: provider,
		Registry: registry,
		Store:    store,
		Cache:    f.createCache(),
		Limiter:  f.createRateLimiter(),
		Tracer:   f.createTracer(),
	}
	return NewOrchestrator(deps, f.llmConfig, f.harnessConfig, system, f.logger), nil
}

func (f *Factory) createCache() harnessports.Cache {
	if !f.harnessConfig.CacheEnabled {
		return &noOpCache{}
	}
	return adapters.NewReplyCache(f.harnessConfig.CacheCapacity)
}

func (f *Factory) createRateLimiter() harnessports.RateLimiter {
	if !f.harnessConfig.RateLimitEnabled {
		return &noOpRateLimiter{}
	}
	return adapters.NewTokenBucket(f.harnessConfig.RateLimitCapacity, f.harnessConfig.RateLimitRefillRate)
}

func (f *Factory) createTracer() harnessports.Tracer {
	if !f.harnessConfig.EnableTracing {
		return &noOpTracer{}
	}
	return adapters.NewZerologTracer(f.logger)
}

func (f *Factory) createStore(ctx context.Context) (harnessports.ConversationStore, error) {
	if f.db == nil {
		return &noOpStore{}, nil
	}
	return adapters.NewLibSQLConversationStore(ctx, f.db)
}

// noOpCache disables memoization.
type noOpCache struct{}

func (c *noOpCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *noOpCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (c *noOpCache) Delete(ctx context.Context, key string) error { return nil }

// noOpRateLimiter admits everything.
type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

// noOpTracer drops all spans and events.
type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}
func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// noOpStore discards audit turns.
type noOpStore struct{}

func (s *noOpStore) SaveTurn(ctx context.Context, sessionID string, turn harnessports.Turn) error {
	return nil
}

func (s *noOpStore) LoadContext(ctx context.Context, sessionID string, k int) ([]harnessports.Turn, error) {
	return nil, nil
}

var (
	_ harnessports.Cache             = (*noOpCache)(nil)
	_ harnessports.RateLimiter       = (*noOpRateLimiter)(nil)
	_ harnessports.Tracer            = (*noOpTracer)(nil)
	_ harnessports.ConversationStore = (*noOpStore)(nil)
)
