package retrieval

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/finbot-ai/finbot/finbot/config"
)

// Embedder turns texts into vectors. The chat and index sides must share one
// implementation so query and passage vectors live in the same space.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Passage is a ranked retrieval result.
type Passage struct {
	Text         string
	SourceOffset int
	Score        float64
}

// Engine owns the guideline index lifecycle: lazily built on first use,
// persisted across runs, queried by cosine similarity.
type Engine struct {
	store     *PassageStore
	embedder  Embedder
	cfg       config.RetrievalConfig
	batchSize int
	logger    zerolog.Logger

	mu    sync.Mutex
	built map[string]bool
}

func NewEngine(store *PassageStore, embedder Embedder, cfg config.RetrievalConfig, batchSize int, logger zerolog.Logger) *Engine {
	if batchSize < 1 {
		batchSize = 32
	}
	return &Engine{
		store:     store,
		embedder:  embedder,
		cfg:       cfg,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "retrieval").Logger(),
		built:     make(map[string]bool),
	}
}

// EnsureBuilt makes the index for the configured store available, building it
// from the source document at most once per process. Concurrent callers block
// until the first build finishes; a persisted index from a previous run is
// reused without re-embedding.
func (e *Engine) EnsureBuilt(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	storeID := e.cfg.StoreID
	if e.built[storeID] {
		return nil
	}

	count, err := e.store.Count(ctx, storeID)
	if err != nil {
		return err
	}
	if count > 0 {
		e.logger.Debug().Str("store_id", storeID).Int("passages", count).Msg("reusing persisted index")
		e.built[storeID] = true
		return nil
	}

	if err := e.build(ctx, storeID); err != nil {
		return err
	}
	e.built[storeID] = true
	return nil
}

func (e *Engine) build(ctx context.Context, storeID string) error {
	raw, err := os.ReadFile(e.cfg.DocumentPath)
	if err != nil {
		return fmt.Errorf("failed to read guideline document: %w", err)
	}

	chunks := SplitDocument(string(raw), e.cfg.ChunkSize, e.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return fmt.Errorf("guideline document %s produced no chunks", e.cfg.DocumentPath)
	}

	vectors, err := e.embedChunks(ctx, chunks)
	if err != nil {
		return err
	}

	passages := make([]StoredPassage, len(chunks))
	for i, c := range chunks {
		passages[i] = StoredPassage{Seq: i, Text: c.Text, Offset: c.Offset, Embedding: vectors[i]}
	}
	if err := e.store.SaveAll(ctx, storeID, passages); err != nil {
		return err
	}

	e.logger.Info().Str("store_id", storeID).Int("passages", len(passages)).Msg("guideline index built")
	return nil
}

// embedChunks embeds chunk batches in parallel, preserving chunk order.
func (e *Engine) embedChunks(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	batchSize := e.batchSize
	vectors := make([][]float32, len(chunks))
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(4)
	for start := 0; start < len(chunks); start += batchSize {
		start := start
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		p.Go(func(ctx context.Context) error {
			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = chunks[i].Text
			}
			batch, err := e.embedder.Embed(ctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Search embeds the query and returns the top-k passages by cosine
// similarity. Ties keep document order, so identical queries rank
// identically.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	if err := e.EnsureBuilt(ctx); err != nil {
		return nil, err
	}

	queryVectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	queryVec := queryVectors[0]

	stored, err := e.store.LoadAll(ctx, e.cfg.StoreID)
	if err != nil {
		return nil, err
	}

	results := make([]Passage, 0, len(stored))
	for _, p := range stored {
		results = append(results, Passage{
			Text:         p.Text,
			SourceOffset: p.Offset,
			Score:        cosineSimilarity(queryVec, p.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
