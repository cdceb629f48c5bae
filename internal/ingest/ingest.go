// Package ingest builds and opens the on-disk catalog snapshot: the
// catalog database with entries and embeddings, and the HNSW vector index.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/panjf2000/ants/v2"

	"github.com/Aman-CERP/catalogmatch/internal/catalog"
	"github.com/Aman-CERP/catalogmatch/internal/embed"
	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
	"github.com/Aman-CERP/catalogmatch/internal/store"
	"github.com/Aman-CERP/catalogmatch/internal/ui"
)

// Files inside the data directory.
const (
	CatalogDBName = "catalog.db"
	VectorsName   = "vectors.hnsw"
	lockName      = ".ingest.lock"
)

// State keys recorded by a successful ingestion.
const (
	StateKeyModel      = "embedding_model"
	StateKeyDimensions = "embedding_dimensions"
	StateKeyEntries    = "entry_count"
	StateKeyIngestedAt = "ingested_at"
	StateKeySource     = "source_file"
)

// Result summarises an ingestion run.
type Result struct {
	Entries    int
	Model      string
	Dimensions int
	Duration   time.Duration
	Embed      time.Duration
}

// Pipeline embeds a catalog and writes the snapshot.
type Pipeline struct {
	embedder  embed.Embedder
	pool      *ants.Pool
	batchSize int
	progress  func(ui.ProgressEvent)
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of concurrent embedding batches.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithBatchSize sets how many documents go into one EmbedBatch call.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 || n > embed.MaxBatchSize {
			return fmt.Errorf("batch size must be between 1 and %d, got %d", embed.MaxBatchSize, n)
		}
		p.batchSize = n
		return nil
	}
}

// WithProgress receives progress events.
func WithProgress(fn func(ui.ProgressEvent)) Option {
	return func(p *Pipeline) error {
		p.progress = fn
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a pipeline around embedder.
func NewPipeline(embedder embed.Embedder, opts ...Option) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingest: %w", cmerrors.ErrNilDependency)
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		embedder:  embedder,
		pool:      pool,
		batchSize: embed.DefaultBatchSize,
		progress:  func(ui.ProgressEvent) {},
		logger:    slog.Default().With("component", "ingest"),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	return p, nil
}

// Release frees the worker pool.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
		p.pool = nil
	}
}

// Run ingests the catalog file at catalogPath into dataDir, replacing any
// previous snapshot. Only one ingestion may hold a data directory.
func (p *Pipeline) Run(ctx context.Context, catalogPath, dataDir string) (*Result, error) {
	start := time.Now()

	unlock, err := lockDataDir(dataDir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p.progress(ui.ProgressEvent{Stage: ui.StageLoading, Message: "reading " + filepath.Base(catalogPath)})
	entries, err := catalog.LoadFile(catalogPath)
	if err != nil {
		return nil, err
	}
	corpus, err := catalog.NewCorpus(entries)
	if err != nil {
		return nil, err
	}
	p.logger.Info("catalog_loaded", slog.String("path", catalogPath), slog.Int("entries", corpus.Len()))

	embedStart := time.Now()
	vectors, err := p.embedAll(ctx, corpus.Documents())
	if err != nil {
		return nil, err
	}
	embedTime := time.Since(embedStart)

	p.progress(ui.ProgressEvent{Stage: ui.StageIndexing, Message: "writing catalog database and vector index"})
	if err := p.persist(ctx, corpus, vectors, dataDir, catalogPath); err != nil {
		return nil, err
	}

	result := &Result{
		Entries:    corpus.Len(),
		Model:      p.embedder.ModelName(),
		Dimensions: p.embedder.Dimensions(),
		Duration:   time.Since(start),
		Embed:      embedTime,
	}
	p.progress(ui.ProgressEvent{Stage: ui.StageComplete, Current: result.Entries, Total: result.Entries})
	p.logger.Info("catalog_ingested",
		slog.Int("entries", result.Entries),
		slog.String("model", result.Model),
		slog.Int("dimensions", result.Dimensions),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// embedAll embeds docs in batches on the pool. Vectors keep document order.
func (p *Pipeline) embedAll(parent context.Context, docs []string) ([][]float32, error) {
	vectors := make([][]float32, len(docs))
	total := len(docs)
	p.progress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: 0, Total: total})

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		done     int
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for startIdx := 0; startIdx < total; startIdx += p.batchSize {
		if ctx.Err() != nil {
			break
		}
		endIdx := min(startIdx+p.batchSize, total)

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			batch, err := p.embedder.EmbedBatch(ctx, docs[startIdx:endIdx])
			if err != nil {
				fail(fmt.Errorf("embedding batch %d-%d: %w", startIdx, endIdx, err))
				return
			}
			if len(batch) != endIdx-startIdx {
				fail(fmt.Errorf("embedding batch %d-%d returned %d vectors", startIdx, endIdx, len(batch)))
				return
			}
			copy(vectors[startIdx:endIdx], batch)

			mu.Lock()
			done += len(batch)
			current := done
			mu.Unlock()
			p.progress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: current, Total: total})
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding batch: %w", err))
			break
		}
	}
	wg.Wait()

	if err := parent.Err(); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, cmerrors.New(cmerrors.ErrCodeEmbeddingFailed, "failed to embed catalog", firstErr)
	}
	return vectors, nil
}

func (p *Pipeline) persist(ctx context.Context, corpus *catalog.Corpus, vectors [][]float32, dataDir, source string) error {
	db, err := store.OpenCatalogStore(ctx, filepath.Join(dataDir, CatalogDBName))
	if err != nil {
		return cmerrors.New(cmerrors.ErrCodeIndexFailed, "failed to open catalog database", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.SaveEntries(ctx, corpus); err != nil {
		return cmerrors.New(cmerrors.ErrCodeIndexFailed, "failed to save catalog entries", err)
	}

	model := p.embedder.ModelName()
	ids := make([]string, corpus.Len())
	embeddings := make([]store.Embedding, corpus.Len())
	for i := range ids {
		ids[i] = corpus.At(i).ProductID
		embeddings[i] = store.Embedding{ProductID: ids[i], Model: model, Vector: vectors[i]}
	}
	if err := db.SaveEmbeddings(ctx, embeddings); err != nil {
		return cmerrors.New(cmerrors.ErrCodeIndexFailed, "failed to save embeddings", err)
	}

	hnsw, err := store.NewHNSWStore(store.DefaultHNSWConfig(p.embedder.Dimensions()))
	if err != nil {
		return cmerrors.New(cmerrors.ErrCodeIndexFailed, "failed to create vector index", err)
	}
	defer func() { _ = hnsw.Close() }()

	if err := hnsw.Add(ctx, ids, vectors); err != nil {
		return cmerrors.New(cmerrors.ErrCodeIndexFailed, "failed to build vector index", err)
	}
	if err := hnsw.Save(filepath.Join(dataDir, VectorsName)); err != nil {
		return cmerrors.New(cmerrors.ErrCodeIndexFailed, "failed to save vector index", err)
	}

	state := map[string]string{
		StateKeyModel:      model,
		StateKeyDimensions: strconv.Itoa(p.embedder.Dimensions()),
		StateKeyEntries:    strconv.Itoa(corpus.Len()),
		StateKeyIngestedAt: time.Now().UTC().Format(time.RFC3339),
		StateKeySource:     source,
	}
	for k, v := range state {
		if err := db.SetState(ctx, k, v); err != nil {
			return cmerrors.New(cmerrors.ErrCodeIndexFailed, "failed to record ingestion state", err)
		}
	}
	return nil
}

// lockDataDir takes the exclusive ingestion lock without blocking.
func lockDataDir(dataDir string) (func(), error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, cmerrors.New(cmerrors.ErrCodeFilePermission, "failed to create data directory", err).
			WithDetail("data_dir", dataDir)
	}

	lock := flock.New(filepath.Join(dataDir, lockName))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, cmerrors.New(cmerrors.ErrCodeIndexLocked, "failed to acquire ingestion lock", err)
	}
	if !acquired {
		return nil, cmerrors.New(cmerrors.ErrCodeIndexLocked, "another ingestion is running on this data directory", nil).
			WithDetail("data_dir", dataDir).
			WithSuggestion("Wait for the other ingestion to finish")
	}
	return func() { _ = lock.Unlock() }, nil
}
