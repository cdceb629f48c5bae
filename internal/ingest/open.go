package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Aman-CERP/catalogmatch/internal/catalog"
	"github.com/Aman-CERP/catalogmatch/internal/embed"
	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
	"github.com/Aman-CERP/catalogmatch/internal/store"
)

// Snapshot is a loaded, read-only catalog with its vector index.
type Snapshot struct {
	Corpus     *catalog.Corpus
	Vectors    *store.HNSWStore
	Model      string
	Dimensions int
}

// Close releases the vector index.
func (s *Snapshot) Close() error {
	if s.Vectors == nil {
		return nil
	}
	return s.Vectors.Close()
}

// Open loads the snapshot in dataDir for querying with embedder. The
// embedder must produce vectors of the ingested dimension. A missing
// vector index is rebuilt from the stored embeddings.
func Open(ctx context.Context, dataDir string, embedder embed.Embedder) (*Snapshot, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingest: %w", cmerrors.ErrNilDependency)
	}

	dbPath := filepath.Join(dataDir, CatalogDBName)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, notIngested(dataDir, err)
	}

	db, err := store.OpenCatalogStore(ctx, dbPath)
	if err != nil {
		return nil, cmerrors.New(cmerrors.ErrCodeCorruptIndex, "failed to open catalog database", err)
	}
	defer func() { _ = db.Close() }()

	entries, err := db.LoadEntries(ctx)
	if err != nil {
		return nil, cmerrors.New(cmerrors.ErrCodeCorruptIndex, "failed to load catalog entries", err)
	}
	if len(entries) == 0 {
		return nil, notIngested(dataDir, nil)
	}
	corpus, err := catalog.NewCorpus(entries)
	if err != nil {
		return nil, err
	}

	model, err := db.GetState(ctx, StateKeyModel)
	if err != nil {
		return nil, cmerrors.New(cmerrors.ErrCodeCorruptIndex, "failed to read ingestion state", err)
	}
	dimsText, err := db.GetState(ctx, StateKeyDimensions)
	if err != nil {
		return nil, cmerrors.New(cmerrors.ErrCodeCorruptIndex, "failed to read ingestion state", err)
	}
	dims, err := strconv.Atoi(dimsText)
	if err != nil {
		return nil, cmerrors.New(cmerrors.ErrCodeCorruptIndex, "invalid embedding dimensions in ingestion state", err).
			WithDetail("value", dimsText)
	}

	if embedder.Dimensions() != dims {
		return nil, cmerrors.New(cmerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("catalog was ingested with %d-dimension embeddings (%s), but the embedder produces %d (%s)",
				dims, model, embedder.Dimensions(), embedder.ModelName()), nil).
			WithSuggestion("Re-run `catalogmatch ingest` with the current embedder, or switch back to " + model)
	}
	if model != embedder.ModelName() {
		slog.Warn("embedder_model_changed",
			slog.String("ingested", model),
			slog.String("current", embedder.ModelName()))
	}

	vectors, err := loadVectors(ctx, db, filepath.Join(dataDir, VectorsName), dims)
	if err != nil {
		return nil, err
	}
	if vectors.Count() != corpus.Len() {
		slog.Warn("vector_index_incomplete",
			slog.Int("vectors", vectors.Count()),
			slog.Int("entries", corpus.Len()))
	}

	return &Snapshot{Corpus: corpus, Vectors: vectors, Model: model, Dimensions: dims}, nil
}

func loadVectors(ctx context.Context, db *store.CatalogStore, path string, dims int) (*store.HNSWStore, error) {
	if _, err := os.Stat(path); err == nil {
		vectors, err := store.LoadHNSWStore(path)
		if err != nil {
			return nil, cmerrors.New(cmerrors.ErrCodeCorruptIndex, "failed to load vector index", err).
				WithSuggestion("Re-run `catalogmatch ingest` to rebuild the index")
		}
		return vectors, nil
	}

	slog.Warn("vector_index_missing_rebuilding", slog.String("path", path))
	embeddings, err := db.LoadEmbeddings(ctx)
	if err != nil {
		return nil, cmerrors.New(cmerrors.ErrCodeCorruptIndex, "failed to load stored embeddings", err)
	}

	vectors, err := store.NewHNSWStore(store.DefaultHNSWConfig(dims))
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(embeddings))
	vecs := make([][]float32, len(embeddings))
	for i, e := range embeddings {
		ids[i] = e.ProductID
		vecs[i] = e.Vector
	}
	if err := vectors.Add(ctx, ids, vecs); err != nil {
		_ = vectors.Close()
		return nil, cmerrors.New(cmerrors.ErrCodeCorruptIndex, "failed to rebuild vector index", err)
	}
	if err := vectors.Save(path); err != nil {
		slog.Warn("vector_index_save_failed", slog.String("error", err.Error()))
	}
	return vectors, nil
}

func notIngested(dataDir string, cause error) error {
	return cmerrors.New(cmerrors.ErrCodeFileNotFound, "no catalog has been ingested", cause).
		WithDetail("data_dir", dataDir).
		WithSuggestion("Run `catalogmatch ingest <catalog-file>` first")
}
