package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWStore is an in-process approximate nearest-neighbour index keyed
// by product ID, built on coder/hnsw.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config HNSWConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// hnswMetadata is the gob sidecar written next to the exported graph.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  HNSWConfig
}

// NewHNSWStore creates an empty store.
func NewHNSWStore(cfg HNSWConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("hnsw: dimensions must be positive, got %d", cfg.Dimensions)
	}
	defaults := DefaultHNSWConfig(cfg.Dimensions)
	if cfg.Metric == "" {
		cfg.Metric = defaults.Metric
	}
	if cfg.M == 0 {
		cfg.M = defaults.M
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = defaults.EfSearch
	}

	return &HNSWStore{
		graph:  newGraph(cfg),
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

func newGraph(cfg HNSWConfig) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

// Dimensions returns the configured vector dimension.
func (s *HNSWStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Dimensions
}

// Add inserts vectors with their IDs. Re-adding an ID orphans the old
// node; coder/hnsw misbehaves when the last node is deleted.
func (s *HNSWStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if existing, ok := s.idMap[id]; ok {
			delete(s.keyMap, existing)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}

	return nil
}

// Search returns up to k nearest neighbours ordered by ascending distance.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if k <= 0 || s.graph.Len() == 0 {
		return []VectorResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(q)
	}

	nodes := s.graph.Search(q, k)

	results := make([]VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		d := s.graph.Distance(q, node.Value)
		if d < 0 {
			// Float rounding on identical unit vectors.
			d = 0
		}
		results = append(results, VectorResult{ID: id, Distance: d})
	}

	sortByDistance(results)
	return results, nil
}

// sortByDistance is an insertion sort; result lists are short.
func sortByDistance(rs []VectorResult) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j].Distance < rs[j-1].Distance; j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}
}

// Contains checks if ID exists.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	_, ok := s.idMap[id]
	return ok
}

// Count returns number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Save writes the graph to path and the ID mapping to path+".meta",
// each through a temp file and rename.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	if err := s.saveMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

func (s *HNSWStore) saveMetadata(path string) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{IDMap: s.idMap, NextKey: s.nextKey, Config: s.config}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadHNSWStore opens a store previously written by Save.
func LoadHNSWStore(path string) (*HNSWStore, error) {
	meta, err := readHNSWMetadata(path + ".meta")
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}

	s, err := NewHNSWStore(meta.Config)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// Import needs an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}

	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return s, nil
}

func readHNSWMetadata(path string) (*hnswMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close hnsw metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode hnsw metadata: %w", err)
	}
	if meta.IDMap == nil {
		meta.IDMap = make(map[string]uint64)
	}
	return &meta, nil
}

// ReadHNSWDimensions returns the dimension recorded next to an exported
// store, or 0 when none exists.
func ReadHNSWDimensions(path string) (int, error) {
	meta, err := readHNSWMetadata(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return meta.Config.Dimensions, nil
}

// Close releases resources.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.graph = nil
	return nil
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
