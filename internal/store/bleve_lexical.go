package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/index/scorch"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	index "github.com/blevesearch/bleve_index_api"

	"github.com/Aman-CERP/catalogmatch/internal/catalog"
)

const (
	// WordTokenizerName is the registered name of the catalog word tokenizer.
	WordTokenizerName = "catalog_word"

	// CatalogAnalyzerName is the name of the analyzer built on it.
	CatalogAnalyzerName = "catalog_analyzer"

	contentField = "content"
)

func init() {
	_ = registry.RegisterTokenizer(WordTokenizerName, wordTokenizerConstructor)
}

// BleveLexicalIndex ranks catalog entries with Bleve's BM25 scoring over
// an in-memory scorch index. Bleve document IDs are product IDs.
type BleveLexicalIndex struct {
	mu        sync.RWMutex
	index     bleve.Index
	positions map[string]int
	size      int
	closed    bool
}

var _ LexicalRanker = (*BleveLexicalIndex)(nil)

type bleveDocument struct {
	Content string `json:"content"`
}

// NewBleveLexicalIndex indexes the document text of every corpus entry.
func NewBleveLexicalIndex(ctx context.Context, corpus *catalog.Corpus) (*BleveLexicalIndex, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	// BM25 needs the field cardinality only scorch tracks; an empty path
	// keeps the segments in memory.
	idx, err := bleve.NewUsing("", indexMapping, scorch.Name, scorch.Name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	b := &BleveLexicalIndex{
		index:     idx,
		positions: make(map[string]int, corpus.Len()),
		size:      corpus.Len(),
	}

	batch := idx.NewBatch()
	for i := 0; i < corpus.Len(); i++ {
		if err := ctx.Err(); err != nil {
			_ = idx.Close()
			return nil, err
		}
		e := corpus.At(i)
		if err := batch.Index(e.ProductID, bleveDocument{Content: e.DocumentText}); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to index entry %s: %w", e.ProductID, err)
		}
		b.positions[e.ProductID] = i
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to execute batch: %w", err)
	}

	return b, nil
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(CatalogAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     WordTokenizerName,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = CatalogAnalyzerName
	indexMapping.ScoringModel = index.BM25Scoring

	return indexMapping, nil
}

// Score runs an OR match query over the whole corpus.
func (b *BleveLexicalIndex) Score(ctx context.Context, query string) ([]LexicalHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if b.size == 0 || len(Tokenize(query)) == 0 {
		return []LexicalHit{}, nil
	}

	// Match queries OR their terms by default.
	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField(contentField)

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = b.size

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]LexicalHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if hit.Score <= 0 {
			continue
		}
		pos, ok := b.positions[hit.ID]
		if !ok {
			continue
		}
		hits = append(hits, LexicalHit{Position: pos, ProductID: hit.ID, Score: hit.Score})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Position < hits[j].Position })

	return hits, nil
}

// Close closes the index.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

func wordTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &wordTokenizer{}, nil
}

// wordTokenizer emits the same tokens as Tokenize. Offsets refer to the
// folded text.
type wordTokenizer struct{}

func (t *wordTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := Fold(string(input))
	locs := wordRegex.FindAllStringIndex(text, -1)

	stream := make(analysis.TokenStream, 0, len(locs))
	for i, loc := range locs {
		stream = append(stream, &analysis.Token{
			Term:     []byte(text[loc[0]:loc[1]]),
			Start:    loc[0],
			End:      loc[1],
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
	}
	return stream
}
