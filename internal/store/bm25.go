package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/codeatlas/internal/core"
)

const (
	// codeTokenizerName is the registry name of the code tokenizer.
	codeTokenizerName = "code_tokenizer"

	// codeStopFilterName is the registry name of the stop word filter.
	codeStopFilterName = "code_stop"

	// codeAnalyzerName is the registry name of the code analyzer.
	codeAnalyzerName = "code_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(codeTokenizerName, codeTokenizerConstructor)
	_ = registry.RegisterTokenFilter(codeStopFilterName, codeStopFilterConstructor)
}

// BleveBM25Index serves the full-text signal over symbol documents.
//
// The index never sees the raw query as a query-string DSL: searches are
// built as match queries over the code analyzer, so punctuation and
// operator characters from natural-language text are token separators,
// never syntax errors.
type BleveBM25Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// bleveSymbolDoc is the document shape indexed for each symbol.
type bleveSymbolDoc struct {
	Content  string `json:"content"`
	Language string `json:"language"`
	FilePath string `json:"file_path"`
}

// NewBleveBM25Index creates or opens a BM25 index at path.
// If path is empty, an in-memory index is created for testing.
func NewBleveBM25Index(path string) (*BleveBM25Index, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		dir := filepath.Dir(path)
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, mkErr)
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil {
			// Unreadable index: clear and recreate rather than failing
			// every search until someone intervenes.
			slog.Warn("bm25_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("bm25 index unreadable and cannot clear: %w (original: %v)", removeErr, err)
			}
			slog.Info("bm25_index_cleared",
				slog.String("path", path),
				slog.String("reason", "open failed, please reindex"))
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create/open index: %w", err)
	}

	return &BleveBM25Index{index: idx, path: path}, nil
}

// createIndexMapping builds the Bleve mapping: code analyzer on content,
// keyword analyzer on the filterable language and file_path fields.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(codeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": codeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			codeStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = codeAnalyzerName

	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("content", contentField)
	docMapping.AddFieldMappingsAt("language", keywordField)
	docMapping.AddFieldMappingsAt("file_path", keywordField)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = codeAnalyzerName

	return indexMapping, nil
}

// Index adds symbol documents to the index.
func (b *BleveBM25Index) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrUnavailable
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		bleveDoc := bleveSymbolDoc{
			Content:  doc.Content,
			Language: string(doc.Language),
			FilePath: doc.FilePath,
		}
		if err := batch.Index(doc.ID.String(), bleveDoc); err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}

	return nil
}

// Search returns the top-poolSize symbols matching text, rank-ordered
// by BM25 relevance. Ties in Bleve's scoring are broken by document ID
// (the SymbolID hex form) so output order is reproducible.
func (b *BleveBM25Index) Search(ctx context.Context, text string, poolSize int, filters Filters) ([]Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrUnavailable
	}

	if strings.TrimSpace(text) == "" {
		return []Hit{}, nil
	}

	matchQuery := bleve.NewMatchQuery(text)
	matchQuery.SetField("content")

	var searchQuery query.Query = matchQuery
	if !filters.Empty() {
		conjuncts := []query.Query{matchQuery}
		if filters.Language != "" {
			tq := bleve.NewTermQuery(string(filters.Language))
			tq.SetField("language")
			conjuncts = append(conjuncts, tq)
		}
		if filters.PathPrefix != "" {
			pq := bleve.NewPrefixQuery(filters.PathPrefix)
			pq.SetField("file_path")
			conjuncts = append(conjuncts, pq)
		}
		searchQuery = bleve.NewConjunctionQuery(conjuncts...)
	}

	req := bleve.NewSearchRequest(searchQuery)
	req.Size = poolSize
	req.SortBy([]string{"-_score", "_id"})

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bm25 search: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for i, hit := range result.Hits {
		id, parseErr := core.ParseSymbolID(hit.ID)
		if parseErr != nil {
			slog.Warn("bm25_bad_doc_id", slog.String("doc_id", hit.ID))
			continue
		}
		hits = append(hits, Hit{ID: id, Rank: i + 1})
	}

	return hits, nil
}

// Delete removes symbol documents from the index.
func (b *BleveBM25Index) Delete(ctx context.Context, ids []core.SymbolID) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrUnavailable
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id.String())
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}

	return nil
}

// DocCount returns the number of indexed documents.
func (b *BleveBM25Index) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, ErrUnavailable
	}
	return b.index.DocCount()
}

// Close closes the index. Subsequent reads return ErrUnavailable.
func (b *BleveBM25Index) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// codeTokenizerConstructor creates the code tokenizer for Bleve.
func codeTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveCodeTokenizer{}, nil
}

// bleveCodeTokenizer adapts TokenizeCode to the Bleve analysis chain.
type bleveCodeTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *bleveCodeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := TokenizeCode(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0

	for _, token := range tokens {
		// Best-effort span recovery in the original text; split camel
		// parts may not exist verbatim, in which case the running
		// offset stands in.
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}

	return result
}

// codeStopFilterConstructor creates the stop word filter for Bleve.
func codeStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &bleveCodeStopFilter{stopWords: buildStopWordSet(codeStopWords)}, nil
}

// bleveCodeStopFilter drops code stop words from the token stream.
type bleveCodeStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *bleveCodeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
