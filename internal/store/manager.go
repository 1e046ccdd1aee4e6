package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/codeatlas/internal/core"
	atlaserr "github.com/Aman-CERP/codeatlas/internal/errors"
)

// Index directory layout.
const (
	graphDBName    = "graph.db"
	bm25IndexName  = "bm25.bleve"
	vectorFileName = "vectors.hnsw"
	writeLockName  = "index.lock"
)

// knnOverfetchFactor widens filtered kNN searches so that enough
// candidates survive the metadata filter.
const knnOverfetchFactor = 4

// Manager owns the three backend stores under one index directory and
// implements the read Facade the retrieval engine consumes.
//
// Readers share the Manager freely; index writers must hold the
// directory's exclusive lock (OpenWriter) so readers can treat a
// mid-rewrite index as a graceful-degradation condition rather than
// observing torn state.
type Manager struct {
	graph  *GraphStore
	bm25   *BleveBM25Index
	vector *HNSWStore

	dir  string
	lock *flock.Flock // held only by writers
}

var _ Facade = (*Manager)(nil)

// Open opens the index at dir for reading.
// The vector store dimension is recovered from the stored metadata;
// when no vector index exists yet, dims provides the initial dimension.
func Open(dir string, dims int) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, atlaserr.Wrap(atlaserr.ErrCodeStoreOpen, err)
	}

	graph, err := OpenGraphStore(filepath.Join(dir, graphDBName))
	if err != nil {
		return nil, atlaserr.Wrap(atlaserr.ErrCodeStoreOpen, err)
	}

	bm25, err := NewBleveBM25Index(filepath.Join(dir, bm25IndexName))
	if err != nil {
		graph.Close()
		return nil, atlaserr.Wrap(atlaserr.ErrCodeStoreOpen, err)
	}

	vectorPath := filepath.Join(dir, vectorFileName)
	if stored, dimErr := ReadStoredDimensions(vectorPath); dimErr == nil && stored > 0 {
		dims = stored
	}
	vector, err := NewHNSWStore(DefaultVectorConfig(dims))
	if err != nil {
		graph.Close()
		bm25.Close()
		return nil, atlaserr.Wrap(atlaserr.ErrCodeStoreOpen, err)
	}
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if loadErr := vector.Load(vectorPath); loadErr != nil {
			graph.Close()
			bm25.Close()
			return nil, atlaserr.Wrap(atlaserr.ErrCodeCorruptIndex, loadErr)
		}
	}

	return &Manager{graph: graph, bm25: bm25, vector: vector, dir: dir}, nil
}

// OpenWriter opens the index for writing, taking the exclusive
// directory lock. Returns ErrCodeStoreLocked when another writer holds it.
func OpenWriter(dir string, dims int) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, atlaserr.Wrap(atlaserr.ErrCodeStoreOpen, err)
	}

	lock := flock.New(filepath.Join(dir, writeLockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, atlaserr.Wrap(atlaserr.ErrCodeStoreOpen, err)
	}
	if !locked {
		return nil, atlaserr.New(atlaserr.ErrCodeStoreLocked,
			fmt.Sprintf("index at %s is locked by another writer", dir), nil)
	}

	m, err := Open(dir, dims)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	m.lock = lock
	return m, nil
}

// OpenMemory creates a fully in-memory index for tests.
func OpenMemory(dims int) (*Manager, error) {
	graph, err := OpenGraphStore("")
	if err != nil {
		return nil, err
	}
	bm25, err := NewBleveBM25Index("")
	if err != nil {
		graph.Close()
		return nil, err
	}
	vector, err := NewHNSWStore(DefaultVectorConfig(dims))
	if err != nil {
		graph.Close()
		bm25.Close()
		return nil, err
	}
	return &Manager{graph: graph, bm25: bm25, vector: vector}, nil
}

// Graph exposes the graph store for the indexing subsystem.
func (m *Manager) Graph() *GraphStore { return m.graph }

// Vector exposes the vector store for the indexing subsystem.
func (m *Manager) Vector() *HNSWStore { return m.vector }

// BM25 exposes the full-text index for the indexing subsystem.
func (m *Manager) BM25() *BleveBM25Index { return m.bm25 }

// IndexSymbols writes a batch of symbols and relations into the graph
// and full-text stores. Vectors are added separately once embeddings
// are available (AddVectors).
func (m *Manager) IndexSymbols(ctx context.Context, symbols []*core.Symbol, relations []*core.Relation) error {
	if err := m.graph.InsertSymbols(ctx, symbols); err != nil {
		return fmt.Errorf("insert symbols: %w", err)
	}
	if err := m.graph.InsertRelations(ctx, relations); err != nil {
		return fmt.Errorf("insert relations: %w", err)
	}

	docs := make([]*Document, len(symbols))
	for i, sym := range symbols {
		docs[i] = &Document{
			ID:       sym.ID,
			Content:  symbolContent(sym),
			Language: sym.Language,
			FilePath: sym.FilePath,
		}
	}
	if err := m.bm25.Index(ctx, docs); err != nil {
		return fmt.Errorf("index documents: %w", err)
	}

	return nil
}

// symbolContent builds the searchable text projection of a symbol.
func symbolContent(sym *core.Symbol) string {
	content := sym.Name + " " + sym.QualifiedName
	if sym.Signature != "" {
		content += " " + sym.Signature
	}
	if sym.Doc != "" {
		content += " " + sym.Doc
	}
	return content
}

// AddVectors stores embeddings for previously indexed symbols.
func (m *Manager) AddVectors(ctx context.Context, ids []core.SymbolID, vectors [][]float32) error {
	return m.vector.Add(ctx, ids, vectors)
}

// Flush persists the vector store; graph and BM25 persist on write.
func (m *Manager) Flush() error {
	if m.dir == "" {
		return nil // in-memory
	}
	return m.vector.Save(filepath.Join(m.dir, vectorFileName))
}

// SearchBM25 implements Facade.
func (m *Manager) SearchBM25(ctx context.Context, text string, poolSize int, filters Filters) ([]Hit, error) {
	return m.bm25.Search(ctx, text, poolSize, filters)
}

// SearchKNN implements Facade. Filters are applied after the ANN pass
// by hydrating candidate metadata from the graph, with over-fetch so a
// filtered search still fills its pool.
func (m *Manager) SearchKNN(ctx context.Context, vector []float32, k int, filters Filters) ([]Hit, error) {
	fetch := k
	if !filters.Empty() {
		fetch = k * knnOverfetchFactor
	}

	hits, err := m.vector.Search(ctx, vector, fetch)
	if err != nil {
		return nil, err
	}
	if filters.Empty() || len(hits) == 0 {
		return hits, nil
	}

	ids := make([]core.SymbolID, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	symbols, err := m.graph.GetSymbols(ctx, ids)
	if err != nil {
		// Graph unavailable: serve the unfiltered ANN ranking rather
		// than dropping the signal entirely; the engine post-filters.
		if errors.Is(err, ErrUnavailable) {
			if len(hits) > k {
				hits = hits[:k]
			}
			return hits, nil
		}
		return nil, err
	}

	pass := make(map[core.SymbolID]bool, len(symbols))
	for _, sym := range symbols {
		pass[sym.ID] = filters.Match(sym)
	}

	filtered := make([]Hit, 0, k)
	for _, h := range hits {
		if !pass[h.ID] {
			continue
		}
		filtered = append(filtered, Hit{ID: h.ID, Rank: len(filtered) + 1})
		if len(filtered) == k {
			break
		}
	}

	return filtered, nil
}

// FindByName implements Facade.
func (m *Manager) FindByName(ctx context.Context, name string) ([]core.SymbolID, error) {
	return m.graph.FindByName(ctx, name)
}

// FindByQualifiedName implements Facade.
func (m *Manager) FindByQualifiedName(ctx context.Context, qn string) ([]core.SymbolID, error) {
	return m.graph.FindByQualifiedName(ctx, qn)
}

// TraverseKHop implements Facade.
func (m *Manager) TraverseKHop(ctx context.Context, start core.SymbolID, depth, fanout int, direction TraversalDirection) ([]TraversalHit, error) {
	return m.graph.TraverseKHop(ctx, start, depth, fanout, direction)
}

// Hydrate implements Facade.
func (m *Manager) Hydrate(ctx context.Context, ids []core.SymbolID) ([]*core.Symbol, error) {
	return m.graph.GetSymbols(ctx, ids)
}

// Close closes all stores and releases the write lock if held.
func (m *Manager) Close() error {
	var errs []error

	if err := m.graph.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := m.bm25.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := m.vector.Close(); err != nil {
		errs = append(errs, err)
	}
	if m.lock != nil {
		if err := m.lock.Unlock(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
