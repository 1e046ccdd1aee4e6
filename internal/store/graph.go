package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/codeatlas/internal/core"
)

// maxTraversalDepth bounds k-hop traversal regardless of caller input.
const maxTraversalDepth = 5

// GraphStore persists symbols and relations in SQLite and serves the
// graph side of the read facade: lookups, hydration, and k-hop traversal.
// WAL mode allows concurrent readers while an indexer holds the write lock.
type GraphStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

const graphSchema = `
CREATE TABLE IF NOT EXISTS symbols (
	id             BLOB PRIMARY KEY,
	name           TEXT NOT NULL,
	qualified_name TEXT NOT NULL,
	native_name    TEXT NOT NULL,
	kind           TEXT NOT NULL,
	language       TEXT NOT NULL,
	file_path      TEXT NOT NULL,
	start_byte     INTEGER NOT NULL,
	end_byte       INTEGER NOT NULL,
	start_line     INTEGER NOT NULL,
	end_line       INTEGER NOT NULL,
	signature      TEXT NOT NULL DEFAULT '',
	doc            TEXT NOT NULL DEFAULT '',
	body_hash      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_qname ON symbols(qualified_name);
CREATE INDEX IF NOT EXISTS idx_symbols_native ON symbols(native_name);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_path);

CREATE TABLE IF NOT EXISTS relations (
	source_id  BLOB NOT NULL,
	target_id  BLOB NOT NULL,
	kind       TEXT NOT NULL,
	file_path  TEXT NOT NULL DEFAULT '',
	line       INTEGER NOT NULL DEFAULT 0,
	confidence REAL NOT NULL DEFAULT 1.0,
	PRIMARY KEY (source_id, target_id, kind)
);
CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_id);
CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id);
`

// validateGraphIntegrity checks a SQLite graph database before opening.
// Corrupt databases are detected here so they can be cleared and rebuilt
// instead of failing every query.
func validateGraphIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	return nil
}

// OpenGraphStore opens (or creates) the graph database at path.
// An empty path opens an in-memory database for testing.
func OpenGraphStore(path string) (*GraphStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}

		if validErr := validateGraphIntegrity(path); validErr != nil {
			slog.Warn("graph_db_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("graph db corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("graph_db_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection: SQLite allows one writer, and a single conn
	// keeps prepared statements and pragmas consistent.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(graphSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &GraphStore{db: db, path: path}, nil
}

// InsertSymbols upserts a batch of symbols in one transaction.
func (g *GraphStore) InsertSymbols(ctx context.Context, symbols []*core.Symbol) error {
	if len(symbols) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrUnavailable
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO symbols
		(id, name, qualified_name, native_name, kind, language, file_path,
		 start_byte, end_byte, start_line, end_line, signature, doc, body_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sym := range symbols {
		_, err := stmt.ExecContext(ctx,
			sym.ID[:], sym.Name, sym.QualifiedName, sym.DisplayName(),
			string(sym.Kind), string(sym.Language), sym.FilePath,
			sym.StartByte, sym.EndByte, sym.StartLine, sym.EndLine,
			sym.Signature, sym.Doc, int64(sym.BodyHash))
		if err != nil {
			return fmt.Errorf("insert symbol %s: %w", sym.ID, err)
		}
	}

	return tx.Commit()
}

// InsertRelations upserts a batch of relations in one transaction.
func (g *GraphStore) InsertRelations(ctx context.Context, relations []*core.Relation) error {
	if len(relations) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrUnavailable
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO relations
		(source_id, target_id, kind, file_path, line, confidence)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rel := range relations {
		_, err := stmt.ExecContext(ctx,
			rel.SourceID[:], rel.TargetID[:], string(rel.Kind),
			rel.FilePath, rel.Line, rel.Confidence)
		if err != nil {
			return fmt.Errorf("insert relation %s -> %s: %w", rel.SourceID, rel.TargetID, err)
		}
	}

	return tx.Commit()
}

// DeleteByFile removes all symbols and relations recorded for a file.
// Used by the incremental indexer when a file changes or disappears.
func (g *GraphStore) DeleteByFile(ctx context.Context, filePath string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrUnavailable
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM relations WHERE source_id IN
			(SELECT id FROM symbols WHERE file_path = ?)
		OR target_id IN
			(SELECT id FROM symbols WHERE file_path = ?)`,
		filePath, filePath); err != nil {
		return fmt.Errorf("delete relations for %s: %w", filePath, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_path = ?`, filePath); err != nil {
		return fmt.Errorf("delete symbols for %s: %w", filePath, err)
	}

	return tx.Commit()
}

// GetSymbol fetches one symbol by ID. Returns (nil, nil) when absent.
func (g *GraphStore) GetSymbol(ctx context.Context, id core.SymbolID) (*core.Symbol, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return nil, ErrUnavailable
	}

	row := g.db.QueryRowContext(ctx, `
		SELECT id, name, qualified_name, kind, language, file_path,
		       start_byte, end_byte, start_line, end_line, signature, doc, body_hash
		FROM symbols WHERE id = ?`, id[:])

	sym, err := scanSymbol(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sym, err
}

// GetSymbols hydrates a batch of ids, preserving input order and
// skipping ids no longer present.
func (g *GraphStore) GetSymbols(ctx context.Context, ids []core.SymbolID) ([]*core.Symbol, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return nil, ErrUnavailable
	}

	stmt, err := g.db.PrepareContext(ctx, `
		SELECT id, name, qualified_name, kind, language, file_path,
		       start_byte, end_byte, start_line, end_line, signature, doc, body_hash
		FROM symbols WHERE id = ?`)
	if err != nil {
		return nil, fmt.Errorf("prepare hydrate: %w", err)
	}
	defer stmt.Close()

	symbols := make([]*core.Symbol, 0, len(ids))
	for _, id := range ids {
		sym, err := scanSymbol(stmt.QueryRowContext(ctx, id[:]))
		if err == sql.ErrNoRows {
			continue // evicted between ranking and hydration
		}
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}

	return symbols, nil
}

// FindByName returns ids of symbols whose short name equals name,
// ordered by SymbolID byte order for determinism.
func (g *GraphStore) FindByName(ctx context.Context, name string) ([]core.SymbolID, error) {
	return g.findIDs(ctx, `SELECT id FROM symbols WHERE name = ? ORDER BY id`, name)
}

// FindByQualifiedName returns ids of symbols matching qn against either
// the canonical dot form or the language-native display form.
func (g *GraphStore) FindByQualifiedName(ctx context.Context, qn string) ([]core.SymbolID, error) {
	return g.findIDs(ctx,
		`SELECT id FROM symbols WHERE qualified_name = ? OR native_name = ? ORDER BY id`,
		qn, qn)
}

// SymbolsByFile returns all symbols in a file, ordered by start byte.
func (g *GraphStore) SymbolsByFile(ctx context.Context, filePath string) ([]*core.Symbol, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return nil, ErrUnavailable
	}

	rows, err := g.db.QueryContext(ctx, `
		SELECT id, name, qualified_name, kind, language, file_path,
		       start_byte, end_byte, start_line, end_line, signature, doc, body_hash
		FROM symbols WHERE file_path = ? ORDER BY start_byte, id`, filePath)
	if err != nil {
		return nil, fmt.Errorf("query symbols by file: %w", err)
	}
	defer rows.Close()

	var symbols []*core.Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// CountSymbols returns the number of indexed symbols.
func (g *GraphStore) CountSymbols(ctx context.Context) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return 0, ErrUnavailable
	}

	var n int
	if err := g.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count symbols: %w", err)
	}
	return n, nil
}

// TraverseKHop walks the relation graph breadth-first from start.
//
// Iterative BFS with a visited set keyed on SymbolID: cycles terminate,
// each symbol is reported once at its minimum hop distance, and the
// per-node fanout cap bounds work on dense graphs. Neighbors are
// expanded in SymbolID byte order, and each level is reported in
// SymbolID byte order, so traversal output is deterministic.
func (g *GraphStore) TraverseKHop(ctx context.Context, start core.SymbolID, depth, fanout int, direction TraversalDirection) ([]TraversalHit, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return nil, ErrUnavailable
	}

	if depth > maxTraversalDepth {
		depth = maxTraversalDepth
	}
	if depth <= 0 || fanout <= 0 {
		return []TraversalHit{}, nil
	}

	visited := map[core.SymbolID]struct{}{start: {}}
	frontier := []core.SymbolID{start}
	var results []TraversalHit

	for hop := 1; hop <= depth; hop++ {
		if len(frontier) == 0 {
			break
		}
		var next []core.SymbolID
		levelStart := len(results)

		for _, id := range frontier {
			neighbors, err := g.neighbors(ctx, id, direction, fanout)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if _, seen := visited[n.id]; seen {
					continue
				}
				visited[n.id] = struct{}{}
				results = append(results, TraversalHit{
					ID:           n.id,
					HopDistance:  hop,
					RelationKind: n.kind,
				})
				next = append(next, n.id)
			}
		}

		level := results[levelStart:]
		sort.Slice(level, func(i, j int) bool { return level[i].ID.Less(level[j].ID) })
		sort.Slice(next, func(i, j int) bool { return next[i].Less(next[j]) })
		frontier = next
	}

	return results, nil
}

type neighbor struct {
	id   core.SymbolID
	kind core.RelationKind
}

// neighbors returns the adjacent symbols of id, capped at fanout and
// ordered by SymbolID byte order.
func (g *GraphStore) neighbors(ctx context.Context, id core.SymbolID, direction TraversalDirection, fanout int) ([]neighbor, error) {
	var out []neighbor

	if direction == DirectionOutgoing || direction == DirectionBoth {
		rows, err := g.db.QueryContext(ctx,
			`SELECT target_id, kind FROM relations WHERE source_id = ? ORDER BY target_id LIMIT ?`,
			id[:], fanout)
		if err != nil {
			return nil, fmt.Errorf("query outgoing relations: %w", err)
		}
		if out, err = appendNeighbors(out, rows); err != nil {
			return nil, err
		}
	}

	if direction == DirectionIncoming || direction == DirectionBoth {
		remaining := fanout - len(out)
		if direction == DirectionIncoming {
			remaining = fanout
		}
		if remaining > 0 {
			rows, err := g.db.QueryContext(ctx,
				`SELECT source_id, kind FROM relations WHERE target_id = ? ORDER BY source_id LIMIT ?`,
				id[:], remaining)
			if err != nil {
				return nil, fmt.Errorf("query incoming relations: %w", err)
			}
			if out, err = appendNeighbors(out, rows); err != nil {
				return nil, err
			}
		}
	}

	// Both-direction results interleave two ordered scans; re-sort so
	// expansion order stays deterministic.
	sort.Slice(out, func(i, j int) bool { return out[i].id.Less(out[j].id) })

	return out, nil
}

func appendNeighbors(out []neighbor, rows *sql.Rows) ([]neighbor, error) {
	defer rows.Close()
	for rows.Next() {
		var raw []byte
		var kind string
		if err := rows.Scan(&raw, &kind); err != nil {
			return nil, fmt.Errorf("scan relation row: %w", err)
		}
		if len(raw) != 16 {
			continue // malformed row, skip
		}
		var id core.SymbolID
		copy(id[:], raw)
		out = append(out, neighbor{id: id, kind: core.RelationKind(kind)})
	}
	return out, rows.Err()
}

// Close releases the database handle. Subsequent reads return ErrUnavailable.
func (g *GraphStore) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	return g.db.Close()
}

func (g *GraphStore) findIDs(ctx context.Context, query string, args ...any) ([]core.SymbolID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return nil, ErrUnavailable
	}

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query symbol ids: %w", err)
	}
	defer rows.Close()

	var ids []core.SymbolID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan id row: %w", err)
		}
		if len(raw) != 16 {
			continue
		}
		var id core.SymbolID
		copy(id[:], raw)
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// rowScanner abstracts sql.Row and sql.Rows for scanSymbol.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSymbol(row rowScanner) (*core.Symbol, error) {
	var (
		raw      []byte
		sym      core.Symbol
		kind     string
		language string
		bodyHash int64
	)
	err := row.Scan(&raw, &sym.Name, &sym.QualifiedName, &kind, &language,
		&sym.FilePath, &sym.StartByte, &sym.EndByte, &sym.StartLine, &sym.EndLine,
		&sym.Signature, &sym.Doc, &bodyHash)
	if err != nil {
		return nil, err
	}
	copy(sym.ID[:], raw)
	sym.Kind = core.Kind(kind)
	sym.Language = core.Language(language)
	sym.BodyHash = uint64(bodyHash)
	return &sym, nil
}
