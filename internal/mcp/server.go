// Package mcp exposes the search pipeline to AI clients over the Model
// Context Protocol. It is a thin consumer of the pipeline's public
// entry point; all retrieval semantics live below it.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/codeatlas/internal/core"
	"github.com/Aman-CERP/codeatlas/internal/pipeline"
	"github.com/Aman-CERP/codeatlas/internal/store"
	"github.com/Aman-CERP/codeatlas/pkg/version"
)

// serverName identifies this server to MCP clients.
const serverName = "CodeAtlas"

// Server bridges MCP clients (Claude Code, Cursor) with the retrieval
// pipeline.
type Server struct {
	mcp      *mcp.Server
	pipeline *pipeline.Pipeline
	storage  store.Facade
	logger   *slog.Logger
}

// SearchCodeInput defines the input schema for the search_code tool.
type SearchCodeInput struct {
	Query    string `json:"query" jsonschema:"the code search query, natural language or identifiers"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Language string `json:"language,omitempty" jsonschema:"filter by source language (go, python, rust, ...)"`
	Path     string `json:"path,omitempty" jsonschema:"filter by relative file path prefix"`
}

// SearchCodeOutput defines the output schema for the search_code tool.
type SearchCodeOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"ranked search results"`
	Files   []FileGroupOutput    `json:"files" jsonschema:"per-file aggregation of the results"`
}

// SearchResultOutput is one ranked hit with provenance.
type SearchResultOutput struct {
	Name          string          `json:"name" jsonschema:"symbol short name"`
	QualifiedName string          `json:"qualified_name" jsonschema:"qualified name in language-native form"`
	Kind          string          `json:"kind" jsonschema:"symbol kind (function, class, ...)"`
	FilePath      string          `json:"file_path" jsonschema:"file path relative to project root"`
	StartLine     int             `json:"start_line" jsonschema:"zero-indexed start line"`
	EndLine       int             `json:"end_line" jsonschema:"zero-indexed exclusive end line"`
	Score         float64         `json:"score" jsonschema:"fused relevance score"`
	MatchSignals  []string        `json:"match_signals" jsonschema:"signals that ranked this result: bm25, vector, exact, graph"`
	Snippet       string          `json:"snippet,omitempty" jsonschema:"doc or signature snippet"`
	Related       []RelatedOutput `json:"related,omitempty" jsonschema:"graph neighbors of this symbol"`
}

// RelatedOutput is a graph neighbor of a direct hit.
type RelatedOutput struct {
	Name          string `json:"name"`
	QualifiedName string `json:"qualified_name"`
	Kind          string `json:"kind"`
	FilePath      string `json:"file_path"`
	HopDistance   int    `json:"hop_distance"`
}

// FileGroupOutput is the per-file aggregation entry.
type FileGroupOutput struct {
	FilePath string   `json:"file_path"`
	Best     string   `json:"best_symbol" jsonschema:"highest-value symbol in the file"`
	Symbols  []string `json:"symbols" jsonschema:"all matched symbols in the file"`
	Score    float64  `json:"score"`
	Signals  []string `json:"signals"`
}

// FindSymbolInput defines the input schema for the find_symbol tool.
type FindSymbolInput struct {
	Name string `json:"name" jsonschema:"exact symbol name or qualified name"`
}

// FindSymbolOutput defines the output schema for the find_symbol tool.
type FindSymbolOutput struct {
	Symbols []SearchResultOutput `json:"symbols"`
}

// NewServer creates an MCP server over the pipeline and storage facade.
func NewServer(p *pipeline.Pipeline, storage store.Facade) (*Server, error) {
	if p == nil {
		return nil, errors.New("pipeline is required")
	}
	if storage == nil {
		return nil, errors.New("storage facade is required")
	}

	s := &Server{
		pipeline: p,
		storage:  storage,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search_code",
		Description: "Search indexed code symbols with multi-signal retrieval: " +
			"keyword (BM25), semantic similarity, exact name match, and call-graph " +
			"expansion, fused into one ranking. Results carry provenance signals " +
			"and related symbols from the code graph.",
	}, s.searchCodeHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "find_symbol",
		Description: "Look up symbols by exact name or qualified name. " +
			"Use when you already know the identifier.",
	}, s.findSymbolHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 2))
}

// searchCodeHandler runs the full retrieval pipeline.
func (s *Server) searchCodeHandler(ctx context.Context, req *mcp.CallToolRequest, input SearchCodeInput) (
	*mcp.CallToolResult,
	SearchCodeOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchCodeOutput{}, fmt.Errorf("query parameter is required")
	}

	opts := pipeline.NewOptions()
	if input.Limit > 0 {
		opts.Limit = input.Limit
	}
	opts.Language = input.Language
	opts.PathPrefix = input.Path

	resp, err := s.pipeline.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchCodeOutput{}, err
	}

	out := SearchCodeOutput{
		Results: make([]SearchResultOutput, 0, len(resp.Results)),
		Files:   make([]FileGroupOutput, 0, len(resp.Files)),
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, toResultOutput(r))
	}
	for _, g := range resp.Files {
		names := make([]string, 0, len(g.Symbols))
		for _, sym := range g.Symbols {
			names = append(names, sym.Name)
		}
		out.Files = append(out.Files, FileGroupOutput{
			FilePath: g.FilePath,
			Best:     g.Best.Name,
			Symbols:  names,
			Score:    g.Score,
			Signals:  g.Signals,
		})
	}

	return nil, out, nil
}

// findSymbolHandler resolves exact name lookups against the graph.
func (s *Server) findSymbolHandler(ctx context.Context, req *mcp.CallToolRequest, input FindSymbolInput) (
	*mcp.CallToolResult,
	FindSymbolOutput,
	error,
) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, FindSymbolOutput{}, fmt.Errorf("name parameter is required")
	}

	ids, err := s.storage.FindByName(ctx, name)
	if err != nil {
		return nil, FindSymbolOutput{}, err
	}
	qnIDs, err := s.storage.FindByQualifiedName(ctx, name)
	if err != nil {
		return nil, FindSymbolOutput{}, err
	}

	seen := map[string]bool{}
	merged := make([]core.SymbolID, 0, len(ids)+len(qnIDs))
	for _, id := range append(ids, qnIDs...) {
		if !seen[id.String()] {
			seen[id.String()] = true
			merged = append(merged, id)
		}
	}

	symbols, err := s.storage.Hydrate(ctx, merged)
	if err != nil {
		return nil, FindSymbolOutput{}, err
	}

	out := FindSymbolOutput{Symbols: make([]SearchResultOutput, 0, len(symbols))}
	for _, sym := range symbols {
		out.Symbols = append(out.Symbols, SearchResultOutput{
			Name:          sym.Name,
			QualifiedName: sym.DisplayName(),
			Kind:          string(sym.Kind),
			FilePath:      sym.FilePath,
			StartLine:     sym.StartLine,
			EndLine:       sym.EndLine,
		})
	}

	return nil, out, nil
}

// Serve runs the server over stdio until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("Starting MCP server", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}

	s.logger.Info("MCP server stopped gracefully")
	return nil
}
