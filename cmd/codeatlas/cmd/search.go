package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codeatlas/internal/config"
	"github.com/Aman-CERP/codeatlas/internal/embed"
	"github.com/Aman-CERP/codeatlas/internal/pipeline"
	"github.com/Aman-CERP/codeatlas/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	language string
	path     string
	format   string // "text", "json"
	noGraph  bool
	offline  bool // static embeddings, no provider calls
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Search indexed symbols with multi-signal retrieval.

Examples:
  codeatlas search "parse xml entities"
  codeatlas search HTMLParser --limit 5
  codeatlas search "retry logic" --language go --path internal/
  codeatlas search "score fusion" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Filter by language (e.g., go, python)")
	cmd.Flags().StringVarP(&opts.path, "path", "p", "", "Filter by relative path prefix")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.noGraph, "no-graph", false, "Disable call-graph expansion")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings (no provider calls)")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))

	root, err := os.Getwd()
	if err != nil {
		return err
	}

	cfg, err := config.LoadProject(root)
	if err != nil {
		return err
	}
	if opts.offline {
		cfg.Embeddings.Backend = embed.BackendStatic
	}

	p, manager, err := openPipeline(root, cfg)
	if err != nil {
		return err
	}
	defer manager.Close()

	searchOpts := pipeline.NewOptions()
	searchOpts.Limit = opts.limit
	searchOpts.Language = opts.language
	searchOpts.PathPrefix = opts.path
	searchOpts.DisableGraph = opts.noGraph
	searchOpts.RerankPoolSize = cfg.Search.RerankPoolSize

	resp, err := p.Search(ctx, query, searchOpts)
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	default:
		renderResults(cmd.OutOrStdout(), query, resp)
		return nil
	}
}

// openPipeline opens the index read-only and wires the embedder.
func openPipeline(root string, cfg *config.Config) (*pipeline.Pipeline, *store.Manager, error) {
	indexDir, err := cfg.IndexDir(root)
	if err != nil {
		return nil, nil, err
	}
	if _, statErr := os.Stat(indexDir); os.IsNotExist(statErr) {
		return nil, nil, fmt.Errorf("no index found at %s; run the indexer first", indexDir)
	}

	manager, err := store.Open(indexDir, cfg.Embeddings.Dimensions)
	if err != nil {
		return nil, nil, err
	}

	embedder, err := embed.New(embed.Config{
		Backend:    cfg.Embeddings.Backend,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		Host:       cfg.Embeddings.Host,
		APIKey:     cfg.Embeddings.APIKey,
		Timeout:    cfg.Embeddings.Timeout,
	})
	if err != nil {
		manager.Close()
		return nil, nil, err
	}

	p, err := pipeline.New(manager,
		pipeline.WithEmbedder(embedder),
		pipeline.WithConfig(pipeline.Config{
			GapRatio:    cfg.Search.ScoreGapRatio,
			MinKeep:     cfg.Search.ScoreGapMinKeep,
			GraphDepth:  cfg.Search.GraphDepth,
			GraphFanout: cfg.Search.GraphFanout,
		}))
	if err != nil {
		manager.Close()
		return nil, nil, err
	}

	return p, manager, nil
}
