// Package cmd provides the CLI commands for CodeAtlas.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codeatlas/internal/logging"
	"github.com/Aman-CERP/codeatlas/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the codeatlas CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codeatlas",
		Short: "Multi-signal code search over an indexed repository",
		Long: `CodeAtlas searches indexed code symbols with four fused signals:
BM25 keyword matching, semantic vector similarity, exact name lookup,
and call-graph expansion, combined with Reciprocal Rank Fusion.

Run 'codeatlas search <query>' against an existing index, or
'codeatlas serve' to expose search to MCP clients.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("codeatlas version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.codeatlas/logs/")
	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging installs the file logger before any command runs.
func setupLogging(*cobra.Command, []string) error {
	cfg := logging.DefaultConfig()
	cfg.WriteToStderr = false
	if debugMode {
		cfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		// Logging failure never blocks the command; fall back to the
		// default stderr handler.
		slog.Warn("file logging unavailable", slog.String("error", err.Error()))
		return nil
	}

	slog.SetDefault(logger)
	loggingCleanup = cleanup
	return nil
}
