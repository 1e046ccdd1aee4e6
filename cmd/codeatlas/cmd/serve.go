package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codeatlas/internal/config"
	"github.com/Aman-CERP/codeatlas/internal/embed"
	"github.com/Aman-CERP/codeatlas/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search to MCP clients over stdio",
		Long: `Start an MCP server exposing search_code and find_symbol tools
over stdio. Point Claude Code or Cursor at this command to search the
indexed codebase.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := os.Getwd()
			if err != nil {
				return err
			}

			cfg, err := config.LoadProject(root)
			if err != nil {
				return err
			}
			if offline {
				cfg.Embeddings.Backend = embed.BackendStatic
			}

			p, manager, err := openPipeline(root, cfg)
			if err != nil {
				return err
			}
			defer manager.Close()

			server, err := mcp.NewServer(p, manager)
			if err != nil {
				return err
			}

			return server.Serve(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (no provider calls)")

	return cmd
}
