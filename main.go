package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/truthlayer/truth-mcp/internal/cli"
	"github.com/truthlayer/truth-mcp/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:     "truth-mcp",
		Short:   "Deterministic truth-layer MCP server over SQLite",
		Version: version.String(),
		Long: `truth-mcp maintains a single current truth per entity by reducing
immutable, source-attributed observations under versioned schemas and
per-field merge policies, with full provenance for every value.`,
		SilenceUsage: true,
	}

	root.AddCommand(cli.ServeCmd())
	root.AddCommand(cli.CheckCmd())
	root.AddCommand(cli.SchemaCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
