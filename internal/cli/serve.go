package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/truthlayer/truth-mcp/internal/server"
)

// ServeCmd runs the MCP server over stdio or streamable HTTP.
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the truth-layer MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if transport, _ := cmd.Flags().GetString("transport"); transport != "" {
				cfg.Transport = transport
			}
			if port, _ := cmd.Flags().GetString("port"); port != "" {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			d, err := loadDeps(cfg)
			if err != nil {
				return err
			}
			defer d.close()

			srv := server.New(server.Deps{
				Store:    d.store,
				Registry: d.registry,
				Engine:   d.engine,
				Checker:  d.checker,
			})

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			switch cfg.Transport {
			case "stdio":
				d.log.Info("truth-mcp server starting", "transport", "stdio")
				return srv.Run(ctx, &mcp.StdioTransport{})
			default: // http, validated above
				addr := ":" + cfg.Port
				handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
					return srv
				}, nil)
				d.log.Info("truth-mcp server listening", "addr", addr)
				return http.ListenAndServe(addr, handler)
			}
		},
	}
	addConfigFlags(cmd)
	cmd.Flags().String("transport", "", "Transport mode: stdio or http (overrides config)")
	cmd.Flags().String("port", "", "HTTP port (overrides config)")
	return cmd
}
