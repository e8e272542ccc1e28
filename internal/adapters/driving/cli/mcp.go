package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/mira/internal/adapters/driving/mcp"
	"github.com/custodia-labs/mira/internal/core/domain"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve Mira to AI assistants over the Model Context Protocol",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so AI assistants can ask
credential evaluation questions and search the knowledge base.

By default, the server communicates over stdio using JSON-RPC.
Use --port to start an HTTP server instead.

Examples:
  # Stdio mode (default, for desktop assistants)
  mira mcp serve

  # HTTP mode on localhost (for MCP Inspector)
  mira mcp serve --port 8080

  # HTTP mode reachable from other machines
  mira mcp serve --port 8080 --host 0.0.0.0

Desktop assistant configuration:
  {
    "mcpServers": {
      "mira": {
        "command": "/path/to/mira",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	RunE: runMCPServe,
}

var (
	mcpPort int
	mcpHost string
)

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "HTTP port (0 = use stdio)")
	mcpServeCmd.Flags().StringVar(&mcpHost, "host", "127.0.0.1", "HTTP bind address; use 0.0.0.0 to accept remote clients")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	if queryService == nil || retrievalService == nil {
		return notConfigured("query")
	}
	if mcpPort < 0 || mcpPort > 65535 {
		return fmt.Errorf("%w: port %d is out of range", domain.ErrInvalidInput, mcpPort)
	}

	server, err := mcp.NewServer(&mcp.Ports{
		Query:     queryService,
		Retrieval: retrievalService,
		Documents: ingestService,
	})
	if err != nil {
		return err
	}

	if mcpPort == 0 {
		return server.Run(cmd.Context())
	}
	addr := net.JoinHostPort(mcpHost, strconv.Itoa(mcpPort))
	fmt.Fprintf(cmd.OutOrStdout(), "MCP endpoint: http://%s\n", addr)
	return server.RunHTTP(cmd.Context(), addr)
}
