package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arcade-ai/arcade-mcp-go/internal/config"
	"github.com/arcade-ai/arcade-mcp-go/internal/logger"
	"github.com/arcade-ai/arcade-mcp-go/internal/server"
	"github.com/arcade-ai/arcade-mcp-go/internal/transport"
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
	"github.com/arcade-ai/arcade-mcp-go/pkg/tools"
)

var (
	flagHost    string
	flagPort    int
	flagReload  bool
	flagDebug   bool
	flagLocal   bool
	flagSSE     bool
	flagStream  bool
	flagEnvFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "arcade-mcp",
		Short:         "Arcade MCP server runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool catalog over an MCP transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	serveCmd.Flags().StringVar(&flagHost, "host", "", "Host to bind to")
	serveCmd.Flags().IntVar(&flagPort, "port", 0, "Port to bind to")
	serveCmd.Flags().BoolVar(&flagReload, "reload", false, "Reload on source changes (development)")
	serveCmd.Flags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().BoolVar(&flagLocal, "local", false, "Serve over stdio")
	serveCmd.Flags().BoolVar(&flagSSE, "sse", false, "Serve over HTTP with SSE streaming")
	serveCmd.Flags().BoolVar(&flagStream, "stream", false, "Serve over streamable HTTP (default)")
	serveCmd.Flags().StringVar(&flagEnvFile, "env-file", "", "Path to a .env file to load")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		switch mcp.KindOf(err) {
		case mcp.KindTransport:
			os.Exit(2)
		default:
			os.Exit(1)
		}
	}
}

func serve() error {
	cfg, err := config.Load(flagEnvFile)
	if err != nil {
		return mcp.WrapError(mcp.KindConfiguration, err, "failed to load configuration")
	}

	mode := resolveTransportMode(cfg)
	if flagHost != "" {
		cfg.ServerHost = flagHost
	}
	if flagPort != 0 {
		cfg.ServerPort = flagPort
	}
	if flagDebug {
		cfg.LogLevel = "debug"
	}
	cfg.TransportMode = mode

	// stdio owns stdout for protocol bytes; everything else logs there too
	if mode == "stdio" {
		logger.InitializeWithWriter(cfg.LogLevel, os.Stderr)
	} else {
		logger.Initialize(cfg.LogLevel)
	}
	defer logger.Sync()

	if flagReload {
		logger.Warn("--reload is handled by the external dev runner; ignoring")
	}

	// The catalog is populated by an external loader; embedders register
	// their toolkits here before starting the server.
	catalog := tools.NewCatalog()
	if catalog.Len() == 0 {
		logger.Warn("No tools available in catalog")
	}

	srv := server.New(cfg, catalog)
	srv.Start()
	defer srv.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
	switch mode {
	case "stdio":
		t := transport.NewStdioTransport(srv)
		if err := t.Run(ctx); err != nil {
			return mcp.WrapError(mcp.KindTransport, err, "stdio transport failed")
		}
	case "sse":
		t := transport.NewHTTPTransport(srv, transport.ModeSSE)
		if err := t.Run(ctx, addr); err != nil {
			return err
		}
	case "stream":
		t := transport.NewHTTPTransport(srv, transport.ModeStream)
		if err := t.Run(ctx, addr); err != nil {
			return err
		}
	default:
		return mcp.NewError(mcp.KindConfiguration, "unknown transport mode %q", mode)
	}
	return nil
}

// resolveTransportMode applies flag precedence over the environment
func resolveTransportMode(cfg *config.Config) string {
	switch {
	case flagLocal:
		return "stdio"
	case flagSSE:
		return "sse"
	case flagStream:
		return "stream"
	default:
		return cfg.TransportMode
	}
}
