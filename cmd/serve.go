package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/supremehyo/appium-mcp-claude-android/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an MCP server exposing the device tools",
	Long: `Start a Model Context Protocol (MCP) server that exposes setup, device listing,
Appium server control, screen elements, single actions and scenario runs as tools.

Supported transports:
  stdio             Standard I/O (default, for MCP clients)
  streamable-http   Streamable HTTP transport (for remote agents)

Examples:
  appium-bridge serve
  appium-bridge serve --transport streamable-http --port 8080
  appium-bridge serve --cache-ttl 0`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("transport", "stdio", "Transport: stdio, streamable-http")
	serveCmd.Flags().Int("port", 8080, "HTTP port for streamable-http transport")
	serveCmd.Flags().Int("cache-ttl", 500, "Screen element cache TTL in milliseconds (0 to disable)")
}

func runServe(cmd *cobra.Command, args []string) error {
	transport, _ := cmd.Flags().GetString("transport")
	port, _ := cmd.Flags().GetInt("port")
	cacheTTLMs, _ := cmd.Flags().GetInt("cache-ttl")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var options []server.Option
	if st := openStore(cfg); st != nil {
		defer st.Close()
		options = append(options, server.WithStore(st))
	}

	srv, err := server.New(server.Config{
		Transport:  transport,
		Port:       port,
		CacheTTL:   time.Duration(cacheTTLMs) * time.Millisecond,
		ConfigPath: configPath(),
	}, options...)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	return srv.Serve()
}
