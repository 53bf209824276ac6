package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	swmcp "github.com/ppiankov/stancewatch/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for assistant integration",
	Long:  "Runs the decision pipeline as an MCP (Model Context Protocol) server over stdio.\nExposes tools: evaluate, leakcheck, classify, revoke.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	_, _, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	swmcp.Version = version
	srv, err := swmcp.New(ctx, swmcp.Config{ConfigPath: configPath, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "stancewatch MCP server running on stdio")
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
