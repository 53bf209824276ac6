// Package mcp exposes the decision pipeline as MCP tools over stdio.
package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/ppiankov/stancewatch/internal/config"
	"github.com/ppiankov/stancewatch/internal/pipeline"
)

// Version is reported in the MCP implementation info.
var Version = "0.1.0"

// Config holds MCP server configuration.
type Config struct {
	ConfigPath string
	Generator  pipeline.Generator
	Logger     zerolog.Logger
}

// Server wraps the MCP SDK server with the stancewatch pipeline.
type Server struct {
	mcpServer *mcpsdk.Server
	stack     *pipeline.Stack
	logger    zerolog.Logger
}

// New loads the configuration, builds the pipeline and registers tools.
func New(ctx context.Context, cfg Config) (*Server, error) {
	settings, hash, err := config.LoadWithHash(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	stack, err := pipeline.Build(ctx, settings, hash, pipeline.BuildOptions{
		Generator: cfg.Generator,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	s := &Server{
		stack:  stack,
		logger: cfg.Logger,
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "stancewatch",
			Version: Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the pipeline resources.
func (s *Server) Close() error {
	return s.stack.Close()
}

// registerTools adds all stancewatch tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "stancewatch_evaluate",
		Description: "Run a user message through the safety pipeline. Returns the stance, the action (continue/stop/degrade/await_ack) and, for await_ack, the token and text the user must echo back.",
	}, s.handleEvaluate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "stancewatch_leakcheck",
		Description: "Check a draft response for numeric figures that must not reach the user without verified data.",
	}, s.handleLeakCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "stancewatch_classify",
		Description: "Report whether a message depends on live data, which categories, and which time zones (dry-run, no fetching).",
	}, s.handleClassify)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "stancewatch_revoke",
		Description: "Revoke an outstanding acknowledgment token by its token id.",
	}, s.handleRevoke)
}
