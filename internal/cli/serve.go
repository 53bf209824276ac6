package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/stancewatch/internal/server"
)

var serveListen string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "gRPC listen address (overrides server.listen)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start gRPC decision server",
	Long:  "Runs the decision pipeline as a gRPC service.\nAssistants connect as clients for remote evaluation.\nSupports hot-reload of the config and risk catalog files.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	_, _, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := server.New(ctx, server.Config{
		Listen:     serveListen,
		ConfigPath: configPath,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	watchPaths := []string{srv.ConfigPath(), srv.CatalogPath()}
	reloader, err := server.NewReloader(srv, watchPaths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	}
	if reloader != nil {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down decision server...")
		cancel()
		srv.GracefulStop()
	}()

	fmt.Fprintf(os.Stderr, "stancewatch decision server listening on %s\n", srv.Addr())
	if reloader != nil {
		for _, p := range reloader.Paths() {
			fmt.Fprintf(os.Stderr, "Watching: %s (hot-reload enabled)\n", p)
		}
	}
	fmt.Fprintln(os.Stderr)

	return srv.Serve()
}
