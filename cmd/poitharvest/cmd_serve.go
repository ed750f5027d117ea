package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"poitharvest/config"
	"poitharvest/server"
)

var serveFlags struct {
	output string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve harvested artifacts over HTTP",
	Long: `Starts an HTTP server over the output directory so a downstream
collector can list and fetch artifacts without filesystem access.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.output, "output", "", "output directory root")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if cmd.Flags().Changed("output") {
		cfg.Harvest.OutputDir = serveFlags.output
	}
	initLogger(cfg.Log)

	router := server.NewRouter(cfg.Server, cfg.Harvest.OutputDir, time.Now())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr, "output", cfg.Harvest.OutputDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
		return err
	}
	slog.Info("server stopped")
	return nil
}
