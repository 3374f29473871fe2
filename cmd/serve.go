package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vodqueue/api"
	"vodqueue/download"
	"vodqueue/store"
	"vodqueue/task"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the download queue and its HTTP API",
	Long: `Opens the task database, marks downloads interrupted by a previous run
as failed, and serves the control API until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}

	// 1. Open the task database
	db, err := store.OpenBitcask(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Error("Error closing task database")
		}
	}()

	// 2. Initialize the manager and inject the executor
	executor := download.NewHTTPExecutor(cfg)
	manager, err := task.NewManager(cfg, db, executor)
	if err != nil {
		return fmt.Errorf("failed to initialize download manager: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.Start(ctx); err != nil {
		return err
	}

	// 3. Set up router and server. Request contexts end with ctx so event
	// streams do not hold up the shutdown.
	router := api.SetupRouter(manager, cfg)
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 4. Wait for interrupt signal for graceful shutdown
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		log.WithError(runErr).Error("HTTP server failed")
	}

	// Restore default behavior on the interrupt signal and notify user of shutdown.
	stop()
	log.Info("Shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Active download did not settle before the shutdown timeout")
	}

	log.Info("Server exiting")
	return runErr
}
