package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/server"
	"github.com/DebileOrpheus45/fuels-logistics-ai/internal/trigger"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the monitoring service: scheduled cycles, staleness sweeps, and the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	scheduler := trigger.NewScheduler(app.coord, app.monitor)
	if err := scheduler.RegisterAgents(ctx, app.store); err != nil {
		return fmt.Errorf("registering agent schedules: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer scheduler.Stop()

	if app.cfg.InboundToken == "" {
		log.Warn().Msg("FUELS_INBOUND_TOKEN not set, inbound email webhook accepts unauthenticated posts")
	}

	srv := server.NewServer(app.store, app.graph, app.parser, app.coord, app.cfg.InboundToken)

	addr := serveAddr
	if addr == "" {
		addr = app.cfg.ListenAddr
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // manual cycles with a judgment review take minutes
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Int("cron_entries", scheduler.Entries()).
		Msg("fuelsd_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
