package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ekg-insight/internal/analysis"
	"ekg-insight/internal/config"
	"ekg-insight/internal/ekg"
	"ekg-insight/internal/library"
	xlog "ekg-insight/internal/log"
	"ekg-insight/internal/persons"
	"ekg-insight/internal/server"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the person catalogue and recording analyses over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	logger := xlog.WithComponent("main")

	dataRoot, err := config.ResolveDataRoot()
	if err != nil {
		return fmt.Errorf("resolve data root: %w", err)
	}

	personDB, err := config.ResolvePersonDB(dataRoot)
	if err != nil {
		return fmt.Errorf("resolve person database: %w", err)
	}

	listenAddr := config.ListenAddr()
	if err := config.ValidateListenAddr(listenAddr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", listenAddr, err)
	}

	detection, err := config.ResolveDetection()
	if err != nil {
		return fmt.Errorf("resolve detection config: %w", err)
	}

	debounce := config.RefreshDebounce()
	loadOpts := ekg.LoadOptions{MaxBytes: config.MaxRecordingBytes()}

	store, err := persons.NewStore(personDB, debounce, xlog.WithComponent("persons"))
	if err != nil {
		return fmt.Errorf("initialise person store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing person store")
		}
	}()

	lib, err := library.NewLibrary(dataRoot, config.AllowedExtensions(), debounce, loadOpts, xlog.WithComponent("library"))
	if err != nil {
		return fmt.Errorf("initialise recording index: %w", err)
	}
	defer func() {
		if err := lib.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing recording index")
		}
	}()

	svc := analysis.New(store, analysis.Options{
		DataRoot: dataRoot,
		Tuning:   analysis.Tuning{Peaks: detection.Peaks, MinHeartRate: detection.MinHeartRate},
		Load:     loadOpts,
		Workers:  config.CompareWorkers(),
	}, xlog.WithComponent("analysis"))

	handler := server.New(store, lib, svc, xlog.WithComponent("http"))
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Msg("graceful shutdown error")
		}
	}()

	logger.Info().
		Str("addr", listenAddr).
		Str("data_dir", dataRoot).
		Str("person_db", personDB).
		Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info().Msg("shutdown complete")
	return nil
}
