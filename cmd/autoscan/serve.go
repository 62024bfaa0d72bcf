package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/autoscan/internal/processor"
	"github.com/jo-hoe/autoscan/internal/scan"
	"github.com/jo-hoe/autoscan/internal/server"
	"github.com/jo-hoe/autoscan/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP API used by the web front end",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(os.Stdout)
		if err != nil {
			return err
		}
		defer a.Close()
		return serve(a)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(a *app) error {
	logger := a.log
	cfg := a.cfg

	recognizer, err := newRecognizer(cfg.Recognition)
	if err != nil {
		return err
	}

	// Worker and queue
	tracker := scan.NewTracker(0)
	worker := processor.New(logger, a.store, recognizer, tracker)
	queue := scan.NewQueue(logger, cfg.Server.QueueCapacity, cfg.Server.WorkerCount)
	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := queue.Start(rootCtx, worker); err != nil {
		return err
	}

	// HTTP server
	svc := &server.Service{
		Log:       logger,
		Cfg:       cfg,
		Store:     a.store,
		Queue:     queue,
		Photos:    storage.NewPhotos(cfg.Server.StorageDir),
		Scans:     tracker,
		Processor: worker,
		Location:  a.loc,
	}
	httpSrv := server.NewHTTPServer(svc)

	// Run server in background
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "address", cfg.Server.Addr, "storage", cfg.Storage.Backend, "recognition", cfg.Recognition.Provider)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error
	var serveErr error
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("server error", "err", serveErr)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	// Stop workers
	queue.Shutdown(cfg.Server.ShutdownGrace)
	logger.Info("server stopped")
	return serveErr
}
