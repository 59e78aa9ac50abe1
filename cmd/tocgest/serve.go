package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/tocgest/internal/api"
	"github.com/dgallion1/tocgest/internal/pipeline"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tocgest HTTP server",
	Long: `Start the tocgest HTTP API.

Endpoints:
  GET  /health                 - health check (no auth)
  POST /api/toc                - synchronous extraction (multipart "file")
  POST /api/toc/jobs           - queue an extraction, returns job_id
  GET  /api/toc/jobs/{jobID}   - job status and result
  GET  /api/stats/ocr          - OCR latency percentiles

All /api routes require "Authorization: Bearer $TOCGEST_API_KEY".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort != "" {
			cfg.Port = servePort
		}

		log, err := newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		if err := cfg.ValidateServer(); err != nil {
			log.Error("invalid configuration", "error", err)
			return err
		}

		cache, err := openCache(cfg, log)
		if err != nil {
			return err
		}
		if cache != nil {
			defer cache.Close()
			if n, err := cache.Prune(ctx); err != nil {
				log.Warn("prune result cache", "error", err)
			} else if n > 0 {
				log.Info("pruned result cache", "removed", n)
			}
		}

		p, stats := buildPipeline(cfg, true, cache, log)
		orch := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
			WorkerCount:  cfg.WorkerCount,
			MaxQueueSize: cfg.MaxQueueSize,
			JobTTL:       cfg.JobTTL,
		}, p, log)
		orch.Start(ctx)
		defer orch.Stop()

		srv := api.NewServer(orch, stats, log, cfg)
		httpServer := &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      srv,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: writeTimeout(cfg.ExtractTimeout),
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("starting tocgest", "port", cfg.Port, "version", version)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "port to listen on (overrides config)")
}

// writeTimeout leaves room for a synchronous extraction to finish.
func writeTimeout(extract time.Duration) time.Duration {
	const base = 120 * time.Second
	if extract <= 0 {
		return 10 * time.Minute
	}
	return extract + base
}
