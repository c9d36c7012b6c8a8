package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yashubustudio/reviewlens/internal/server"
	"yashubustudio/reviewlens/internal/telemetry"
	"yashubustudio/reviewlens/sentiment"
)

var (
	serveAddr  string
	serveModel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the inference API",
	Long: `Starts the HTTP API (/predict, /evaluate, /health). The model loads in the
background so /health answers during a cold start; prediction endpoints return
503 until it is ready.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config and REVIEWLENS_ADDR)")
	serveCmd.Flags().StringVar(&serveModel, "model", "", "Model directory (overrides config and MODEL_PATH)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := sentiment.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveModel != "" {
		cfg.Model.ModelPath = serveModel
	}
	sentiment.SetColumnCandidates(cfg.Columns)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := telemetry.Open(ctx, telemetry.FromSettings(cfg.Telemetry), logger)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rec.Close(flushCtx); err != nil {
			logger.Warn("flushing metrics", zap.Error(err))
		}
	}()

	svc, err := sentiment.NewService(cfg, sentiment.LoadOrtClassifier, logger, sentiment.WithRecorder(rec))
	if err != nil {
		return err
	}
	defer svc.Close()

	go func() {
		if err := svc.Load(ctx); err != nil {
			logger.Error("model unavailable; serving health only", zap.Error(err))
		}
	}()

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	return server.NewServer(cfg.Server, svc, logger).Run(ctx)
}
