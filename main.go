package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"videoqa/config"
	"videoqa/core"
	"videoqa/media"
	"videoqa/processors"
	"videoqa/qa"
	"videoqa/rag"
	"videoqa/server"
	"videoqa/storage"
)

func main() {
	logger, err := newLogger()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("DEBUG") != "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.HasValidAPI() {
		logger.Warn("OPENAI_API_KEY is not set; transcription, indexing and answering will fail")
	}

	store, err := core.NewFileStore(cfg.DataRoot)
	if err != nil {
		return err
	}
	tracker := core.NewTracker()

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBaseURL != "" {
		oc.BaseURL = cfg.APIBaseURL
	}
	client := openai.NewClientWithConfig(oc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vectors, err := storage.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer vectors.Close()

	embedder := rag.NewEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDim, logger)
	pipeline := rag.NewPipeline(embedder, vectors, logger)

	orch := processors.NewOrchestrator(
		store, tracker,
		media.NewYtdlpClient(cfg.YtdlpPath, logger),
		media.NewFFmpegClient(cfg.FFmpegPath, logger),
		processors.NewOpenAITranscriber(client, cfg.TranscribeModel),
		pipeline, logger,
		processors.Options{
			DirectLimitSec:    float64(cfg.DirectModeLimitSec),
			MaxExtractWorkers: cfg.MaxExtractWorkers,
			MaxSTTWorkers:     cfg.MaxTranscribeWorkers,
		})

	cache := qa.NewCache(store, logger)
	sessions := qa.NewSessions()
	answerer := qa.NewAnswerer(store, pipeline,
		qa.NewOpenAICompleter(client, cfg.ChatModel), cache, sessions, logger)

	srv := server.New(store, tracker, orch, answerer, pipeline, cache, sessions, logger)
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr),
			zap.String("vector_store", cfg.StoreKind))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	// Let in-flight processing runs finish writing their state.
	orch.Wait()
	return nil
}
