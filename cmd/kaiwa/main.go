// Package main is the Kaiwa server entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/extract"
	"github.com/hyperjump/kaiwa/internal/ingest"
	"github.com/hyperjump/kaiwa/internal/llm"
	"github.com/hyperjump/kaiwa/internal/query"
	"github.com/hyperjump/kaiwa/internal/server"
	"github.com/hyperjump/kaiwa/internal/session"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/vector"
	"github.com/hyperjump/kaiwa/internal/watcher"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kaiwa/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "version", "--version", "-v":
		fmt.Printf("kaiwa version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer store.Close()

	index, err := vector.NewMemoryIndex(cfg.Ollama.EmbeddingDimensions)
	if err != nil {
		logger.Fatal("failed to create vector index", zap.Error(err))
	}
	defer index.Close()

	embedder := embedding.NewOllamaEmbedder(&cfg.Ollama)
	defer embedder.Close()
	ollamaClient := llm.NewOllamaClient(&cfg.Ollama)

	pipeline := ingest.NewPipeline(store, embedder, index, extract.NewPDFExtractor(),
		&cfg.Ingest, cfg.Storage.UploadPath, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pipeline.Rebuild(ctx); err != nil {
		logger.Fatal("failed to rebuild vector index", zap.Error(err))
	}
	logger.Info("vector index rebuilt", zap.Int("chunks", index.Size()))

	// Documents interrupted mid-ingestion are retried from their stored files.
	go func() {
		if err := pipeline.Recover(ctx); err != nil {
			logger.Warn("recovery pass failed", zap.Error(err))
		}
	}()

	sessions := session.NewManager(store)
	orchestrator := query.NewOrchestrator(sessions, embedder, index, ollamaClient, &cfg.Query, logger)
	srv := server.NewServer(pipeline, orchestrator, sessions, store, ollamaClient, cfg, logger)

	var watch *watcher.Watcher
	if cfg.Watch.Directory != "" {
		watch = watcher.NewWatcher(cfg.Watch.Directory, dropIngest(ctx, pipeline, logger), logger)
		if err := watch.Start(ctx); err != nil {
			logger.Fatal("failed to start drop watcher", zap.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server stopped", zap.Error(err))
	}

	if watch != nil {
		watch.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// dropIngest returns the watcher callback that feeds dropped PDFs into the
// pipeline through the same validation as uploads.
func dropIngest(ctx context.Context, pipeline *ingest.Pipeline, logger *zap.Logger) func(path string) {
	return func(path string) {
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("failed to read dropped file", zap.String("path", path), zap.Error(err))
			return
		}
		filename := filepath.Base(path)
		if err := pipeline.ValidateUpload(filename, int64(len(content))); err != nil {
			logger.Warn("dropped file rejected", zap.String("path", path), zap.Error(err))
			return
		}
		doc, err := pipeline.CreatePending(ctx, filename, int64(len(content)))
		if err != nil {
			logger.Error("failed to create document for dropped file", zap.String("path", path), zap.Error(err))
			return
		}
		if err := pipeline.SaveUpload(doc.ID, content); err != nil {
			logger.Warn("failed to persist dropped file", zap.String("document_id", doc.ID), zap.Error(err))
		}
		if err := pipeline.Ingest(ctx, doc.ID, content); err != nil {
			logger.Warn("ingestion of dropped file failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
}

func printUsage() {
	fmt.Println(`kaiwa - ask questions about your PDF documents, answered by a local LLM

Usage:
  kaiwa server [-config path] [-debug]   Start the API server
  kaiwa version                          Print version
  kaiwa help                             Show this help`)
}
