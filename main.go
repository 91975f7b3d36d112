// Balance Sheet RAG serves role-scoped retrieval-augmented analysis of
// uploaded balance-sheet PDFs.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"balancesheet-rag/internal/access"
	"balancesheet-rag/internal/api"
	"balancesheet-rag/internal/assembler"
	"balancesheet-rag/internal/audit"
	"balancesheet-rag/internal/chat"
	"balancesheet-rag/internal/chunker"
	"balancesheet-rag/internal/classifier"
	"balancesheet-rag/internal/config"
	"balancesheet-rag/internal/embeddings"
	"balancesheet-rag/internal/extractor"
	"balancesheet-rag/internal/ingest"
	"balancesheet-rag/internal/llm"
	"balancesheet-rag/internal/retriever"
	"balancesheet-rag/internal/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	vectorStore, err := storage.NewSQLiteVectorStore(cfg.Database.Path, logger)
	if err != nil {
		logger.Error("failed to initialize vector store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := vectorStore.Close(); err != nil {
			logger.Error("error closing vector store", "error", err)
		}
	}()

	ollamaTimeout := time.Duration(cfg.Services.Ollama.Timeout) * time.Second
	embedder := embeddings.NewOllamaEmbedder(cfg.Services.Ollama.BaseURL, cfg.Services.Ollama.EmbeddingModel, ollamaTimeout)
	generator := llm.NewOllamaClient(cfg.Services.Ollama.BaseURL, cfg.Services.Ollama.LLMModel, ollamaTimeout)

	chk, err := chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		logger.Error("invalid chunking configuration", "error", err)
		os.Exit(1)
	}

	auditor := audit.NewLogEmitter(logger)
	resolver := access.NewResolver(cfg.Verticals, cfg.Companies)
	directory := access.NewDirectory(cfg.Principals)

	ingestSvc := ingest.NewService(
		extractor.New(cfg.Ingest.MaxUploadBytes),
		classifier.New(cfg.Verticals, logger),
		chk,
		embedder,
		storage.NewMemoryDocumentStore(),
		vectorStore,
		auditor,
		logger,
		cfg.Ingest.MaxUploadBytes,
		cfg.Ingest.EmbedWorkers,
	)

	engine := chat.NewEngine(
		storage.NewMemorySessionStore(),
		retriever.New(embedder, vectorStore, cfg.Retrieval.TopK, float32(cfg.Retrieval.SimilarityThreshold)),
		assembler.New(cfg.Retrieval.MaxContextLength),
		generator,
		resolver,
		auditor,
		logger,
	)

	server := api.NewServer(ingestSvc, engine, resolver, directory, vectorStore, logger, cfg.Ingest.MaxUploadBytes, !cfg.IsProduction())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	logger.Info("server starting", "addr", addr, "environment", cfg.App.Environment)
	if err := httpServer.ListenAndServe(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.App.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
