// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/markdave123-py/docqa/internal/api/handlers"
	"github.com/markdave123-py/docqa/internal/config"
	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/core/cache"
	db "github.com/markdave123-py/docqa/internal/core/database"
	"github.com/markdave123-py/docqa/internal/core/ingestion_engine"
	"github.com/markdave123-py/docqa/internal/core/llm"
	objectclient "github.com/markdave123-py/docqa/internal/core/object-client"
	"github.com/markdave123-py/docqa/internal/core/query_engine"
	"github.com/markdave123-py/docqa/internal/core/quota"
	"github.com/markdave123-py/docqa/internal/core/vectorindex"
	"github.com/markdave123-py/docqa/internal/services"
)

type App struct {
	DBClient     *db.DatabaseClient
	ObjectClient objectclient.ObjectClient
	Index        core.VectorIndex
	DocProcessor ingestion_engine.Ingestor
	Answerer     query_engine.Answerer
	Server       *Server

	closers []io.Closer
}

// NewApp constructs every client and wires them into the HTTP server. On
// error, whatever was already opened is released.
func NewApp(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient)
	log.Println("Database initialized and ready.")

	if objectclient.Enabled(cfg) {
		s3, err := objectclient.NewS3Client(appCtx, cfg)
		if err != nil {
			return nil, err
		}
		a.ObjectClient = s3
		log.Println("Object client initialized and ready.")
	} else {
		log.Println("Object storage not configured; raw uploads will not be archived.")
	}

	index, err := newVectorIndex(cfg, dbClient)
	if err != nil {
		return nil, err
	}
	a.Index = index
	log.Printf("Vector index backend: %s", cfg.VectorBackend)

	var vecCache llm.VectorCache
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(appCtx, cfg.RedisURL)
		if err != nil {
			// The cache only saves provider calls.
			log.Printf("WARN: redis unavailable, embedding cache disabled: %v", err)
		} else {
			a.closers = append(a.closers, rdb)
			vecCache = cache.NewEmbeddingCache(rdb, 0)
			log.Println("Embedding cache initialized and ready.")
		}
	}

	guardCfg := llm.GuardConfig{
		Timeout:    cfg.ProviderTimeout,
		MaxRetries: cfg.ProviderMaxRetries,
		RPM:        cfg.ProviderRPM,
	}

	geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	a.closers = append(a.closers, geminiEmbedder)
	embedGuard := guardCfg
	embedGuard.Name = "embed"
	embedder := llm.NewEmbedder(geminiEmbedder, llm.NewGuard(embedGuard), vecCache, geminiEmbedder.Model(), cfg.EmbedDim)

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the language model, %w", err)
	}
	a.closers = append(a.closers, llmProvider)
	genGuard := guardCfg
	genGuard.Name = "generate"
	synth := llm.NewGroundedSynthesizer(llmProvider, llm.NewGuard(genGuard))

	var recognizer core.Recognizer
	if cfg.OCREnabled() {
		ocrGuard := guardCfg
		ocrGuard.Name = "ocr"
		// Whole-document transcription is far slower than a single completion.
		ocrGuard.Timeout = 4 * cfg.ProviderTimeout
		rec, err := llm.NewGeminiRecognizer(appCtx, cfg.AIAPIKey, cfg.GenModel, llm.NewGuard(ocrGuard))
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the recognizer, %w", err)
		}
		a.closers = append(a.closers, rec)
		recognizer = rec
	}
	extractor := ingestion_engine.NewPDFExtractor(recognizer, cfg.MinTextLength, cfg.OCREnabled())

	ledger := quota.NewLedger(dbClient, quota.Limits{Uploads: cfg.FreeUploadLimit, Questions: cfg.FreeQuestionLimit})

	ingCfg := &ingestion_engine.IngestConfig{
		ChunkSize:        cfg.ChunkSize,
		ChunkOverlap:     cfg.ChunkOverlap,
		BatchSize:        cfg.UpsertBatchSize,
		EmbedConcurrency: cfg.EmbedConcurrency,
		EmbedDim:         cfg.EmbedDim,
		Bucket:           cfg.BucketName,
	}
	docIngestor := ingestion_engine.NewDocumentIngestor(dbClient, a.ObjectClient, embedder, extractor, index, ledger, ingCfg)
	docIngestor.Start(ctx, cfg.ReindexWorkers)
	a.DocProcessor = docIngestor

	answerer := query_engine.NewQueryEngine(dbClient, embedder, index, synth, ledger,
		query_engine.QueryConfig{TopK: cfg.TopK, ScoreThreshold: cfg.ScoreThreshold})
	a.Answerer = answerer

	docService := services.NewDocumentService(dbClient, docIngestor)
	userService := services.NewUserService(dbClient, ledger)

	router := NewRouter(cfg, Handlers{
		Session:  handlers.NewSessionHandler(dbClient, cfg.JWTSecret, cfg.SecureCookie),
		Document: handlers.NewDocumentHandler(docIngestor, docService, cfg.MaxUploadBytes),
		Chat:     handlers.NewChatHandler(answerer, userService),
		User:     handlers.NewUserHandler(userService),
		Health:   handlers.NewHealthHandler(dbClient, cfg.Presence()),
	})
	a.Server = NewServer(cfg, router)

	return a, nil
}

// newVectorIndex picks the backend named by VECTOR_BACKEND.
func newVectorIndex(cfg *config.Config, dbClient *db.DatabaseClient) (core.VectorIndex, error) {
	switch cfg.VectorBackend {
	case "pgvector", "":
		return vectorindex.NewPgVectorIndex(dbClient.DB()), nil
	case "qdrant":
		return vectorindex.NewQdrantIndex(vectorindex.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
		}), nil
	case "memory":
		return vectorindex.NewMemoryIndex(), nil
	}
	return nil, fmt.Errorf("unknown VECTOR_BACKEND %q", cfg.VectorBackend)
}

// Close releases clients in reverse order of construction.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}
	a.closers = nil
}
