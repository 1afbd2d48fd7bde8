package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/eezybuild/eezybuild/internal/types"
	"github.com/eezybuild/eezybuild/pkg/blob"
	"github.com/eezybuild/eezybuild/pkg/config"
	"github.com/eezybuild/eezybuild/pkg/extractor"
	"github.com/eezybuild/eezybuild/pkg/gateway"
	"github.com/eezybuild/eezybuild/pkg/history"
	"github.com/eezybuild/eezybuild/pkg/ingest"
	"github.com/eezybuild/eezybuild/pkg/llm"
	"github.com/eezybuild/eezybuild/pkg/logger"
	"github.com/eezybuild/eezybuild/pkg/pinecone"
	"github.com/eezybuild/eezybuild/pkg/processor"
	"github.com/eezybuild/eezybuild/pkg/rag"
	"github.com/eezybuild/eezybuild/pkg/scraper"
	"github.com/eezybuild/eezybuild/pkg/store"
)

// app builds the components each command needs from the loaded config and
// releases them when the command exits.
type app struct {
	cfg *config.Config
	log *logger.Logger

	mu      sync.Mutex
	db      *pgxpool.Pool
	client  *openai.LLM
	closers []func()
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) pool(ctx context.Context) (*pgxpool.Pool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		return a.db, nil
	}
	pool, err := pgxpool.New(ctx, a.cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = pool
	a.onClose(pool.Close)
	return pool, nil
}

func (a *app) openAI() (*openai.LLM, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}
	client, err := llm.NewOpenAI(a.cfg.OpenAI.APIKey, a.cfg.OpenAI.BaseURL, a.cfg.OpenAI.ChatModel)
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

func (a *app) embedder() (*llm.Embedder, error) {
	ec := llm.EmbedderConfig{
		APIKey:     a.cfg.OpenAI.APIKey,
		BaseURL:    a.cfg.OpenAI.BaseURL,
		Model:      a.cfg.OpenAI.EmbeddingModel,
		BatchSize:  a.cfg.OpenAI.EmbeddingBatchSize,
		BatchDelay: a.cfg.OpenAI.EmbeddingBatchDelay,
	}
	if a.cfg.VectorIndex.Provider == config.ProviderPgvector {
		ec.Dimensions = a.cfg.VectorIndex.VectorDim
	}
	return llm.NewEmbedderWithConfig(ec, a.log)
}

func (a *app) index(ctx context.Context) (types.VectorIndex, error) {
	vc := a.cfg.VectorIndex
	if vc.Provider == config.ProviderPgvector {
		pool, err := a.pool(ctx)
		if err != nil {
			return nil, err
		}
		vs, err := store.New(ctx, pool, store.VectorStoreConfig{
			TableName:  vc.TableName,
			VectorDim:  vc.VectorDim,
			BatchSize:  vc.UpsertBatchSize,
			BatchDelay: vc.UpsertBatchDelay,
		}, a.log)
		if err != nil {
			return nil, err
		}
		return vs, nil
	}

	client, err := pinecone.New(pinecone.Config{
		APIKey:     vc.APIKey,
		Host:       vc.Host,
		APIVersion: vc.APIVersion,
		Namespace:  vc.Namespace,
		BatchSize:  vc.UpsertBatchSize,
		BatchDelay: vc.UpsertBatchDelay,
	}, a.log)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// chatPipeline builds the orchestrator with every project-scope collaborator.
func (a *app) chatPipeline(ctx context.Context) (*rag.Orchestrator, error) {
	if err := a.cfg.RequireChatSecrets(); err != nil {
		return nil, err
	}

	embedder, err := a.embedder()
	if err != nil {
		return nil, err
	}
	index, err := a.index(ctx)
	if err != nil {
		return nil, err
	}
	client, err := a.openAI()
	if err != nil {
		return nil, err
	}
	chat, err := llm.NewChatEngine(client, llm.ChatConfig{
		Model:       a.cfg.OpenAI.ChatModel,
		Temperature: *a.cfg.OpenAI.Temperature,
		MaxTokens:   a.cfg.OpenAI.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	pool, err := a.pool(ctx)
	if err != nil {
		return nil, err
	}
	gw := gateway.New(pool, a.log)

	sc := a.cfg.Storage
	blobs, err := blob.New(ctx, blob.Config{
		Endpoint:        sc.Endpoint,
		Region:          sc.Region,
		Bucket:          sc.Bucket,
		AccessKeyID:     sc.AccessKeyID,
		SecretAccessKey: sc.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}

	vision := llm.NewVisionAnalyzer(client, a.cfg.OpenAI.VisionModel, a.log)
	summarizer := llm.NewSummarizer(client, a.cfg.OpenAI.SummaryModel, a.log)

	return rag.New(rag.Deps{
		Embedder:        embedder,
		Index:           index,
		Chat:            chat,
		Gateway:         gw,
		Extractor:       extractor.New(blobs, vision, a.cfg.Chat.MaxDocumentChars, a.log),
		History:         history.New(gw, summarizer, a.cfg.Chat.HistoryLimit, a.log),
		MaxTokens:       a.cfg.OpenAI.MaxTokens,
		ScopedMaxTokens: a.cfg.OpenAI.ScopedMaxTokens,
	}, a.log)
}

// ingestJob builds the ingestion job. The run log is only wired when a
// database is configured.
func (a *app) ingestJob(ctx context.Context, onPage func(string), onProgress func(ingest.Progress)) (*ingest.Job, error) {
	if err := a.cfg.RequireIngestSecrets(); err != nil {
		return nil, err
	}

	sc := a.cfg.Scraper
	crawler := scraper.NewWithConfig(scraper.ScraperConfig{
		MaxDepth:          sc.MaxDepth,
		MaxPages:          sc.MaxPages,
		RateLimit:         sc.RateLimit,
		IgnorePatterns:    sc.IgnorePatterns,
		AllowedExtensions: sc.AllowedExtensions,
		Timeout:           sc.Timeout,
		UserAgent:         sc.UserAgent,
		OnProgress:        onPage,
		Logger:            a.log,
	})

	embedder, err := a.embedder()
	if err != nil {
		return nil, err
	}
	index, err := a.index(ctx)
	if err != nil {
		return nil, err
	}

	var runs types.RunLog
	if a.cfg.Database.URL != "" {
		pool, err := a.pool(ctx)
		if err != nil {
			return nil, err
		}
		runs = store.NewRunLog(pool)
	}

	pc := a.cfg.Processor
	return ingest.New(crawler, embedder, index, runs, ingest.Config{
		Processor: processor.ProcessorConfig{
			ChunkSize:      pc.ChunkSize,
			ChunkOverlap:   pc.ChunkOverlap,
			MinChunkLength: pc.MinChunkLength,
			MinPageLength:  pc.MinPageLength,
			DefaultSource:  a.cfg.Ingest.SourceLabel,
		},
		OnProgress: onProgress,
	}, a.log)
}
