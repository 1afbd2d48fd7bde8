package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/eezybuild/eezybuild/internal/models"
	"github.com/eezybuild/eezybuild/internal/types"
	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/logger"
	"github.com/eezybuild/eezybuild/pkg/processor"
)

// SourceField is the metadata field that ties a vector to the crawl root it
// came from. A refresh replaces every vector carrying the same value.
const SourceField = "sourceUrl"

var ErrRunInProgress = errors.New("an ingestion run is already in progress")

// Stages reported through Config.OnProgress.
const (
	StageCrawl   = "crawl"
	StageProcess = "process"
	StageEmbed   = "embed"
	StageDelete  = "delete"
	StageUpsert  = "upsert"
)

type Progress struct {
	Stage string
	Count int
}

type Config struct {
	Processor  processor.ProcessorConfig
	OnProgress func(Progress)
}

// Job refreshes the regulations index from a crawl of the source website.
// At most one run executes at a time.
type Job struct {
	crawler   types.Crawler
	processor processor.Processor
	embedder  types.Embedder
	index     types.VectorIndex
	runs      types.RunLog
	config    Config
	log       *logger.Logger
	now       func() time.Time
	running   atomic.Bool
}

// New builds a Job. runs may be nil, in which case runs are only logged.
func New(crawler types.Crawler, embedder types.Embedder, index types.VectorIndex, runs types.RunLog, config Config, log *logger.Logger) (*Job, error) {
	if crawler == nil || embedder == nil || index == nil {
		return nil, apierr.Errorf(apierr.MissingConfiguration, "crawler, embedder and vector index are required")
	}
	return &Job{
		crawler:   crawler,
		processor: processor.NewWithConfig(config.Processor),
		embedder:  embedder,
		index:     index,
		runs:      runs,
		config:    config,
		log:       log.With("component", "ingest"),
		now:       time.Now,
	}, nil
}

// RefreshRegulationsIndex crawls sourceURL and fully replaces the vectors
// previously indexed for it. Every run, successful or not, is recorded.
func (j *Job) RefreshRegulationsIndex(ctx context.Context, sourceURL string) (models.IngestionResult, error) {
	if !j.running.CompareAndSwap(false, true) {
		return models.IngestionResult{}, ErrRunInProgress
	}
	defer j.running.Store(false)

	ctx, span := otel.Tracer("eezybuild/ingest").Start(ctx, "ingest.refresh")
	defer span.End()
	span.SetAttributes(attribute.String("source_url", sourceURL))

	started := j.now()
	j.log.Info("starting regulations refresh", "source_url", sourceURL)

	var result models.IngestionResult
	err := j.refresh(ctx, sourceURL, &result)

	run := models.IngestionRun{
		UpdateDate:      j.now(),
		PagesCrawled:    result.PagesCrawled,
		ChunksProcessed: result.ChunksProcessed,
		VectorsCreated:  result.VectorsCreated,
		Status:          models.RunCompleted,
	}
	if err != nil {
		run.Status = models.RunFailed
		run.ErrorMessage = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		j.log.Error("regulations refresh failed", "source_url", sourceURL, "error", err)
	} else {
		j.log.Info("regulations refresh completed",
			"source_url", sourceURL,
			"pages", result.PagesCrawled,
			"chunks", result.ChunksProcessed,
			"vectors", result.VectorsCreated,
			"duration", time.Since(started),
		)
	}
	j.recordRun(ctx, run)

	return result, err
}

func (j *Job) refresh(ctx context.Context, sourceURL string, result *models.IngestionResult) error {
	pages, err := j.crawler.Crawl(ctx, sourceURL)
	if err != nil {
		return fmt.Errorf("crawl %s: %w", sourceURL, err)
	}
	result.PagesCrawled = len(pages)
	j.progress(StageCrawl, len(pages))

	records := j.processor.Process(pages)
	result.ChunksProcessed = len(records)
	j.progress(StageProcess, len(records))
	if len(records) == 0 {
		return fmt.Errorf("no content chunks produced from %d pages", len(pages))
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	embeddings, err := j.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(records) {
		return fmt.Errorf("embed chunks: expected %d embeddings, got %d", len(records), len(embeddings))
	}
	j.progress(StageEmbed, len(embeddings))

	vectors := j.buildVectors(sourceURL, records, embeddings)

	if err := j.index.Delete(ctx, models.VectorFilter{Field: SourceField, Values: []string{sourceURL}}); err != nil {
		j.log.Warn("could not clear previous vectors, continuing", "source_url", sourceURL, "error", err)
	} else {
		j.progress(StageDelete, 1)
	}

	if err := j.index.Upsert(ctx, vectors); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	result.VectorsCreated = len(vectors)
	j.progress(StageUpsert, len(vectors))
	return nil
}

func (j *Job) buildVectors(sourceURL string, records []models.ChunkRecord, embeddings [][]float32) []models.IndexedVector {
	now := j.now()
	lastUpdated := now.UTC().Format(time.RFC3339)

	vectors := make([]models.IndexedVector, len(records))
	for i, r := range records {
		vectors[i] = models.IndexedVector{
			ID:     fmt.Sprintf("building-reg-%d-%d", now.UnixMilli(), i),
			Values: embeddings[i],
			Metadata: models.ChunkMetadata{
				Text:        r.Text,
				Source:      r.Source,
				URL:         r.URL,
				LastUpdated: lastUpdated,
				Section:     processor.ExtractSection(r.Text),
				SourceURL:   sourceURL,
				ChunkIndex:  r.Index,
				TotalChunks: r.Total,
				Images:      r.Images,
			},
		}
	}
	return vectors
}

// recordRun never fails the run it records.
func (j *Job) recordRun(ctx context.Context, run models.IngestionRun) {
	if j.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := j.runs.Record(ctx, run); err != nil {
		j.log.Warn("failed to record ingestion run", "status", run.Status, "error", err)
	}
}

func (j *Job) progress(stage string, count int) {
	if j.config.OnProgress != nil {
		j.config.OnProgress(Progress{Stage: stage, Count: count})
	}
}
