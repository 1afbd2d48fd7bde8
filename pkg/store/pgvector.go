package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/time/rate"

	"github.com/eezybuild/eezybuild/internal/models"
	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/logger"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	BatchSize  int
	BatchDelay time.Duration
}

// VectorStore is a Postgres + pgvector implementation of the regulations index.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
	table  string
	log    *logger.Logger
	owned  bool
}

func applyVectorDefaults(config *VectorStoreConfig) {
	if config.TableName == "" {
		config.TableName = "building_regulations"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // text-embedding-3-small
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
}

// NewWithConfig opens its own pool and prepares the table.
func NewWithConfig(ctx context.Context, config VectorStoreConfig, log *logger.Logger) (*VectorStore, error) {
	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs, err := New(ctx, pool, config, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	vs.owned = true
	return vs, nil
}

// New prepares the table on an existing pool. Close leaves the pool open.
func New(ctx context.Context, pool *pgxpool.Pool, config VectorStoreConfig, log *logger.Logger) (*VectorStore, error) {
	applyVectorDefaults(&config)

	vs := &VectorStore{
		config: config,
		pool:   pool,
		table:  pgx.Identifier{config.TableName}.Sanitize(),
		log:    log.With("component", "pgvector"),
	}
	if err := vs.initialize(ctx); err != nil {
		return nil, err
	}
	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			source TEXT,
			content TEXT,
			chunk_index INTEGER,
			embedding vector(%d),
			metadata JSONB
		)`, vs.table, vs.config.VectorDim)

	if _, err = vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	indexName := pgx.Identifier{vs.config.TableName + "_embedding_idx"}.Sanitize()
	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		indexName, vs.table)

	if _, err = vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Upsert writes vectors in batches, one transaction per batch.
func (vs *VectorStore) Upsert(ctx context.Context, vectors []models.IndexedVector) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, url, source, content, chunk_index, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			source = EXCLUDED.source,
			content = EXCLUDED.content,
			chunk_index = EXCLUDED.chunk_index,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		vs.table)

	limit := rate.Inf
	if vs.config.BatchDelay > 0 {
		limit = rate.Every(vs.config.BatchDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	for start := 0; start < len(vectors); start += vs.config.BatchSize {
		end := min(start+vs.config.BatchSize, len(vectors))
		if err := limiter.Wait(ctx); err != nil {
			return apierr.New(apierr.UpstreamRetrievalFailure, err)
		}
		if err := vs.upsertBatch(ctx, stmt, vectors[start:end]); err != nil {
			return apierr.New(apierr.UpstreamRetrievalFailure, fmt.Errorf("upsert batch %d-%d: %w", start, end, err))
		}
		vs.log.Debug("upserted batch", "from", start, "to", end)
	}
	return nil
}

func (vs *VectorStore) upsertBatch(ctx context.Context, stmt string, batch []models.IndexedVector) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, v := range batch {
		meta := v.Metadata
		meta.Text = strings.ToValidUTF8(meta.Text, "")
		meta.Source = strings.ToValidUTF8(meta.Source, "")

		raw, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", v.ID, err)
		}

		_, err = tx.Exec(ctx, stmt,
			v.ID,
			meta.URL,
			meta.Source,
			meta.Text,
			meta.ChunkIndex,
			pgvector.NewVector(v.Values),
			raw,
		)
		if err != nil {
			return fmt.Errorf("failed to insert vector %s: %w", v.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Query returns the topK nearest vectors, scored by cosine similarity.
func (vs *VectorStore) Query(ctx context.Context, values []float32, topK int) ([]models.RetrievalMatch, error) {
	if topK <= 0 {
		topK = 8
	}

	query := fmt.Sprintf(`
		SELECT id, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		vs.table)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(values), topK)
	if err != nil {
		return nil, apierr.New(apierr.UpstreamRetrievalFailure, fmt.Errorf("failed to query vectors: %w", err))
	}
	defer rows.Close()

	var matches []models.RetrievalMatch
	for rows.Next() {
		var (
			m   models.RetrievalMatch
			raw []byte
		)
		if err := rows.Scan(&m.ID, &raw, &m.Score); err != nil {
			return nil, apierr.New(apierr.UpstreamRetrievalFailure, fmt.Errorf("failed to scan row: %w", err))
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &m.Metadata); err != nil {
				return nil, apierr.New(apierr.UpstreamRetrievalFailure, fmt.Errorf("metadata of %s: %w", m.ID, err))
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.New(apierr.UpstreamRetrievalFailure, err)
	}

	return matches, nil
}

// Delete removes vectors whose metadata field is one of filter.Values.
func (vs *VectorStore) Delete(ctx context.Context, filter models.VectorFilter) error {
	if filter.Field == "" || len(filter.Values) == 0 {
		return apierr.Errorf(apierr.UpstreamRetrievalFailure, "delete filter must name a field and at least one value")
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE metadata->>$1::text = ANY($2::text[])`, vs.table)
	tag, err := vs.pool.Exec(ctx, query, filter.Field, filter.Values)
	if err != nil {
		return apierr.New(apierr.UpstreamRetrievalFailure, fmt.Errorf("failed to delete vectors: %w", err))
	}
	vs.log.Info("deleted vectors", "field", filter.Field, "count", tag.RowsAffected())
	return nil
}

func (vs *VectorStore) Close() {
	if vs.owned && vs.pool != nil {
		vs.pool.Close()
	}
}
