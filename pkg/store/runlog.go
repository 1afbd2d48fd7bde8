package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eezybuild/eezybuild/internal/models"
)

// RunLog appends ingestion outcomes to building_regs_updates.
type RunLog struct {
	pool *pgxpool.Pool
}

func NewRunLog(pool *pgxpool.Pool) *RunLog {
	return &RunLog{pool: pool}
}

func (r *RunLog) Record(ctx context.Context, run models.IngestionRun) error {
	if run.UpdateDate.IsZero() {
		run.UpdateDate = time.Now().UTC()
	}
	var errMsg *string
	if run.ErrorMessage != "" {
		errMsg = &run.ErrorMessage
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO building_regs_updates
			(update_date, pages_crawled, chunks_processed, vectors_created, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.UpdateDate, run.PagesCrawled, run.ChunksProcessed, run.VectorsCreated, run.Status, errMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to record ingestion run: %w", err)
	}
	return nil
}
