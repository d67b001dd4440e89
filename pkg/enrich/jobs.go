package enrich

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/models"
	"github.com/incipit-labs/folio-engine/pkg/normalize"
)

// Job statuses.
const (
	JobPending = "pending"
	JobDone    = "done"
	JobFailed  = "failed"
)

// maxJobAttempts before a job is marked failed for good.
const maxJobAttempts = 3

// JobQueue is the bulk pre-enrichment queue. On-demand enrichment does not
// go through it; the worker drains it in the background.
type JobQueue struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewJobQueue wraps the enrichment database's job table.
func NewJobQueue(db *sql.DB, logger *zap.Logger) *JobQueue {
	return &JobQueue{db: db, logger: logger.Named("enrichjobs")}
}

// Enqueue adds a pending job; re-enqueueing an existing key is a no-op.
func (q *JobQueue) Enqueue(ctx context.Context, entityType models.EntityType, entityValue string) error {
	now := time.Now().UTC()
	if _, err := q.db.ExecContext(ctx,
		`INSERT INTO enrichment_jobs (entity_type, entity_value, normalized_key, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (entity_type, normalized_key) DO NOTHING`,
		string(entityType), entityValue, normalize.CleanKey(entityValue), JobPending, now, now); err != nil {
		return fmt.Errorf("enqueue enrichment job: %w", err)
	}
	return nil
}

type job struct {
	id          int64
	entityType  models.EntityType
	entityValue string
	attempts    int
}

func (q *JobQueue) nextPending(ctx context.Context) (*job, error) {
	var j job
	var typ string
	err := q.db.QueryRowContext(ctx,
		`SELECT id, entity_type, entity_value, attempts FROM enrichment_jobs
		 WHERE status = ? ORDER BY created_at LIMIT 1`, JobPending).
		Scan(&j.id, &typ, &j.entityValue, &j.attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next enrichment job: %w", err)
	}
	j.entityType = models.EntityType(typ)
	return &j, nil
}

func (q *JobQueue) finish(ctx context.Context, j *job, jobErr error) error {
	status := JobDone
	var lastError any
	attempts := j.attempts + 1
	if jobErr != nil {
		lastError = jobErr.Error()
		status = JobPending
		if attempts >= maxJobAttempts {
			status = JobFailed
		}
	}
	if _, err := q.db.ExecContext(ctx,
		`UPDATE enrichment_jobs SET status = ?, attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		status, attempts, lastError, time.Now().UTC(), j.id); err != nil {
		return fmt.Errorf("finish enrichment job: %w", err)
	}
	return nil
}

// RunWorker drains pending jobs through the enricher until the context is
// cancelled, idling between empty polls.
func (q *JobQueue) RunWorker(ctx context.Context, enricher *Enricher, idle time.Duration) {
	for {
		if ctx.Err() != nil {
			return
		}

		j, err := q.nextPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.Warn("Job poll failed", zap.Error(err))
		}
		if j == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idle):
			}
			continue
		}

		_, enrichErr := enricher.Enrich(ctx, j.entityType, j.entityValue, "")
		if err := q.finish(ctx, j, enrichErr); err != nil && ctx.Err() == nil {
			q.logger.Warn("Job completion update failed", zap.Error(err))
		}
	}
}
