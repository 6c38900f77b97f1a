package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
)

// publicationSelectList is the column list for SELECT/RETURNING on publications (single source for schema changes)
const publicationSelectList = `id, content_id, agent_id, platform, status, scheduled_at,
			idempotency_key, retry_count, max_retries, error_message,
			next_retry_at, published_at, created_at, updated_at`

// Constraint names from migrations/000001_init.up.sql.
const (
	constraintIdempotencyKey = "publications_idempotency_key_uniq"
	constraintActivePlatform = "publications_active_content_platform_uniq"
)

// initialOutboxCapacity is a reasonable default for batch operations
const initialOutboxCapacity = 100

// PublicationRepository manages the publication outbox in PostgreSQL
type PublicationRepository struct {
	db *sqlx.DB
}

// NewPublicationRepository creates a new repository
func NewPublicationRepository(db *sqlx.DB) *PublicationRepository {
	return &PublicationRepository{db: db}
}

// Create inserts a publication. It returns domain.ErrIdempotencyConflict when
// the agent already used the idempotency key, and domain.ErrDuplicateActive
// when the content already has a live publication on the platform.
func (r *PublicationRepository) Create(ctx context.Context, p *domain.Publication) error {
	query := `
		INSERT INTO publications (
			id, content_id, agent_id, platform, status, scheduled_at,
			idempotency_key, max_retries
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		p.ID, p.ContentID, p.AgentID, p.Platform, p.Status, p.ScheduledAt,
		p.IdempotencyKey, p.MaxRetries,
	).Scan(&p.CreatedAt, &p.UpdatedAt)

	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, constraintIdempotencyKey):
		return domain.ErrIdempotencyConflict
	case isUniqueViolation(err, constraintActivePlatform):
		return domain.ErrDuplicateActive
	default:
		return fmt.Errorf("create publication: %w", err)
	}
}

// GetByID retrieves a single publication by ID
func (r *PublicationRepository) GetByID(ctx context.Context, id string) (*domain.Publication, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+publicationSelectList+` FROM publications WHERE id = $1`, id)
}

// GetByIdempotencyKey retrieves the publication an agent created with key.
func (r *PublicationRepository) GetByIdempotencyKey(ctx context.Context, agentID, key string) (*domain.Publication, error) {
	return r.getOne(ctx,
		`SELECT `+publicationSelectList+` FROM publications WHERE agent_id = $1 AND idempotency_key = $2`,
		agentID, key)
}

func (r *PublicationRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Publication, error) {
	var p domain.Publication
	err := r.db.GetContext(ctx, &p, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get publication: %w", err)
	}
	return &p, nil
}

// FetchDue claims queued and due scheduled publications.
// Uses FOR UPDATE SKIP LOCKED for concurrent worker safety.
func (r *PublicationRepository) FetchDue(ctx context.Context, limit int) ([]domain.Publication, error) {
	query := `
		UPDATE publications
		SET status = 'publishing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM publications
			WHERE status IN ('queued', 'scheduled')
			  AND (scheduled_at IS NULL OR scheduled_at <= NOW())
			ORDER BY COALESCE(scheduled_at, created_at) ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + publicationSelectList

	return r.claim(ctx, "fetch due", query, limit)
}

// FetchRetryable claims failed publications ready for retry
func (r *PublicationRepository) FetchRetryable(ctx context.Context, limit int) ([]domain.Publication, error) {
	query := `
		UPDATE publications
		SET status = 'publishing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM publications
			WHERE status = 'failed'
			  AND retry_count < max_retries
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY next_retry_at ASC NULLS FIRST
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + publicationSelectList

	return r.claim(ctx, "fetch retryable", query, limit)
}

func (r *PublicationRepository) claim(ctx context.Context, op, query string, limit int) ([]domain.Publication, error) {
	pubs := make([]domain.Publication, 0, min(limit, initialOutboxCapacity))
	if err := r.db.SelectContext(ctx, &pubs, query, limit); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pubs, nil
}

// execExpectOneRow runs an exec and returns domain.ErrNotFound when no row was affected
func (r *PublicationRepository) execExpectOneRow(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkPublished marks a publication as handed to the platform
func (r *PublicationRepository) MarkPublished(ctx context.Context, id string) error {
	query := `
		UPDATE publications
		SET status = 'published',
		    published_at = NOW(),
		    error_message = NULL,
		    updated_at = NOW()
		WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

// MarkFailed marks a publication as failed with retry scheduling
func (r *PublicationRepository) MarkFailed(ctx context.Context, id, errorMsg string) error {
	// Exponential backoff: 1min, 2min, 4min, 8min, 16min
	query := `
		UPDATE publications
		SET status = 'failed',
		    error_message = $2,
		    retry_count = retry_count + 1,
		    next_retry_at = NOW() + (INTERVAL '1 minute' * POWER(2, retry_count)),
		    updated_at = NOW()
		WHERE id = $1`
	if err := r.execExpectOneRow(ctx, query, id, errorMsg); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ResetStale moves publications stuck in "publishing" back to "queued".
// This handles rows that were claimed but the worker crashed before completing.
func (r *PublicationRepository) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE publications
		SET status = 'queued', updated_at = NOW()
		WHERE status = 'publishing'
		  AND updated_at < NOW() - $1::interval`

	result, err := r.db.ExecContext(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("reset stale: %w", err)
	}
	return result.RowsAffected()
}

// CleanupPublished removes old published rows
func (r *PublicationRepository) CleanupPublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM publications
		WHERE status = 'published'
		  AND published_at < NOW() - $1::interval`

	result, err := r.db.ExecContext(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("cleanup published: %w", err)
	}
	return result.RowsAffected()
}

// GetStats returns outbox statistics
func (r *PublicationRepository) GetStats(ctx context.Context) (*domain.OutboxStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'queued') as queued,
			COUNT(*) FILTER (WHERE status = 'scheduled') as scheduled,
			COUNT(*) FILTER (WHERE status = 'publishing') as publishing,
			COUNT(*) FILTER (WHERE status = 'published') as published,
			COUNT(*) FILTER (WHERE status = 'failed' AND retry_count < max_retries) as failed_retryable,
			COUNT(*) FILTER (WHERE status = 'failed' AND retry_count >= max_retries) as failed_exhausted
		FROM publications`

	var stats domain.OutboxStats
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.Queued,
		&stats.Scheduled,
		&stats.Publishing,
		&stats.Published,
		&stats.FailedRetryable,
		&stats.FailedExhausted,
	)
	if err != nil {
		return nil, fmt.Errorf("get outbox stats: %w", err)
	}
	return &stats, nil
}
