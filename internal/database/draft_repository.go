package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
)

// draftSelectList is the column list for SELECT/RETURNING on content_drafts
const draftSelectList = `id, agent_id, slot_id, content_type, platform, topic,
			body_text, media_uri, metadata, context_refs, status,
			reviewer, review_notes, evaluated_at, created_at, updated_at`

const (
	defaultDraftListLimit = 50
	maxDraftListLimit     = 200
)

// DraftRepository stores generated drafts in PostgreSQL
type DraftRepository struct {
	db *sqlx.DB
}

// NewDraftRepository creates a new repository
func NewDraftRepository(db *sqlx.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

// Create inserts a draft and fills in its timestamps.
func (r *DraftRepository) Create(ctx context.Context, d *domain.Draft) error {
	query := `
		INSERT INTO content_drafts (
			id, agent_id, slot_id, content_type, platform, topic,
			body_text, media_uri, metadata, context_refs, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		d.ID, d.AgentID, d.SlotID, d.ContentType, d.Platform, d.Topic,
		d.BodyText, d.MediaURI, d.Metadata, d.ContextRefs, d.Status,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create draft: %w", err)
	}
	return nil
}

// GetByID retrieves a draft. Ids that are not UUIDs are reported as not found.
func (r *DraftRepository) GetByID(ctx context.Context, id string) (*domain.Draft, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}

	var d domain.Draft
	err := r.db.GetContext(ctx, &d, `SELECT `+draftSelectList+` FROM content_drafts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return &d, nil
}

// List returns drafts newest first.
func (r *DraftRepository) List(ctx context.Context, f domain.DraftFilter) ([]domain.Draft, error) {
	var (
		where []string
		args  []any
	)
	if f.AgentID != "" {
		args = append(args, f.AgentID)
		where = append(where, fmt.Sprintf("agent_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultDraftListLimit
	}
	limit = min(limit, maxDraftListLimit)
	args = append(args, limit, max(f.Offset, 0))

	query := `SELECT ` + draftSelectList + ` FROM content_drafts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	drafts := make([]domain.Draft, 0, limit)
	if err := r.db.SelectContext(ctx, &drafts, query, args...); err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	return drafts, nil
}

// Evaluate records a decision on a pending draft. It returns domain.ErrNotFound
// for unknown drafts and domain.ErrNotPending for drafts already evaluated.
func (r *DraftRepository) Evaluate(ctx context.Context, id string, e domain.Evaluation) (*domain.Draft, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}

	query := `
		UPDATE content_drafts
		SET status = $2,
		    reviewer = NULLIF($3, ''),
		    review_notes = NULLIF($4, ''),
		    evaluated_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending_evaluation'
		RETURNING ` + draftSelectList

	var d domain.Draft
	err := r.db.GetContext(ctx, &d, query, id, e.Decision, e.Reviewer, e.Notes)
	if err == nil {
		return &d, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("evaluate draft: %w", err)
	}

	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrNotPending
}
