package database_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/chimera/internal/database"
	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
)

const testPublicationID = "c1d2e3f4-0000-4a4a-8b8b-123456789abc"

var publicationColumns = []string{
	"id", "content_id", "agent_id", "platform", "status", "scheduled_at",
	"idempotency_key", "retry_count", "max_retries", "error_message",
	"next_retry_at", "published_at", "created_at", "updated_at",
}

func publicationRows(status domain.PublicationStatus, ids ...string) *sqlmock.Rows {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(publicationColumns)
	for _, id := range ids {
		rows.AddRow(id, testDraftID, "agent-7", "tiktok", string(status), nil,
			"key-1", 0, 5, nil, nil, nil, now, now)
	}
	return rows
}

func TestPublicationRepository_Create(t *testing.T) {
	t.Parallel()

	key := "key-1"
	newPub := func() *domain.Publication {
		return &domain.Publication{
			ID: testPublicationID, ContentID: testDraftID, AgentID: "agent-7",
			Platform: "tiktok", Status: domain.PublicationQueued,
			IdempotencyKey: &key, MaxRetries: domain.DefaultPublicationMaxRetries,
		}
	}

	testCases := []struct {
		name    string
		dbErr   error
		wantErr error
	}{
		{name: "inserted"},
		{
			name:    "idempotency key taken",
			dbErr:   &pq.Error{Code: "23505", Constraint: "publications_idempotency_key_uniq"},
			wantErr: domain.ErrIdempotencyConflict,
		},
		{
			name:    "active publication exists",
			dbErr:   &pq.Error{Code: "23505", Constraint: "publications_active_content_platform_uniq"},
			wantErr: domain.ErrDuplicateActive,
		},
		{
			name:  "connection lost",
			dbErr: sql.ErrConnDone,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			db, mock := newMockDB(t)
			exp := mock.ExpectQuery("INSERT INTO publications").
				WithArgs(testPublicationID, testDraftID, "agent-7", "tiktok", "queued", nil, key, 5)
			if tc.dbErr != nil {
				exp.WillReturnError(tc.dbErr)
			} else {
				now := time.Now()
				exp.WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
			}

			err := database.NewPublicationRepository(db).Create(context.Background(), newPub())
			switch {
			case tc.wantErr != nil:
				require.ErrorIs(t, err, tc.wantErr)
			case tc.dbErr != nil:
				require.ErrorIs(t, err, tc.dbErr)
				assert.False(t, errors.Is(err, domain.ErrDuplicateActive))
			default:
				require.NoError(t, err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPublicationRepository_GetByIdempotencyKey(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := database.NewPublicationRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM publications WHERE agent_id").
		WithArgs("agent-7", "key-1").
		WillReturnRows(publicationRows(domain.PublicationQueued, testPublicationID))
	mock.ExpectQuery("SELECT (.+) FROM publications WHERE agent_id").
		WithArgs("agent-7", "key-2").
		WillReturnError(sql.ErrNoRows)

	p, err := repo.GetByIdempotencyKey(context.Background(), "agent-7", "key-1")
	require.NoError(t, err)
	assert.Equal(t, testPublicationID, p.ID)
	assert.Equal(t, "key-1", *p.IdempotencyKey)

	_, err = repo.GetByIdempotencyKey(context.Background(), "agent-7", "key-2")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublicationRepository_GetByID_NotUUID(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	_, err := database.NewPublicationRepository(db).GetByID(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublicationRepository_FetchDue(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	mock.ExpectQuery(`UPDATE publications\s+SET status = 'publishing'(.+)status IN \('queued', 'scheduled'\)(.+)FOR UPDATE SKIP LOCKED`).
		WithArgs(10).
		WillReturnRows(publicationRows(domain.PublicationPublishing, testPublicationID, "d1d2e3f4-0000-4a4a-8b8b-123456789abc"))

	pubs, err := database.NewPublicationRepository(db).FetchDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pubs, 2)
	assert.Equal(t, domain.PublicationPublishing, pubs[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublicationRepository_FetchRetryable(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	mock.ExpectQuery(`UPDATE publications(.+)retry_count < max_retries`).
		WithArgs(5).
		WillReturnError(sql.ErrConnDone)

	_, err := database.NewPublicationRepository(db).FetchRetryable(context.Background(), 5)
	require.ErrorIs(t, err, sql.ErrConnDone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublicationRepository_MarkPublished(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		wantErr   bool
		notFound  bool
	}{
		{
			name: "successfully marks publication as published",
			setupMock: func(m sqlmock.Sqlmock) {
				m.ExpectExec("UPDATE publications").
					WithArgs(testPublicationID).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "publication not found returns error",
			setupMock: func(m sqlmock.Sqlmock) {
				m.ExpectExec("UPDATE publications").
					WithArgs(testPublicationID).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr:  true,
			notFound: true,
		},
		{
			name: "database error returns error",
			setupMock: func(m sqlmock.Sqlmock) {
				m.ExpectExec("UPDATE publications").
					WithArgs(testPublicationID).
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			db, mock := newMockDB(t)
			tc.setupMock(mock)

			err := database.NewPublicationRepository(db).MarkPublished(context.Background(), testPublicationID)
			assert.Equal(t, tc.wantErr, err != nil)
			assert.Equal(t, tc.notFound, errors.Is(err, domain.ErrNotFound))
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPublicationRepository_MarkFailed(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	mock.ExpectExec(`UPDATE publications\s+SET status = 'failed'(.+)POWER\(2, retry_count\)`).
		WithArgs(testPublicationID, "redis publish: connection refused").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := database.NewPublicationRepository(db).MarkFailed(context.Background(), testPublicationID, "redis publish: connection refused")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublicationRepository_ResetStale(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	mock.ExpectExec(`UPDATE publications\s+SET status = 'queued'`).
		WithArgs("5m0s").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := database.NewPublicationRepository(db).ResetStale(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublicationRepository_CleanupPublished(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	mock.ExpectExec("DELETE FROM publications").
		WithArgs("168h0m0s").
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := database.NewPublicationRepository(db).CleanupPublished(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublicationRepository_GetStats(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT(.+)FROM publications").
		WillReturnRows(sqlmock.NewRows([]string{
			"queued", "scheduled", "publishing", "published", "failed_retryable", "failed_exhausted",
		}).AddRow(4, 2, 1, 40, 3, 1))

	stats, err := database.NewPublicationRepository(db).GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Queued)
	assert.Equal(t, int64(1), stats.FailedExhausted)
	require.NoError(t, mock.ExpectationsWereMet())
}
