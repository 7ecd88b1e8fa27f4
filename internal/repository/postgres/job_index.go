package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/repository"
)

// Ensure pgJobIndex implements repository.JobIndex.
var _ repository.JobIndex = (*pgJobIndex)(nil)

const jobsTable = "frame_jobs"

// schema is applied by EnsureSchema on startup.
const schema = `
CREATE TABLE IF NOT EXISTS frame_jobs (
	id          TEXT PRIMARY KEY,
	source_url  TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	frame_count INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS frame_jobs_updated_at_idx ON frame_jobs (updated_at DESC);`

// DBTX is the subset of *pgxpool.Pool the index uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type pgJobIndex struct {
	db  DBTX
	now func() time.Time
}

// NewPostgresJobIndex creates a new PostgreSQL-backed job index.
func NewPostgresJobIndex(db DBTX) repository.JobIndex {
	return &pgJobIndex{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureSchema creates the jobs table if it does not exist.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

func upsertQuery(rec *domain.JobRecord, now time.Time) (string, []any, error) {
	return psql.Insert(jobsTable).
		Columns("id", "source_url", "title", "status", "detail", "frame_count", "created_at", "updated_at").
		Values(rec.ID, rec.SourceURL, rec.Title, string(rec.Status), rec.Detail, rec.FrameCount, now, now).
		Suffix("ON CONFLICT (id) DO UPDATE SET source_url = EXCLUDED.source_url, status = EXCLUDED.status, detail = EXCLUDED.detail, updated_at = EXCLUDED.updated_at").
		ToSql()
}

func updateStatusQuery(id string, status domain.Status, title string, frameCount int, now time.Time) (string, []any, error) {
	q := psql.Update(jobsTable).
		Set("status", string(status.State)).
		Set("detail", status.Detail).
		Set("updated_at", now).
		Where(sq.Eq{"id": id})
	if title != "" {
		q = q.Set("title", title)
	}
	if frameCount > 0 {
		q = q.Set("frame_count", frameCount)
	}
	return q.ToSql()
}

func getByIDQuery(id string) (string, []any, error) {
	return psql.Select("id", "source_url", "title", "status", "detail", "frame_count", "created_at", "updated_at").
		From(jobsTable).
		Where(sq.Eq{"id": id}).
		ToSql()
}

func (r *pgJobIndex) Upsert(ctx context.Context, rec *domain.JobRecord) error {
	now := r.now()
	query, args, err := upsertQuery(rec, now)
	if err != nil {
		return fmt.Errorf("postgres: build upsert: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: upsert job: %w", err)
	}
	rec.UpdatedAt = now
	return nil
}

func (r *pgJobIndex) UpdateStatus(ctx context.Context, id string, status domain.Status, title string, frameCount int) error {
	query, args, err := updateStatusQuery(id, status, title, frameCount, r.now())
	if err != nil {
		return fmt.Errorf("postgres: build update: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *pgJobIndex) GetByID(ctx context.Context, id string) (*domain.JobRecord, error) {
	query, args, err := getByIDQuery(id)
	if err != nil {
		return nil, fmt.Errorf("postgres: build select: %w", err)
	}

	rec := &domain.JobRecord{}
	var status string
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&rec.ID, &rec.SourceURL, &rec.Title, &status, &rec.Detail,
		&rec.FrameCount, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("postgres: get job by id: %w", err)
	}
	rec.Status = domain.JobState(status)
	return rec, nil
}
