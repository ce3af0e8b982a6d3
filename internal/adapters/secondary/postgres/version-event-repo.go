package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"model-repository-service/internal/core/domain"
	ports "model-repository-service/internal/core/ports/output"
)

const schema = `
	CREATE TABLE IF NOT EXISTS version_event (
		id         UUID PRIMARY KEY,
		endpoint   TEXT NOT NULL,
		version    INTEGER NOT NULL,
		action     TEXT NOT NULL,
		message    TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS version_event_endpoint_idx
		ON version_event (endpoint, created_at);
`

// querier is the subset of pgxpool.Pool the catalog needs.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type versionEventRepo struct {
	db querier
}

func NewVersionCatalog(pool *pgxpool.Pool) ports.VersionCatalog {
	return &versionEventRepo{db: pool}
}

// EnsureSchema creates the version_event table when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure catalog schema: %w", err)
	}
	return nil
}

func (r *versionEventRepo) Record(ctx context.Context, event *domain.VersionEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	query := `
		INSERT INTO version_event (id, endpoint, version, action, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		event.ID, event.Endpoint, event.Version,
		string(event.Action), event.Message, event.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: event %s already recorded", domain.ErrConflict, event.ID)
		}
		return fmt.Errorf("record version event: %w", err)
	}
	return nil
}

func (r *versionEventRepo) History(ctx context.Context, endpoint string) ([]*domain.VersionEvent, error) {
	query := `
		SELECT id, endpoint, version, action, message, created_at
		FROM version_event
		WHERE endpoint = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, endpoint)
	if err != nil {
		return nil, fmt.Errorf("query version history: %w", err)
	}
	defer rows.Close()

	events := []*domain.VersionEvent{}
	for rows.Next() {
		var e domain.VersionEvent
		var action string
		if err := rows.Scan(&e.ID, &e.Endpoint, &e.Version, &action, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version event: %w", err)
		}
		e.Action = domain.VersionAction(action)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate version history: %w", err)
	}
	return events, nil
}
