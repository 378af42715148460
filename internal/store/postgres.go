package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	sqlCreateTable = `
        CREATE TABLE IF NOT EXISTS surfer_runs (
            run_key    TEXT PRIMARY KEY,
            version    BIGINT NOT NULL,
            state      JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );
    `
	sqlLoadRun = `
        SELECT version, state, updated_at
        FROM surfer_runs
        WHERE run_key = $1;
    `
	sqlCreateRun = `
        INSERT INTO surfer_runs (run_key, version, state, updated_at)
        VALUES ($1, 1, $2::jsonb, $3)
        ON CONFLICT (run_key) DO UPDATE SET
            version = 1,
            state = EXCLUDED.state,
            updated_at = EXCLUDED.updated_at;
    `
	// jsonb || replaces top-level keys, which matches RunPatch granularity.
	sqlSaveRun = `
        UPDATE surfer_runs
        SET state = state || $2::jsonb,
            version = version + 1,
            updated_at = $3
        WHERE run_key = $1
        RETURNING version, state, updated_at;
    `
	sqlClearRun = `
        DELETE FROM surfer_runs
        WHERE run_key = $1;
    `
)

// Postgres stores the run as a JSONB document keyed by run key, so that
// separate processes (the loop and the abort command) share it.
type Postgres struct {
	pool DBPool
	key  string
	log  *zap.Logger
}

// NewPostgres verifies the connection and ensures the table exists.
func NewPostgres(ctx context.Context, pool DBPool, key string, logger *zap.Logger) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateTable); err != nil {
		return nil, fmt.Errorf("failed to create runs table: %w", err)
	}
	if key == "" {
		key = "default"
	}
	return &Postgres{
		pool: pool,
		key:  key,
		log:  logger.Named("store").With(zap.String("run_key", key)),
	}, nil
}

func (p *Postgres) Load(ctx context.Context) (*schemas.RunRecord, error) {
	rec, err := p.scan(p.pool.QueryRow(ctx, sqlLoadRun, p.key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return rec, nil
}

func (p *Postgres) Create(ctx context.Context, rec schemas.RunRecord) error {
	state, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	if _, err := p.pool.Exec(ctx, sqlCreateRun, p.key, string(state), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	p.log.Debug("Run created.", zap.String("working_context_id", rec.WorkingContextID))
	return nil
}

func (p *Postgres) Save(ctx context.Context, patch schemas.RunPatch) (*schemas.RunRecord, error) {
	delta, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode patch: %w", err)
	}
	rec, err := p.scan(p.pool.QueryRow(ctx, sqlSaveRun, p.key, string(delta), time.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActiveRun
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}
	return rec, nil
}

func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, sqlClearRun, p.key); err != nil {
		return fmt.Errorf("failed to clear run: %w", err)
	}
	return nil
}

func (p *Postgres) scan(row pgx.Row) (*schemas.RunRecord, error) {
	var (
		version   int64
		state     []byte
		updatedAt time.Time
	)
	if err := row.Scan(&version, &state, &updatedAt); err != nil {
		return nil, err
	}
	var rec schemas.RunRecord
	if err := json.Unmarshal(state, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode run state: %w", err)
	}
	rec.Version = version
	rec.UpdatedAt = updatedAt
	return &rec, nil
}
