package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/config"
)

// ErrNoActiveRun is returned by Save when there is no run to patch.
var ErrNoActiveRun = errors.New("store: no active run")

// Store persists the single active run record under a key.
type Store interface {
	// Load returns nil and no error when there is no active run.
	Load(ctx context.Context) (*schemas.RunRecord, error)
	// Create replaces any existing run with rec.
	Create(ctx context.Context, rec schemas.RunRecord) error
	// Save merges patch into the active run, bumps its version and returns
	// the merged record.
	Save(ctx context.Context, patch schemas.RunPatch) (*schemas.RunRecord, error)
	Clear(ctx context.Context) error
}

// Open builds the store selected by cfg. The returned close function
// releases any connections and is never nil.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, func(), error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemory(), func() {}, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		pg, err := NewPostgres(ctx, pool, cfg.RunKey, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

// Memory keeps the run in process. It backs tests and single-process runs.
type Memory struct {
	mu  sync.Mutex
	rec *schemas.RunRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(ctx context.Context) (*schemas.RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil, nil
	}
	c := m.rec.Clone()
	return &c, nil
}

func (m *Memory) Create(ctx context.Context, rec schemas.RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := rec.Clone()
	c.Version = 1
	c.UpdatedAt = time.Now().UTC()
	m.rec = &c
	return nil
}

func (m *Memory) Save(ctx context.Context, patch schemas.RunPatch) (*schemas.RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil, ErrNoActiveRun
	}
	patch.Apply(m.rec)
	m.rec.Version++
	m.rec.UpdatedAt = time.Now().UTC()
	c := m.rec.Clone()
	return &c, nil
}

func (m *Memory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.rec = nil
	m.mu.Unlock()
	return nil
}
