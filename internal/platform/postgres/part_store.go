package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/phrazzld/stockroom/internal/part"
	"github.com/phrazzld/stockroom/internal/platform/logger"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PartStore implements part.Store using PostgreSQL.
type PartStore struct {
	db DBTX
}

var _ part.Store = (*PartStore)(nil)

// NewPartStore creates a new PartStore.
func NewPartStore(db DBTX) *PartStore {
	return &PartStore{db: db}
}

// Get loads the record for id.
func (s *PartStore) Get(ctx context.Context, id string) (*part.Record, error) {
	const query = `
		SELECT id, enrichment, last_task_id, last_provider, partial, updated_at
		FROM parts
		WHERE id = $1
	`

	var (
		r   part.Record
		raw []byte
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &raw, &r.LastTaskID, &r.LastProvider, &r.Partial, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, part.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get part: %w", err)
	}
	if err := json.Unmarshal(raw, &r.Enrichment); err != nil {
		return nil, fmt.Errorf("failed to decode part enrichment: %w", err)
	}
	return &r, nil
}

// MergeEnrichment upserts the record, merging artifacts with the jsonb
// concatenation operator so capabilities not in e keep their prior values.
func (s *PartStore) MergeEnrichment(ctx context.Context, id string, e part.Enrichment) error {
	const query = `
		INSERT INTO parts (id, enrichment, last_task_id, last_provider, partial, updated_at)
		VALUES ($1, $2::jsonb, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			enrichment    = parts.enrichment || EXCLUDED.enrichment,
			last_task_id  = EXCLUDED.last_task_id,
			last_provider = EXCLUDED.last_provider,
			partial       = EXCLUDED.partial,
			updated_at    = EXCLUDED.updated_at
	`

	artifacts := e.Artifacts
	if artifacts == nil {
		artifacts = map[string]any{}
	}
	raw, err := json.Marshal(artifacts)
	if err != nil {
		return fmt.Errorf("failed to encode part enrichment: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, id, string(raw), e.TaskID, e.Provider, e.Partial); err != nil {
		logger.FromContextOrDefault(ctx).Error("failed to merge part enrichment",
			"part_id", id,
			"task_id", e.TaskID,
			"error", err)
		return fmt.Errorf("failed to merge part enrichment: %w", err)
	}
	return nil
}
