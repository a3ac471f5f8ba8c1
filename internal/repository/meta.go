package repository

import (
	"context"
	"fmt"

	"gridirondb/internal/models"
)

// MetaRepository handles the singleton bookkeeping row.
type MetaRepository struct {
	q Querier
}

// Get retrieves the meta row.
func (r *MetaRepository) Get(ctx context.Context) (*models.Meta, error) {
	query := `
		SELECT version, season_year, season_phase, week, updated_at
		FROM meta
	`

	var meta models.Meta
	err := r.q.QueryRow(ctx, query).Scan(
		&meta.Version, &meta.SeasonYear, &meta.SeasonPhase, &meta.Week, &meta.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get meta: %w", err)
	}

	return &meta, nil
}

// SetCurrent records the feed's current season position for schedule sync.
func (r *MetaRepository) SetCurrent(ctx context.Context, year int, phase models.SeasonPhase, week int) error {
	query := `
		UPDATE meta
		SET season_year = $1, season_phase = $2, week = $3, updated_at = NOW()
	`

	if _, err := r.q.Exec(ctx, query, year, string(phase), week); err != nil {
		return fmt.Errorf("failed to set current season: %w", err)
	}

	return nil
}
