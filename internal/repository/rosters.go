package repository

import (
	"context"
	"fmt"

	"gridirondb/internal/models"
)

// RosterRepository handles time-scoped roster membership rows.
type RosterRepository struct {
	q Querier
}

// Upsert records a player's membership on a team for a season.
func (r *RosterRepository) Upsert(ctx context.Context, entry *models.RosterEntry) error {
	query := `
		INSERT INTO rosters (season_year, team_id, player_id, position)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (season_year, team_id, player_id) DO UPDATE SET
			position = EXCLUDED.position,
			updated_at = NOW()
		RETURNING updated_at
	`

	err := r.q.QueryRow(
		ctx, query,
		entry.SeasonYear, entry.TeamID, entry.PlayerID, entry.Position,
	).Scan(&entry.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert roster entry: %w", err)
	}

	return nil
}

// ListByTeam retrieves a team's roster for one season.
func (r *RosterRepository) ListByTeam(ctx context.Context, seasonYear int, teamID string) ([]*models.RosterEntry, error) {
	query := `
		SELECT season_year, team_id, player_id, position, updated_at
		FROM rosters
		WHERE season_year = $1 AND team_id = $2
		ORDER BY player_id
	`

	rows, err := r.q.Query(ctx, query, seasonYear, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roster: %w", err)
	}
	defer rows.Close()

	var entries []*models.RosterEntry
	for rows.Next() {
		var entry models.RosterEntry
		err := rows.Scan(
			&entry.SeasonYear, &entry.TeamID, &entry.PlayerID, &entry.Position,
			&entry.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan roster entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roster entries: %w", err)
	}

	return entries, nil
}

// ListByPlayer retrieves every season/team membership for a player, newest
// season first.
func (r *RosterRepository) ListByPlayer(ctx context.Context, playerID string) ([]*models.RosterEntry, error) {
	query := `
		SELECT season_year, team_id, player_id, position, updated_at
		FROM rosters
		WHERE player_id = $1
		ORDER BY season_year DESC, team_id
	`

	rows, err := r.q.Query(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roster entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.RosterEntry
	for rows.Next() {
		var entry models.RosterEntry
		err := rows.Scan(
			&entry.SeasonYear, &entry.TeamID, &entry.PlayerID, &entry.Position,
			&entry.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan roster entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roster entries: %w", err)
	}

	return entries, nil
}
