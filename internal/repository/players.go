package repository

import (
	"context"
	"errors"
	"fmt"

	"gridirondb/internal/models"

	"github.com/jackc/pgx/v5"
)

// PlayerRepository handles player database operations
type PlayerRepository struct {
	q Querier
}

// Upsert inserts or updates a player keyed by the feed's player identifier.
func (r *PlayerRepository) Upsert(ctx context.Context, player *models.Player) error {
	query := `
		INSERT INTO players (
			player_id, full_name, first_name, last_name, team, position,
			status, uniform_number, height, weight, college, years_pro
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (player_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			team = EXCLUDED.team,
			position = EXCLUDED.position,
			status = EXCLUDED.status,
			uniform_number = EXCLUDED.uniform_number,
			height = EXCLUDED.height,
			weight = EXCLUDED.weight,
			college = EXCLUDED.college,
			years_pro = EXCLUDED.years_pro,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRow(
		ctx, query,
		player.PlayerID, player.FullName, player.FirstName, player.LastName,
		player.Team, player.Position, player.Status, player.UniformNumber,
		player.Height, player.Weight, player.College, player.YearsPro,
	).Scan(&player.CreatedAt, &player.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert player: %w", err)
	}

	return nil
}

// EnsureExists inserts a minimal row for a player first seen in play data.
// Existing rows are left alone; the roster refresh owns the full profile.
func (r *PlayerRepository) EnsureExists(ctx context.Context, playerID, fullName, team string) error {
	query := `
		INSERT INTO players (player_id, full_name, team)
		VALUES ($1, $2, $3)
		ON CONFLICT (player_id) DO NOTHING
	`

	if _, err := r.q.Exec(ctx, query, playerID, fullName, team); err != nil {
		return fmt.Errorf("failed to ensure player %s: %w", playerID, err)
	}

	return nil
}

// Get retrieves a player by identifier.
func (r *PlayerRepository) Get(ctx context.Context, playerID string) (*models.Player, error) {
	query := `
		SELECT player_id, full_name, first_name, last_name, team, position,
		       status, uniform_number, height, weight, college, years_pro,
		       created_at, updated_at
		FROM players
		WHERE player_id = $1
	`

	var player models.Player
	err := r.q.QueryRow(ctx, query, playerID).Scan(
		&player.PlayerID, &player.FullName, &player.FirstName, &player.LastName,
		&player.Team, &player.Position, &player.Status, &player.UniformNumber,
		&player.Height, &player.Weight, &player.College, &player.YearsPro,
		&player.CreatedAt, &player.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("player not found: %s", playerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	return &player, nil
}

// SearchByName retrieves players whose full name matches the pattern,
// case-insensitively. Useful for interactive lookups where only a partial
// name is known.
func (r *PlayerRepository) SearchByName(ctx context.Context, name string, limit int) ([]*models.Player, error) {
	query := `
		SELECT player_id, full_name, first_name, last_name, team, position,
		       status, uniform_number, height, weight, college, years_pro,
		       created_at, updated_at
		FROM players
		WHERE full_name ILIKE '%' || $1 || '%'
		ORDER BY full_name, player_id
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search players: %w", err)
	}
	defer rows.Close()

	var players []*models.Player
	for rows.Next() {
		var player models.Player
		err := rows.Scan(
			&player.PlayerID, &player.FullName, &player.FirstName, &player.LastName,
			&player.Team, &player.Position, &player.Status, &player.UniformNumber,
			&player.Height, &player.Weight, &player.College, &player.YearsPro,
			&player.CreatedAt, &player.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, &player)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating players: %w", err)
	}

	return players, nil
}
