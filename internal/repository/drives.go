package repository

import (
	"context"
	"fmt"

	"gridirondb/internal/models"
)

// DriveRepository handles drive database operations
type DriveRepository struct {
	q Querier
}

// Upsert inserts or updates a drive keyed by (game, drive sequence).
func (r *DriveRepository) Upsert(ctx context.Context, drive *models.Drive) error {
	query := `
		INSERT INTO drives (
			game_id, drive_id, pos_team, start_field, end_field, result,
			play_count, yards_gained, first_downs
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (game_id, drive_id) DO UPDATE SET
			pos_team = EXCLUDED.pos_team,
			start_field = EXCLUDED.start_field,
			end_field = EXCLUDED.end_field,
			result = EXCLUDED.result,
			play_count = EXCLUDED.play_count,
			yards_gained = EXCLUDED.yards_gained,
			first_downs = EXCLUDED.first_downs,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRow(
		ctx, query,
		drive.GameID, drive.DriveID, drive.PosTeam, drive.StartField,
		drive.EndField, drive.Result, drive.PlayCount, drive.YardsGained,
		drive.FirstDowns,
	).Scan(&drive.CreatedAt, &drive.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert drive: %w", err)
	}

	return nil
}

// ListByGame retrieves a game's drives in possession order.
func (r *DriveRepository) ListByGame(ctx context.Context, gameID string) ([]*models.Drive, error) {
	query := `
		SELECT game_id, drive_id, pos_team, start_field, end_field, result,
		       play_count, yards_gained, first_downs, created_at, updated_at
		FROM drives
		WHERE game_id = $1
		ORDER BY drive_id
	`

	rows, err := r.q.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list drives: %w", err)
	}
	defer rows.Close()

	var drives []*models.Drive
	for rows.Next() {
		var drive models.Drive
		err := rows.Scan(
			&drive.GameID, &drive.DriveID, &drive.PosTeam, &drive.StartField,
			&drive.EndField, &drive.Result, &drive.PlayCount, &drive.YardsGained,
			&drive.FirstDowns, &drive.CreatedAt, &drive.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan drive: %w", err)
		}
		drives = append(drives, &drive)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drives: %w", err)
	}

	return drives, nil
}
