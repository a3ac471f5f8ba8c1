package repository

import (
	"context"
	"fmt"

	"gridirondb/internal/models"

	"github.com/jackc/pgx/v5"
)

// PlayRepository handles play database operations
type PlayRepository struct {
	q Querier
}

// Upsert inserts or updates a play keyed by (game, play sequence). The update
// arm is what makes feed corrections land: a changed content hash rewrites the
// row in place without disturbing its key.
func (r *PlayRepository) Upsert(ctx context.Context, play *models.Play) error {
	query := `
		INSERT INTO plays (
			game_id, play_id, drive_id, quarter, pos_team, down,
			yards_to_go, yardline, note, description, content_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (game_id, play_id) DO UPDATE SET
			drive_id = EXCLUDED.drive_id,
			quarter = EXCLUDED.quarter,
			pos_team = EXCLUDED.pos_team,
			down = EXCLUDED.down,
			yards_to_go = EXCLUDED.yards_to_go,
			yardline = EXCLUDED.yardline,
			note = EXCLUDED.note,
			description = EXCLUDED.description,
			content_hash = EXCLUDED.content_hash,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRow(
		ctx, query,
		play.GameID, play.PlayID, play.DriveID, play.Quarter, play.PosTeam,
		play.Down, play.YardsToGo, play.Yardline, play.Note, play.Description,
		play.ContentHash,
	).Scan(&play.CreatedAt, &play.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert play: %w", err)
	}

	return nil
}

// CopyInsert bulk-loads plays for a game with no existing rows. Much faster
// than per-row upserts for historical backfill; it must not be used on a game
// that may already have any of these plays.
func (r *PlayRepository) CopyInsert(ctx context.Context, plays []*models.Play) (int64, error) {
	if len(plays) == 0 {
		return 0, nil
	}

	columns := []string{
		"game_id", "play_id", "drive_id", "quarter", "pos_team", "down",
		"yards_to_go", "yardline", "note", "description", "content_hash",
	}

	n, err := r.q.CopyFrom(
		ctx,
		pgx.Identifier{"plays"},
		columns,
		pgx.CopyFromSlice(len(plays), func(i int) ([]any, error) {
			p := plays[i]
			return []any{
				p.GameID, p.PlayID, p.DriveID, p.Quarter, p.PosTeam, p.Down,
				p.YardsToGo, p.Yardline, p.Note, p.Description, p.ContentHash,
			}, nil
		}),
	)
	if err != nil {
		return n, fmt.Errorf("failed to bulk insert plays: %w", err)
	}

	return n, nil
}

// ListByGame retrieves a game's plays in sequence order.
func (r *PlayRepository) ListByGame(ctx context.Context, gameID string) ([]*models.Play, error) {
	query := `
		SELECT game_id, play_id, drive_id, quarter, pos_team, down,
		       yards_to_go, yardline, note, description, content_hash,
		       created_at, updated_at
		FROM plays
		WHERE game_id = $1
		ORDER BY play_id
	`

	rows, err := r.q.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plays: %w", err)
	}
	defer rows.Close()

	var plays []*models.Play
	for rows.Next() {
		var play models.Play
		err := rows.Scan(
			&play.GameID, &play.PlayID, &play.DriveID, &play.Quarter, &play.PosTeam,
			&play.Down, &play.YardsToGo, &play.Yardline, &play.Note, &play.Description,
			&play.ContentHash, &play.CreatedAt, &play.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan play: %w", err)
		}
		plays = append(plays, &play)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plays: %w", err)
	}

	return plays, nil
}

// HashesByGame retrieves the content hash of every committed play for a game,
// keyed by play sequence. The poll path diffs feed snapshots against this map
// instead of reloading full play rows.
func (r *PlayRepository) HashesByGame(ctx context.Context, gameID string) (map[int]string, error) {
	query := `
		SELECT play_id, content_hash
		FROM plays
		WHERE game_id = $1
	`

	rows, err := r.q.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query play hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[int]string)
	for rows.Next() {
		var playID int
		var hash string
		if err := rows.Scan(&playID, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan play hash: %w", err)
		}
		hashes[playID] = hash
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating play hashes: %w", err)
	}

	return hashes, nil
}
