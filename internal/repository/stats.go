package repository

import (
	"context"
	"fmt"

	"gridirondb/internal/models"

	"github.com/jackc/pgx/v5"
)

// StatRepository handles per-play statistical events.
type StatRepository struct {
	q Querier
}

// Upsert inserts or updates one statistical event keyed by
// (game, play, player, category).
func (r *StatRepository) Upsert(ctx context.Context, stat *models.PlayStat) error {
	query := `
		INSERT INTO play_stats (game_id, play_id, player_id, team, category, value)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (game_id, play_id, player_id, category) DO UPDATE SET
			team = EXCLUDED.team,
			value = EXCLUDED.value
	`

	_, err := r.q.Exec(
		ctx, query,
		stat.GameID, stat.PlayID, stat.PlayerID, stat.Team, string(stat.Category), stat.Value,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert play stat: %w", err)
	}

	return nil
}

// DeleteByPlay removes every statistical event for one play. Used when a feed
// correction rewrites a play: the corrected snapshot may carry fewer events
// than the original, so upserts alone would leave orphans behind.
func (r *StatRepository) DeleteByPlay(ctx context.Context, gameID string, playID int) error {
	query := `
		DELETE FROM play_stats
		WHERE game_id = $1 AND play_id = $2
	`

	if _, err := r.q.Exec(ctx, query, gameID, playID); err != nil {
		return fmt.Errorf("failed to delete play stats: %w", err)
	}

	return nil
}

// CopyInsert bulk-loads statistical events for plays with no existing rows.
func (r *StatRepository) CopyInsert(ctx context.Context, stats []*models.PlayStat) (int64, error) {
	if len(stats) == 0 {
		return 0, nil
	}

	columns := []string{"game_id", "play_id", "player_id", "team", "category", "value"}

	n, err := r.q.CopyFrom(
		ctx,
		pgx.Identifier{"play_stats"},
		columns,
		pgx.CopyFromSlice(len(stats), func(i int) ([]any, error) {
			s := stats[i]
			return []any{
				s.GameID, s.PlayID, s.PlayerID, s.Team, string(s.Category), s.Value,
			}, nil
		}),
	)
	if err != nil {
		return n, fmt.Errorf("failed to bulk insert play stats: %w", err)
	}

	return n, nil
}

// ListByPlay retrieves the statistical events for one play in key order.
func (r *StatRepository) ListByPlay(ctx context.Context, gameID string, playID int) ([]*models.PlayStat, error) {
	query := `
		SELECT game_id, play_id, player_id, team, category, value
		FROM play_stats
		WHERE game_id = $1 AND play_id = $2
		ORDER BY player_id, category
	`

	return r.list(ctx, query, gameID, playID)
}

// ListByGame retrieves every statistical event for a game in key order.
func (r *StatRepository) ListByGame(ctx context.Context, gameID string) ([]*models.PlayStat, error) {
	query := `
		SELECT game_id, play_id, player_id, team, category, value
		FROM play_stats
		WHERE game_id = $1
		ORDER BY play_id, player_id, category
	`

	return r.list(ctx, query, gameID)
}

func (r *StatRepository) list(ctx context.Context, query string, args ...any) ([]*models.PlayStat, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query play stats: %w", err)
	}
	defer rows.Close()

	var stats []*models.PlayStat
	for rows.Next() {
		var stat models.PlayStat
		err := rows.Scan(
			&stat.GameID, &stat.PlayID, &stat.PlayerID, &stat.Team,
			&stat.Category, &stat.Value,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan play stat: %w", err)
		}
		stats = append(stats, &stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating play stats: %w", err)
	}

	return stats, nil
}
