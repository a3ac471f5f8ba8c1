package repository

import (
	"context"
	"errors"
	"fmt"

	"gridirondb/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

const gameColumns = `game_id, season_year, season_phase, week, start_time,
		       home_team, away_team, home_score, away_score, status,
		       finalizing, play_watermark, created_at, updated_at`

// GameRepository handles game database operations
type GameRepository struct {
	q Querier
}

func scanGame(row pgx.Row) (*models.Game, error) {
	var game models.Game
	err := row.Scan(
		&game.GameID, &game.SeasonYear, &game.SeasonPhase, &game.Week, &game.StartTime,
		&game.HomeTeam, &game.AwayTeam, &game.HomeScore, &game.AwayScore, &game.Status,
		&game.Finalizing, &game.PlayWatermark, &game.CreatedAt, &game.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &game, nil
}

func (r *GameRepository) list(ctx context.Context, query string, args ...any) ([]*models.Game, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %w", err)
	}
	defer rows.Close()

	var games []*models.Game
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, game)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}

	return games, nil
}

// UpsertSchedule inserts a game first seen in the feed's schedule, or updates
// its schedule fields. Status, scores and the play watermark are owned by the
// poll path and deliberately left untouched on conflict, so a stale schedule
// can never regress a live or finished game.
func (r *GameRepository) UpsertSchedule(ctx context.Context, game *models.Game) error {
	query := `
		INSERT INTO games (
			game_id, season_year, season_phase, week, start_time,
			home_team, away_team, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (game_id) DO UPDATE SET
			season_year = EXCLUDED.season_year,
			season_phase = EXCLUDED.season_phase,
			week = EXCLUDED.week,
			start_time = EXCLUDED.start_time,
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			updated_at = NOW()
		RETURNING status, finalizing, play_watermark, home_score, away_score,
		          created_at, updated_at
	`

	status := game.Status
	if status == "" {
		status = models.StatusScheduled
	}

	err := r.q.QueryRow(
		ctx, query,
		game.GameID, game.SeasonYear, string(game.SeasonPhase), game.Week, game.StartTime,
		game.HomeTeam, game.AwayTeam, string(status),
	).Scan(
		&game.Status, &game.Finalizing, &game.PlayWatermark,
		&game.HomeScore, &game.AwayScore, &game.CreatedAt, &game.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert game schedule: %w", err)
	}

	return nil
}

// Get retrieves a game by its feed identifier.
func (r *GameRepository) Get(ctx context.Context, gameID string) (*models.Game, error) {
	query := `
		SELECT ` + gameColumns + `
		FROM games
		WHERE game_id = $1
	`

	game, err := scanGame(r.q.QueryRow(ctx, query, gameID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("game not found: %s", gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	return game, nil
}

// ListTracked retrieves every game the pipeline still owes work: anything not
// yet Final, earliest kickoff first.
func (r *GameRepository) ListTracked(ctx context.Context) ([]*models.Game, error) {
	query := `
		SELECT ` + gameColumns + `
		FROM games
		WHERE status <> 'Final'
		ORDER BY start_time, game_id
	`

	games, err := r.list(ctx, query)
	if err != nil {
		return nil, err
	}

	log.Debug().Int("count", len(games)).Msg("Retrieved tracked games")
	return games, nil
}

// ListByWeek retrieves games for one season week.
func (r *GameRepository) ListByWeek(ctx context.Context, year int, phase models.SeasonPhase, week int) ([]*models.Game, error) {
	query := `
		SELECT ` + gameColumns + `
		FROM games
		WHERE season_year = $1 AND season_phase = $2 AND week = $3
		ORDER BY start_time, game_id
	`

	return r.list(ctx, query, year, string(phase), week)
}

// UpdateLive writes the poll path's view of a game: scores, status and the
// finalizing flag. Callers enforce forward-only status transitions.
func (r *GameRepository) UpdateLive(ctx context.Context, game *models.Game) error {
	query := `
		UPDATE games
		SET home_score = $1, away_score = $2, status = $3, finalizing = $4,
		    updated_at = NOW()
		WHERE game_id = $5
	`

	result, err := r.q.Exec(
		ctx, query,
		game.HomeScore, game.AwayScore, string(game.Status), game.Finalizing,
		game.GameID,
	)
	if err != nil {
		return fmt.Errorf("failed to update live game: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("game not found: %s", game.GameID)
	}

	return nil
}

// SetWatermark records the highest committed play sequence for a game. Runs
// inside the poll transaction so the watermark can never outrun its plays.
func (r *GameRepository) SetWatermark(ctx context.Context, gameID string, watermark int) error {
	query := `
		UPDATE games
		SET play_watermark = $1, updated_at = NOW()
		WHERE game_id = $2
	`

	result, err := r.q.Exec(ctx, query, watermark, gameID)
	if err != nil {
		return fmt.Errorf("failed to set watermark: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("game not found: %s", gameID)
	}

	return nil
}

// Count returns the total number of games
func (r *GameRepository) Count(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM games`

	var count int
	err := r.q.QueryRow(ctx, query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count games: %w", err)
	}

	return count, nil
}
