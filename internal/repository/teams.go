package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gridirondb/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// TeamRepository handles team database operations
type TeamRepository struct {
	q Querier
}

// Upsert inserts or updates a team keyed by its abbreviation.
func (r *TeamRepository) Upsert(ctx context.Context, team *models.Team) error {
	query := `
		INSERT INTO teams (team_id, city, name, conference, division)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (team_id) DO UPDATE SET
			city = EXCLUDED.city,
			name = EXCLUDED.name,
			conference = EXCLUDED.conference,
			division = EXCLUDED.division,
			updated_at = NOW()
		RETURNING roster_refreshed_at, created_at, updated_at
	`

	err := r.q.QueryRow(
		ctx, query,
		team.TeamID, team.City, team.Name, team.Conference, team.Division,
	).Scan(&team.RosterRefreshedAt, &team.CreatedAt, &team.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert team: %w", err)
	}

	return nil
}

// EnsureExists inserts a minimal row for a team first seen in game data, so
// foreign keys hold before the next roster refresh fills in the details.
func (r *TeamRepository) EnsureExists(ctx context.Context, teamID string) error {
	query := `
		INSERT INTO teams (team_id, city, name)
		VALUES ($1, '', $1)
		ON CONFLICT (team_id) DO NOTHING
	`

	if _, err := r.q.Exec(ctx, query, teamID); err != nil {
		return fmt.Errorf("failed to ensure team %s: %w", teamID, err)
	}

	return nil
}

// Get retrieves a team by its abbreviation.
func (r *TeamRepository) Get(ctx context.Context, teamID string) (*models.Team, error) {
	query := `
		SELECT team_id, city, name, conference, division, roster_refreshed_at,
		       created_at, updated_at
		FROM teams
		WHERE team_id = $1
	`

	var team models.Team
	err := r.q.QueryRow(ctx, query, teamID).Scan(
		&team.TeamID, &team.City, &team.Name, &team.Conference, &team.Division,
		&team.RosterRefreshedAt, &team.CreatedAt, &team.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("team not found: %s", teamID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}

	return &team, nil
}

// List retrieves all teams ordered by abbreviation.
func (r *TeamRepository) List(ctx context.Context) ([]*models.Team, error) {
	query := `
		SELECT team_id, city, name, conference, division, roster_refreshed_at,
		       created_at, updated_at
		FROM teams
		ORDER BY team_id
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []*models.Team
	for rows.Next() {
		var team models.Team
		err := rows.Scan(
			&team.TeamID, &team.City, &team.Name, &team.Conference, &team.Division,
			&team.RosterRefreshedAt, &team.CreatedAt, &team.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, &team)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating teams: %w", err)
	}

	return teams, nil
}

// ListRosterDue retrieves teams whose last roster refresh is older than the
// interval, oldest first. Never-refreshed teams sort before all others.
func (r *TeamRepository) ListRosterDue(ctx context.Context, interval time.Duration) ([]*models.Team, error) {
	query := `
		SELECT team_id, city, name, conference, division, roster_refreshed_at,
		       created_at, updated_at
		FROM teams
		WHERE team_id <> 'UNK'
		  AND (roster_refreshed_at IS NULL OR roster_refreshed_at <= NOW() - make_interval(secs => $1))
		ORDER BY roster_refreshed_at ASC NULLS FIRST, team_id
	`

	rows, err := r.q.Query(ctx, query, interval.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to list roster-due teams: %w", err)
	}
	defer rows.Close()

	var teams []*models.Team
	for rows.Next() {
		var team models.Team
		err := rows.Scan(
			&team.TeamID, &team.City, &team.Name, &team.Conference, &team.Division,
			&team.RosterRefreshedAt, &team.CreatedAt, &team.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, &team)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating teams: %w", err)
	}

	log.Debug().Int("count", len(teams)).Msg("Retrieved roster-due teams")
	return teams, nil
}

// TouchRosterRefreshed stamps a successful roster refresh for the team. Runs
// inside the refresh transaction so the stamp commits with the roster rows.
func (r *TeamRepository) TouchRosterRefreshed(ctx context.Context, teamID string, at time.Time) error {
	query := `
		UPDATE teams
		SET roster_refreshed_at = $1, updated_at = NOW()
		WHERE team_id = $2
	`

	result, err := r.q.Exec(ctx, query, at, teamID)
	if err != nil {
		return fmt.Errorf("failed to stamp roster refresh: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("team not found: %s", teamID)
	}

	return nil
}
