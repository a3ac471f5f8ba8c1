package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Migrations are additive only: new tables, new optional columns. Historical
// rows must remain queryable without reprocessing. Each entry runs in its own
// transaction together with the version bump in meta.
//
// The statistics extension (play_stats) is deliberately the last migration so
// a deployment can stop one version short and run the game/drive/play core
// without per-player statistics.
var migrations = [][]string{
	// 1: bookkeeping and reference data
	{
		`CREATE TABLE meta (
			version SMALLINT NOT NULL,
			season_year SMALLINT,
			season_phase TEXT,
			week SMALLINT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`INSERT INTO meta (version) VALUES (0)`,
		`CREATE TABLE teams (
			team_id TEXT PRIMARY KEY,
			city TEXT NOT NULL,
			name TEXT NOT NULL,
			conference TEXT,
			division TEXT,
			roster_refreshed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`INSERT INTO teams (team_id, city, name) VALUES ('UNK', '', 'Unknown')`,
		`CREATE TABLE players (
			player_id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL,
			first_name TEXT,
			last_name TEXT,
			team TEXT NOT NULL REFERENCES teams (team_id),
			position TEXT,
			status TEXT,
			uniform_number SMALLINT,
			height SMALLINT,
			weight SMALLINT,
			college TEXT,
			years_pro SMALLINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX players_team_idx ON players (team)`,
		`CREATE TABLE rosters (
			season_year SMALLINT NOT NULL,
			team_id TEXT NOT NULL REFERENCES teams (team_id),
			player_id TEXT NOT NULL REFERENCES players (player_id),
			position TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (season_year, team_id, player_id)
		)`,
		`CREATE INDEX rosters_player_idx ON rosters (player_id)`,
	},
	// 2: game, drive and play core
	{
		`CREATE TABLE games (
			game_id TEXT PRIMARY KEY,
			season_year SMALLINT NOT NULL,
			season_phase TEXT NOT NULL,
			week SMALLINT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			home_team TEXT NOT NULL REFERENCES teams (team_id),
			away_team TEXT NOT NULL REFERENCES teams (team_id),
			home_score SMALLINT,
			away_score SMALLINT,
			status TEXT NOT NULL DEFAULT 'Scheduled',
			finalizing BOOLEAN NOT NULL DEFAULT FALSE,
			play_watermark INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX games_season_idx ON games (season_year, season_phase, week)`,
		`CREATE INDEX games_status_idx ON games (status)`,
		`CREATE TABLE drives (
			game_id TEXT NOT NULL REFERENCES games (game_id) ON DELETE CASCADE,
			drive_id SMALLINT NOT NULL,
			pos_team TEXT NOT NULL REFERENCES teams (team_id),
			start_field SMALLINT,
			end_field SMALLINT,
			result TEXT,
			play_count SMALLINT NOT NULL DEFAULT 0,
			yards_gained SMALLINT NOT NULL DEFAULT 0,
			first_downs SMALLINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (game_id, drive_id)
		)`,
		`CREATE TABLE plays (
			game_id TEXT NOT NULL REFERENCES games (game_id) ON DELETE CASCADE,
			play_id INTEGER NOT NULL,
			drive_id SMALLINT NOT NULL,
			quarter SMALLINT NOT NULL,
			pos_team TEXT NOT NULL REFERENCES teams (team_id),
			down SMALLINT,
			yards_to_go SMALLINT,
			yardline SMALLINT,
			note TEXT,
			description TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (game_id, play_id),
			FOREIGN KEY (game_id, drive_id) REFERENCES drives (game_id, drive_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX plays_drive_idx ON plays (game_id, drive_id)`,
	},
	// 3: statistics extension
	{
		`CREATE TABLE play_stats (
			game_id TEXT NOT NULL,
			play_id INTEGER NOT NULL,
			player_id TEXT NOT NULL REFERENCES players (player_id),
			team TEXT NOT NULL REFERENCES teams (team_id),
			category TEXT NOT NULL,
			value INTEGER NOT NULL,
			PRIMARY KEY (game_id, play_id, player_id, category),
			FOREIGN KEY (game_id, play_id) REFERENCES plays (game_id, play_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX play_stats_player_idx ON play_stats (player_id)`,
		`CREATE INDEX play_stats_game_idx ON play_stats (game_id)`,
	},
}

// statsExtensionVersion is the migration that creates play_stats. Deployments
// running without per-player statistics stop one version short of it.
const statsExtensionVersion = 3

// targetVersion picks how far Migrate goes. A database already past the target
// is never rolled back; migrations only ever move forward.
func targetVersion(withStats bool) int {
	if withStats {
		return len(migrations)
	}
	return statsExtensionVersion - 1
}

// Migrate brings the schema up to the target version, applying each pending
// migration atomically with its version bump. When withStats is false the
// statistics extension is left unapplied so the game/drive/play core runs
// without the play_stats table.
func (db *Database) Migrate(ctx context.Context, withStats bool) error {
	current, err := db.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for v := current; v < targetVersion(withStats); v++ {
		stmts := migrations[v]
		err := db.InTx(ctx, func(tx *Tx) error {
			for _, stmt := range stmts {
				if _, err := tx.tx.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d: %w", v+1, err)
				}
			}
			if _, err := tx.tx.Exec(ctx, `UPDATE meta SET version = $1, updated_at = NOW()`, v+1); err != nil {
				return fmt.Errorf("migration %d: failed to record version: %w", v+1, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		log.Info().Int("version", v+1).Msg("Applied schema migration")
	}

	return nil
}

// schemaVersion reads the current version, treating a missing meta table as a
// fresh database.
func (db *Database) schemaVersion(ctx context.Context) (int, error) {
	var v int
	err := db.Pool.QueryRow(ctx, `SELECT version FROM meta`).Scan(&v)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
			return 0, nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
