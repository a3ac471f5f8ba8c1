package models

import (
	"database/sql"
	"time"
)

// Player is reference data keyed by the feed's player identifier. Team is the
// player's current team; historical membership lives in RosterEntry rows.
type Player struct {
	PlayerID      string         `db:"player_id"`
	FullName      string         `db:"full_name"`
	FirstName     sql.NullString `db:"first_name"`
	LastName      sql.NullString `db:"last_name"`
	Team          string         `db:"team"`
	Position      sql.NullString `db:"position"`
	Status        sql.NullString `db:"status"`
	UniformNumber sql.NullInt32  `db:"uniform_number"`
	Height        sql.NullInt32  `db:"height"`
	Weight        sql.NullInt32  `db:"weight"`
	College       sql.NullString `db:"college"`
	YearsPro      sql.NullInt32  `db:"years_pro"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// RosterEntry records a player's membership on a team for one season, so a
// player who changes teams keeps both memberships queryable.
type RosterEntry struct {
	SeasonYear int            `db:"season_year"`
	TeamID     string         `db:"team_id"`
	PlayerID   string         `db:"player_id"`
	Position   sql.NullString `db:"position"`
	UpdatedAt  time.Time      `db:"updated_at"`
}
