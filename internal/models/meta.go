package models

import (
	"database/sql"
	"time"
)

// Meta is the singleton bookkeeping row: schema version for the migration
// runner and the feed's current position for schedule sync.
type Meta struct {
	Version     int            `db:"version"`
	SeasonYear  sql.NullInt32  `db:"season_year"`
	SeasonPhase sql.NullString `db:"season_phase"`
	Week        sql.NullInt32  `db:"week"`
	UpdatedAt   time.Time      `db:"updated_at"`
}
