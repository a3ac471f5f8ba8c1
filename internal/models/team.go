package models

import (
	"database/sql"
	"time"
)

// Team is reference data keyed by the feed's team abbreviation (e.g. "NE").
type Team struct {
	TeamID     string         `db:"team_id"`
	City       string         `db:"city"`
	Name       string         `db:"name"`
	Conference sql.NullString `db:"conference"`
	Division   sql.NullString `db:"division"`

	// RosterRefreshedAt is the per-team timestamp of the last successful
	// roster refresh. Null until the first refresh completes.
	RosterRefreshedAt sql.NullTime `db:"roster_refreshed_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// FullName returns the display name, e.g. "New England Patriots".
func (t *Team) FullName() string {
	if t.City == "" {
		return t.Name
	}
	return t.City + " " + t.Name
}

// RosterDue reports whether the team's roster is stale relative to the given
// refresh interval. A team never refreshed is always due.
func (t *Team) RosterDue(now time.Time, interval time.Duration) bool {
	if !t.RosterRefreshedAt.Valid {
		return true
	}
	return now.Sub(t.RosterRefreshedAt.Time) >= interval
}
