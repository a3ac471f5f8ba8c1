package models

import (
	"database/sql"
	"fmt"
	"time"
)

// Play is one play in a game. PlayID is the feed's sequence number: unique
// within the game and strictly increasing in feed arrival order, but not
// necessarily dense. ContentHash fingerprints the feed content of the play so
// upstream corrections to already-committed plays can be detected cheaply.
type Play struct {
	GameID  string `db:"game_id"`
	PlayID  int    `db:"play_id"`
	DriveID int    `db:"drive_id"`

	Quarter   int            `db:"quarter"`
	PosTeam   string         `db:"pos_team"`
	Down      sql.NullInt32  `db:"down"`
	YardsToGo sql.NullInt32  `db:"yards_to_go"`
	Yardline  sql.NullInt32  `db:"yardline"`
	Note      sql.NullString `db:"note"`

	Description string `db:"description"`
	ContentHash string `db:"content_hash"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// FormatFieldOffset renders a field position stored as an offset from
// midfield (-50 own goal line, +50 opponent goal line).
func FormatFieldOffset(offset int) string {
	switch {
	case offset < 0:
		return fmt.Sprintf("OWN %d", 50+offset)
	case offset > 0:
		return fmt.Sprintf("OPP %d", 50-offset)
	}
	return "MIDFIELD"
}
