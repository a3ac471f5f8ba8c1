package models

import (
	"database/sql"
	"time"
)

// Drive is one possession within a game, ordered by DriveID. Summary fields
// come from the feed and are re-derivable from the drive's plays.
type Drive struct {
	GameID  string `db:"game_id"`
	DriveID int    `db:"drive_id"`
	PosTeam string `db:"pos_team"`

	StartField sql.NullInt32  `db:"start_field"`
	EndField   sql.NullInt32  `db:"end_field"`
	Result     sql.NullString `db:"result"`

	PlayCount   int `db:"play_count"`
	YardsGained int `db:"yards_gained"`
	FirstDowns  int `db:"first_downs"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// FieldSpan renders the drive's field progression, e.g. "OWN 20 to OPP 45".
// Missing endpoints render as "?".
func (d *Drive) FieldSpan() string {
	return fieldOrUnknown(d.StartField) + " to " + fieldOrUnknown(d.EndField)
}

func fieldOrUnknown(offset sql.NullInt32) string {
	if !offset.Valid {
		return "?"
	}
	return FormatFieldOffset(int(offset.Int32))
}
