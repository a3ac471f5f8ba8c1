package query

import "gridirondb/internal/models"

// table identifies which level of the game/drive/play/stat hierarchy a field
// lives on. The compiler partitions conditions by table to decide joins.
type table int

const (
	tableGames table = iota
	tableDrives
	tablePlays
	tableStats
)

func (t table) String() string {
	switch t {
	case tableGames:
		return "game"
	case tableDrives:
		return "drive"
	case tablePlays:
		return "play"
	case tableStats:
		return "stat"
	}
	return "unknown"
}

// Field is one member of the closed set of filterable and sortable columns.
// Conditions are built from fields, so an unknown column cannot be expressed
// at all and a misplaced one fails before any SQL runs.
type Field struct {
	name   string
	tbl    table
	column string

	// teamSplit marks the game "team" pseudo-field that matches either side.
	teamSplit bool

	// category is set for per-category stat fields, which compile to a
	// value comparison scoped to one category (row level) or to that
	// category's sum (aggregate level).
	category models.StatCategory
}

// Name returns the field's public column name.
func (f Field) Name() string { return f.name }

func (f Field) zero() bool { return f.name == "" }

// Game fields.
var (
	GameID        = Field{name: "game_id", tbl: tableGames, column: "games.game_id"}
	GameSeason    = Field{name: "season_year", tbl: tableGames, column: "games.season_year"}
	GamePhase     = Field{name: "season_phase", tbl: tableGames, column: "games.season_phase"}
	GameWeek      = Field{name: "week", tbl: tableGames, column: "games.week"}
	GameStart     = Field{name: "start_time", tbl: tableGames, column: "games.start_time"}
	GameHomeTeam  = Field{name: "home_team", tbl: tableGames, column: "games.home_team"}
	GameAwayTeam  = Field{name: "away_team", tbl: tableGames, column: "games.away_team"}
	GameHomeScore = Field{name: "home_score", tbl: tableGames, column: "games.home_score"}
	GameAwayScore = Field{name: "away_score", tbl: tableGames, column: "games.away_score"}
	GameStatus    = Field{name: "status", tbl: tableGames, column: "games.status"}

	// GameTeam matches games a team played on either side.
	GameTeam = Field{name: "team", tbl: tableGames, teamSplit: true}
)

// Drive fields.
var (
	DriveID          = Field{name: "drive_id", tbl: tableDrives, column: "drives.drive_id"}
	DrivePosTeam     = Field{name: "pos_team", tbl: tableDrives, column: "drives.pos_team"}
	DriveResult      = Field{name: "result", tbl: tableDrives, column: "drives.result"}
	DrivePlayCount   = Field{name: "play_count", tbl: tableDrives, column: "drives.play_count"}
	DriveYardsGained = Field{name: "yards_gained", tbl: tableDrives, column: "drives.yards_gained"}
	DriveFirstDowns  = Field{name: "first_downs", tbl: tableDrives, column: "drives.first_downs"}
)

// Play fields.
var (
	PlayID        = Field{name: "play_id", tbl: tablePlays, column: "plays.play_id"}
	PlayDrive     = Field{name: "drive_id", tbl: tablePlays, column: "plays.drive_id"}
	PlayQuarter   = Field{name: "quarter", tbl: tablePlays, column: "plays.quarter"}
	PlayPosTeam   = Field{name: "pos_team", tbl: tablePlays, column: "plays.pos_team"}
	PlayDown      = Field{name: "down", tbl: tablePlays, column: "plays.down"}
	PlayYardsToGo = Field{name: "yards_to_go", tbl: tablePlays, column: "plays.yards_to_go"}
	PlayYardline  = Field{name: "yardline", tbl: tablePlays, column: "plays.yardline"}
)

// Stat fields.
var (
	StatPlayer   = Field{name: "player_id", tbl: tableStats, column: "play_stats.player_id"}
	StatTeam     = Field{name: "team", tbl: tableStats, column: "play_stats.team"}
	StatCategory = Field{name: "category", tbl: tableStats, column: "play_stats.category"}
	StatValue    = Field{name: "value", tbl: tableStats, column: "play_stats.value"}
)

// Category returns the field for one stat category. At row level a condition
// on it matches events of that category by value; at aggregate level it
// addresses the category's per-player sum, which also makes it the sort key
// for aggregate results. A name outside models.StatCategories is rejected
// with ErrInvalidCriteria when the condition or sort is validated, so only
// members of the closed set ever reach the compiled SQL.
func Category(c models.StatCategory) Field {
	return Field{name: string(c), tbl: tableStats, category: c}
}
