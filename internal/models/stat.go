package models

import "fmt"

// StatCategory is the closed set of per-play statistical categories. Each
// value doubles as the column name exposed to the query layer, so renaming a
// category is a breaking schema change.
type StatCategory string

const (
	StatPassingAtt   StatCategory = "passing_att"
	StatPassingCmp   StatCategory = "passing_cmp"
	StatPassingYds   StatCategory = "passing_yds"
	StatPassingTDs   StatCategory = "passing_tds"
	StatPassingInt   StatCategory = "passing_int"
	StatRushingAtt   StatCategory = "rushing_att"
	StatRushingYds   StatCategory = "rushing_yds"
	StatRushingTDs   StatCategory = "rushing_tds"
	StatReceivingTar StatCategory = "receiving_tar"
	StatReceivingRec StatCategory = "receiving_rec"
	StatReceivingYds StatCategory = "receiving_yds"
	StatReceivingTDs StatCategory = "receiving_tds"
	StatFumblesLost  StatCategory = "fumbles_lost"
	StatDefenseTkl   StatCategory = "defense_tkl"
	StatDefenseSk    StatCategory = "defense_sk"
	StatDefenseInt   StatCategory = "defense_int"
	StatKickingFGM   StatCategory = "kicking_fgm"
	StatKickingFGA   StatCategory = "kicking_fga"
)

// StatCategories lists every category in stable column order. Aggregate-mode
// scans depend on this ordering.
var StatCategories = []StatCategory{
	StatPassingAtt, StatPassingCmp, StatPassingYds, StatPassingTDs, StatPassingInt,
	StatRushingAtt, StatRushingYds, StatRushingTDs,
	StatReceivingTar, StatReceivingRec, StatReceivingYds, StatReceivingTDs,
	StatFumblesLost,
	StatDefenseTkl, StatDefenseSk, StatDefenseInt,
	StatKickingFGM, StatKickingFGA,
}

// ParseStatCategory validates a category name from the feed or a caller.
func ParseStatCategory(s string) (StatCategory, error) {
	c := StatCategory(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown stat category %q", s)
	}
	return c, nil
}

// Valid reports whether the category is part of the closed set.
func (c StatCategory) Valid() bool {
	for _, k := range StatCategories {
		if c == k {
			return true
		}
	}
	return false
}

// PlayStat is one (play, player, category) statistical event. These rows are
// the only source of truth for aggregate statistics; totals are always
// computed from them, never stored.
type PlayStat struct {
	GameID   string       `db:"game_id"`
	PlayID   int          `db:"play_id"`
	PlayerID string       `db:"player_id"`
	Team     string       `db:"team"`
	Category StatCategory `db:"category"`
	Value    int          `db:"value"`
}

// PlayerTotals is one aggregate-mode result row: the per-player sum of every
// stat category over the rows a query matched.
type PlayerTotals struct {
	PlayerID string
	Totals   map[StatCategory]int64
}

// Total returns the summed value for one category, zero if absent.
func (t *PlayerTotals) Total(c StatCategory) int64 {
	if t.Totals == nil {
		return 0
	}
	return t.Totals[c]
}
