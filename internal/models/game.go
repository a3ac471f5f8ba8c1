package models

import (
	"database/sql"
	"fmt"
	"time"
)

// SeasonPhase identifies the portion of the season a game belongs to.
type SeasonPhase string

const (
	PhasePreseason  SeasonPhase = "Preseason"
	PhaseRegular    SeasonPhase = "Regular"
	PhasePostseason SeasonPhase = "Postseason"
)

// ParseSeasonPhase converts feed strings like "REG" or "Regular" to a SeasonPhase.
func ParseSeasonPhase(s string) (SeasonPhase, error) {
	switch s {
	case "PRE", "Preseason":
		return PhasePreseason, nil
	case "REG", "Regular":
		return PhaseRegular, nil
	case "POST", "PST", "Postseason":
		return PhasePostseason, nil
	}
	return "", fmt.Errorf("unknown season phase %q", s)
}

// GameStatus is the public lifecycle state of a game. Transitions only move
// forward: Scheduled -> InProgress -> Final.
type GameStatus string

const (
	StatusScheduled  GameStatus = "Scheduled"
	StatusInProgress GameStatus = "InProgress"
	StatusFinal      GameStatus = "Final"
)

// ParseGameStatus converts a stored or feed status string to a GameStatus.
func ParseGameStatus(s string) (GameStatus, error) {
	switch GameStatus(s) {
	case StatusScheduled, StatusInProgress, StatusFinal:
		return GameStatus(s), nil
	}
	return "", fmt.Errorf("unknown game status %q", s)
}

// Rank orders statuses along the lifecycle so forward-only transitions can be
// checked with a comparison.
func (s GameStatus) Rank() int {
	switch s {
	case StatusScheduled:
		return 0
	case StatusInProgress:
		return 1
	case StatusFinal:
		return 2
	}
	return -1
}

// Game represents one scheduled or played game. GameID is the feed's stable
// identifier (e.g. "2012090500") and the natural key for upserts.
type Game struct {
	GameID      string      `db:"game_id"`
	SeasonYear  int         `db:"season_year"`
	SeasonPhase SeasonPhase `db:"season_phase"`
	Week        int         `db:"week"`
	StartTime   time.Time   `db:"start_time"`
	HomeTeam    string      `db:"home_team"`
	AwayTeam    string      `db:"away_team"`

	HomeScore sql.NullInt32 `db:"home_score"`
	AwayScore sql.NullInt32 `db:"away_score"`

	Status GameStatus `db:"status"`

	// Finalizing marks a game whose feed state is final but whose last
	// confirmation poll has not yet come back empty.
	Finalizing bool `db:"finalizing"`

	// PlayWatermark is the highest play sequence number committed for this
	// game. It advances only inside the transaction that commits the plays.
	PlayWatermark int `db:"play_watermark"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// IsScheduled returns true if the game has not kicked off.
func (g *Game) IsScheduled() bool {
	return g.Status == StatusScheduled
}

// IsActive returns true if the game is currently in progress.
func (g *Game) IsActive() bool {
	return g.Status == StatusInProgress
}

// IsFinal returns true if the game is complete and frozen.
func (g *Game) IsFinal() bool {
	return g.Status == StatusFinal
}
