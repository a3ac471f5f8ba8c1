// Package feed defines the upstream provider contract: the snapshot types the
// sync pipeline consumes, the Source interface, and the HTTP client that
// implements it.
package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"gridirondb/internal/models"
)

var (
	// ErrUnavailable marks transient feed failures: the provider cannot be
	// reached, rate limits, or answers with a server error. Safe to retry on
	// a later cycle.
	ErrUnavailable = errors.New("feed unavailable")

	// ErrMalformed marks payloads that parsed as transport but violate the
	// feed contract. Retrying won't help until the provider fixes the data.
	ErrMalformed = errors.New("feed payload malformed")
)

// Source is the provider contract the pipeline runs against. The HTTP client
// implements it for production; tests substitute scripted fixtures.
type Source interface {
	// CurrentState reports where the league calendar stands right now.
	CurrentState(ctx context.Context) (*CurrentState, error)

	// Schedule lists the published games for one week.
	Schedule(ctx context.Context, seasonYear int, phase models.SeasonPhase, week int) ([]*ScheduledGame, error)

	// GameSnapshot fetches the full current snapshot of one game: metadata,
	// drives and every play published so far.
	GameSnapshot(ctx context.Context, gameID string) (*GameSnapshot, error)

	// TeamRoster fetches a team's current roster.
	TeamRoster(ctx context.Context, teamID string) (*RosterSnapshot, error)
}

// CurrentState is the feed's view of the league calendar.
type CurrentState struct {
	SeasonYear  int                `json:"season_year"`
	SeasonPhase models.SeasonPhase `json:"season_phase"`
	Week        int                `json:"week"`
}

// ScheduledGame is one row of the published schedule.
type ScheduledGame struct {
	GameID      string             `json:"game_id"`
	SeasonYear  int                `json:"season_year"`
	SeasonPhase models.SeasonPhase `json:"season_phase"`
	Week        int                `json:"week"`
	StartTime   time.Time          `json:"start_time"`
	HomeTeam    string             `json:"home_team"`
	AwayTeam    string             `json:"away_team"`
}

// GameSnapshot is the feed's full current picture of one game. Plays carry
// everything published so far, not a delta; the pipeline decides what is new
// against its own watermark.
type GameSnapshot struct {
	GameID    string            `json:"game_id"`
	Status    models.GameStatus `json:"status"`
	HomeTeam  string            `json:"home_team"`
	AwayTeam  string            `json:"away_team"`
	HomeScore int               `json:"home_score"`
	AwayScore int               `json:"away_score"`
	Quarter   int               `json:"quarter"`
	Drives    []DriveSnapshot   `json:"drives"`
	Plays     []PlaySnapshot    `json:"plays"`
}

// DriveSnapshot is one possession as published by the feed.
type DriveSnapshot struct {
	DriveID     int    `json:"drive_id"`
	PosTeam     string `json:"pos_team"`
	StartField  *int   `json:"start_field,omitempty"`
	EndField    *int   `json:"end_field,omitempty"`
	Result      string `json:"result,omitempty"`
	PlayCount   int    `json:"play_count"`
	YardsGained int    `json:"yards_gained"`
	FirstDowns  int    `json:"first_downs"`
}

// PlaySnapshot is one play as published by the feed. Sequence numbers are
// strictly increasing within a game but not necessarily dense.
type PlaySnapshot struct {
	Sequence    int         `json:"sequence"`
	DriveID     int         `json:"drive_id"`
	Quarter     int         `json:"quarter"`
	PosTeam     string      `json:"pos_team"`
	Down        *int        `json:"down,omitempty"`
	YardsToGo   *int        `json:"yards_to_go,omitempty"`
	Yardline    *int        `json:"yardline,omitempty"`
	Note        string      `json:"note,omitempty"`
	Description string      `json:"description"`
	Stats       []StatEvent `json:"stats,omitempty"`
}

// StatEvent is one player stat line attached to a play.
type StatEvent struct {
	PlayerID   string              `json:"player_id"`
	PlayerName string              `json:"player_name"`
	Team       string              `json:"team"`
	Category   models.StatCategory `json:"category"`
	Value      int                 `json:"value"`
}

// RosterSnapshot is a team's current roster.
type RosterSnapshot struct {
	TeamID     string         `json:"team_id"`
	SeasonYear int            `json:"season_year"`
	Players    []RosterPlayer `json:"players"`
}

// RosterPlayer is one roster entry with the player's profile fields.
type RosterPlayer struct {
	PlayerID      string `json:"player_id"`
	FullName      string `json:"full_name"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Position      string `json:"position,omitempty"`
	Status        string `json:"status,omitempty"`
	UniformNumber *int   `json:"uniform_number,omitempty"`
	Height        *int   `json:"height,omitempty"`
	Weight        *int   `json:"weight,omitempty"`
	YearsPro      *int   `json:"years_pro,omitempty"`
	College       string `json:"college,omitempty"`
}

// Validate normalizes the snapshot and rejects contract violations before
// anything reaches the pipeline. Every failure wraps ErrMalformed.
func (g *GameSnapshot) Validate() error {
	if g.GameID == "" {
		return fmt.Errorf("%w: snapshot missing game_id", ErrMalformed)
	}
	if g.HomeTeam == "" || g.AwayTeam == "" {
		return fmt.Errorf("%w: game %s missing teams", ErrMalformed, g.GameID)
	}
	if g.HomeScore < 0 || g.AwayScore < 0 {
		return fmt.Errorf("%w: game %s has a negative score", ErrMalformed, g.GameID)
	}

	status, err := models.ParseGameStatus(string(g.Status))
	if err != nil {
		return fmt.Errorf("%w: game %s: %v", ErrMalformed, g.GameID, err)
	}
	g.Status = status

	drives := make(map[int]bool, len(g.Drives))
	for _, d := range g.Drives {
		if d.DriveID <= 0 {
			return fmt.Errorf("%w: game %s has drive id %d", ErrMalformed, g.GameID, d.DriveID)
		}
		if drives[d.DriveID] {
			return fmt.Errorf("%w: game %s repeats drive %d", ErrMalformed, g.GameID, d.DriveID)
		}
		drives[d.DriveID] = true
	}

	seen := make(map[int]bool, len(g.Plays))
	for i := range g.Plays {
		p := &g.Plays[i]
		if p.Sequence <= 0 {
			return fmt.Errorf("%w: game %s has play sequence %d", ErrMalformed, g.GameID, p.Sequence)
		}
		if seen[p.Sequence] {
			return fmt.Errorf("%w: game %s repeats play sequence %d", ErrMalformed, g.GameID, p.Sequence)
		}
		seen[p.Sequence] = true
		if !drives[p.DriveID] {
			return fmt.Errorf("%w: game %s play %d references unknown drive %d", ErrMalformed, g.GameID, p.Sequence, p.DriveID)
		}
		for _, e := range p.Stats {
			if e.PlayerID == "" {
				return fmt.Errorf("%w: game %s play %d has a stat without a player", ErrMalformed, g.GameID, p.Sequence)
			}
			if !e.Category.Valid() {
				return fmt.Errorf("%w: game %s play %d has unknown category %q", ErrMalformed, g.GameID, p.Sequence, e.Category)
			}
		}
	}
	return nil
}

// Fingerprint hashes the play's content, stat lines included. A corrected
// description or restated stat changes the hash, which is how the pipeline
// detects corrections without comparing field by field against storage.
// Stat lines are hashed in (player, category) order so provider-side
// reordering does not read as a correction.
func (p *PlaySnapshot) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d\n%d\n%d\n%s\n", p.Sequence, p.DriveID, p.Quarter, p.PosTeam)
	writeOptInt(h, p.Down)
	writeOptInt(h, p.YardsToGo)
	writeOptInt(h, p.Yardline)
	fmt.Fprintf(h, "%s\n%s\n", p.Note, p.Description)

	events := append([]StatEvent(nil), p.Stats...)
	sort.Slice(events, func(i, j int) bool {
		if events[i].PlayerID != events[j].PlayerID {
			return events[i].PlayerID < events[j].PlayerID
		}
		return events[i].Category < events[j].Category
	})
	for _, e := range events {
		fmt.Fprintf(h, "%s\n%s\n%s\n%d\n", e.PlayerID, e.Team, e.Category, e.Value)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeOptInt(w io.Writer, v *int) {
	if v == nil {
		io.WriteString(w, "-\n")
		return
	}
	fmt.Fprintf(w, "%d\n", *v)
}
