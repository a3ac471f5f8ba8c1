package pipeline

import (
	"context"
	"time"

	"gridirondb/internal/models"
	"gridirondb/internal/repository"
)

// Store is the storage surface the pipeline runs against. The production
// implementation wraps the repository layer; tests substitute an in-memory
// fake.
type Store interface {
	// SetCurrentState records the feed's calendar position.
	SetCurrentState(ctx context.Context, year int, phase models.SeasonPhase, week int) error

	// CurrentMeta reads the bookkeeping row.
	CurrentMeta(ctx context.Context) (*models.Meta, error)

	// UpsertSchedule lands schedule rows without touching live state on
	// games that already progressed.
	UpsertSchedule(ctx context.Context, games []*models.Game) error

	// TrackedGames lists every game that has not reached Final.
	TrackedGames(ctx context.Context) ([]*models.Game, error)

	// PlayHashes returns sequence -> content hash for a game's committed plays.
	PlayHashes(ctx context.Context, gameID string) (map[int]string, error)

	// CommitGame applies one game sync atomically: either the plays, stats,
	// corrections, game row and watermark all land, or none do.
	CommitGame(ctx context.Context, commit *GameCommit) error

	// RosterDueTeams lists teams whose roster refresh is older than interval.
	RosterDueTeams(ctx context.Context, interval time.Duration) ([]*models.Team, error)

	// CommitRoster applies one team's roster refresh atomically, including
	// the refresh timestamp that drives the cadence.
	CommitRoster(ctx context.Context, commit *RosterCommit) error
}

// PlayerRef is the minimal identity needed to satisfy the player foreign key
// when a stat line arrives before the roster sweep has seen the player.
type PlayerRef struct {
	PlayerID string
	Name     string
	Team     string
}

// GameCommit is everything one game sync writes.
type GameCommit struct {
	Game        *models.Game
	Teams       []string
	Players     []PlayerRef
	Drives      []*models.Drive
	NewPlays    []*models.Play
	Corrections []*models.Play

	// Stats holds the events for every play in NewPlays and Corrections,
	// keyed by play sequence. Corrected plays replace their events wholesale.
	Stats map[int][]*models.PlayStat

	// Watermark is the highest committed play sequence after this commit.
	Watermark int
}

// RosterCommit is one team's refreshed roster.
type RosterCommit struct {
	TeamID      string
	SeasonYear  int
	Players     []*models.Player
	Entries     []*models.RosterEntry
	RefreshedAt time.Time
}

// DBStore is the repository-backed Store.
type DBStore struct {
	db *repository.Database
}

var _ Store = (*DBStore)(nil)

// NewDBStore wraps the database for pipeline use.
func NewDBStore(db *repository.Database) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) SetCurrentState(ctx context.Context, year int, phase models.SeasonPhase, week int) error {
	return s.db.Meta.SetCurrent(ctx, year, phase, week)
}

func (s *DBStore) CurrentMeta(ctx context.Context) (*models.Meta, error) {
	return s.db.Meta.Get(ctx)
}

func (s *DBStore) UpsertSchedule(ctx context.Context, games []*models.Game) error {
	return s.db.InTx(ctx, func(tx *repository.Tx) error {
		seen := make(map[string]bool)
		for _, g := range games {
			for _, team := range []string{g.HomeTeam, g.AwayTeam} {
				if seen[team] {
					continue
				}
				if err := tx.Teams.EnsureExists(ctx, team); err != nil {
					return err
				}
				seen[team] = true
			}
			if err := tx.Games.UpsertSchedule(ctx, g); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *DBStore) TrackedGames(ctx context.Context) ([]*models.Game, error) {
	return s.db.Games.ListTracked(ctx)
}

func (s *DBStore) PlayHashes(ctx context.Context, gameID string) (map[int]string, error) {
	return s.db.Plays.HashesByGame(ctx, gameID)
}

func (s *DBStore) CommitGame(ctx context.Context, commit *GameCommit) error {
	return s.db.InTx(ctx, func(tx *repository.Tx) error {
		// Reference rows first so every foreign key below can resolve.
		for _, team := range commit.Teams {
			if err := tx.Teams.EnsureExists(ctx, team); err != nil {
				return err
			}
		}
		for _, p := range commit.Players {
			if err := tx.Players.EnsureExists(ctx, p.PlayerID, p.Name, p.Team); err != nil {
				return err
			}
		}
		for _, d := range commit.Drives {
			if err := tx.Drives.Upsert(ctx, d); err != nil {
				return err
			}
		}

		for _, play := range commit.NewPlays {
			if err := tx.Plays.Upsert(ctx, play); err != nil {
				return err
			}
			for _, stat := range commit.Stats[play.PlayID] {
				if err := tx.Stats.Upsert(ctx, stat); err != nil {
					return err
				}
			}
		}

		// A corrected snapshot may carry fewer stat events than the original
		// play did, so the old events go before the replacements land.
		for _, play := range commit.Corrections {
			if err := tx.Plays.Upsert(ctx, play); err != nil {
				return err
			}
			if err := tx.Stats.DeleteByPlay(ctx, play.GameID, play.PlayID); err != nil {
				return err
			}
			for _, stat := range commit.Stats[play.PlayID] {
				if err := tx.Stats.Upsert(ctx, stat); err != nil {
					return err
				}
			}
		}

		if err := tx.Games.UpdateLive(ctx, commit.Game); err != nil {
			return err
		}
		return tx.Games.SetWatermark(ctx, commit.Game.GameID, commit.Watermark)
	})
}

func (s *DBStore) RosterDueTeams(ctx context.Context, interval time.Duration) ([]*models.Team, error) {
	return s.db.Teams.ListRosterDue(ctx, interval)
}

func (s *DBStore) CommitRoster(ctx context.Context, commit *RosterCommit) error {
	return s.db.InTx(ctx, func(tx *repository.Tx) error {
		for _, player := range commit.Players {
			if err := tx.Players.Upsert(ctx, player); err != nil {
				return err
			}
		}
		for _, entry := range commit.Entries {
			if err := tx.Rosters.Upsert(ctx, entry); err != nil {
				return err
			}
		}
		return tx.Teams.TouchRosterRefreshed(ctx, commit.TeamID, commit.RefreshedAt)
	})
}
