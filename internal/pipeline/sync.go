package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"gridirondb/internal/feed"
	"gridirondb/internal/metrics"
	"gridirondb/internal/models"
)

// ErrSequenceGap marks a snapshot that advertises plays beyond the committed
// watermark without containing the watermark play itself. The pipeline cannot
// tell whether the provider truncated history or restated sequence numbers,
// so it refuses the snapshot and retries on a later cycle.
var ErrSequenceGap = errors.New("sequence gap")

type syncResult struct {
	outcome     string
	plays       int
	stats       int
	corrections int
	finalized   bool
	gap         bool
	err         error
}

// gameDelta is the computed difference between a snapshot and storage.
// A nil delta means the snapshot holds nothing new.
type gameDelta struct {
	commit    *GameCommit
	statCount int
	finalized bool
}

func (p *Pipeline) syncGame(ctx context.Context, g *models.Game) syncResult {
	start := time.Now()
	res := p.doSyncGame(ctx, g)
	metrics.RecordGameSync(res.outcome, time.Since(start).Seconds())

	if res.err != nil {
		log.Error().Str("game_id", g.GameID).Str("outcome", res.outcome).Err(res.err).Msg("Game sync failed")
	}
	return res
}

func (p *Pipeline) doSyncGame(ctx context.Context, g *models.Game) syncResult {
	// Final games are frozen. Nothing rewrites them, ever.
	if g.IsFinal() {
		return syncResult{outcome: "noop"}
	}

	snap, err := p.source.GameSnapshot(ctx, g.GameID)
	if err != nil {
		switch {
		case errors.Is(err, feed.ErrUnavailable):
			log.Debug().Str("game_id", g.GameID).Err(err).Msg("Feed unavailable, retrying next cycle")
			return syncResult{outcome: "unavailable"}
		case errors.Is(err, feed.ErrMalformed):
			metrics.RecordError("pipeline", "malformed")
			log.Warn().Str("game_id", g.GameID).Err(err).Msg("Rejected malformed snapshot")
			return syncResult{outcome: "malformed"}
		default:
			metrics.RecordError("pipeline", "feed")
			return syncResult{outcome: "error", err: err}
		}
	}
	if snap.GameID != g.GameID {
		metrics.RecordError("pipeline", "malformed")
		return syncResult{
			outcome: "malformed",
			err:     fmt.Errorf("%w: asked for game %s, snapshot answered %s", feed.ErrMalformed, g.GameID, snap.GameID),
		}
	}

	delta, err := p.computeDelta(ctx, g, snap)
	if err != nil {
		if errors.Is(err, ErrSequenceGap) {
			metrics.SequenceGaps.Inc()
			streak := p.noteGap(g.GameID)
			if streak > p.gapBudget {
				return syncResult{outcome: "gap", gap: true,
					err: fmt.Errorf("game %s: %w after %d attempts", g.GameID, err, streak)}
			}
			log.Warn().Str("game_id", g.GameID).Int("attempt", streak).Err(err).
				Msg("Snapshot missing committed plays, retrying next cycle")
			return syncResult{outcome: "gap", gap: true}
		}
		return syncResult{outcome: "error", err: err}
	}
	p.clearGap(g.GameID)

	if delta == nil {
		return syncResult{outcome: "noop"}
	}

	if err := p.store.CommitGame(ctx, delta.commit); err != nil {
		metrics.RecordError("pipeline", "storage")
		return syncResult{outcome: "error", err: fmt.Errorf("failed to commit game %s: %w", g.GameID, err)}
	}

	metrics.PlaysApplied.Add(float64(len(delta.commit.NewPlays)))
	metrics.StatsApplied.Add(float64(delta.statCount))
	metrics.CorrectionsApplied.Add(float64(len(delta.commit.Corrections)))

	if p.cache != nil {
		if err := p.cache.SetGameState(ctx, delta.commit.Game); err != nil {
			log.Debug().Str("game_id", g.GameID).Err(err).Msg("Failed to cache game state")
		}
	}

	if delta.finalized {
		log.Info().Str("game_id", g.GameID).Int("watermark", delta.commit.Watermark).Msg("Game finalized")
	} else {
		log.Debug().
			Str("game_id", g.GameID).
			Int("plays", len(delta.commit.NewPlays)).
			Int("stats", delta.statCount).
			Int("corrections", len(delta.commit.Corrections)).
			Int("watermark", delta.commit.Watermark).
			Msg("Game synchronized")
	}

	return syncResult{
		outcome:     "synced",
		plays:       len(delta.commit.NewPlays),
		stats:       delta.statCount,
		corrections: len(delta.commit.Corrections),
		finalized:   delta.finalized,
	}
}

// computeDelta diffs a validated snapshot against the game's committed state.
func (p *Pipeline) computeDelta(ctx context.Context, g *models.Game, snap *feed.GameSnapshot) (*gameDelta, error) {
	// Partition the snapshot's plays around the watermark. Sequence numbers
	// are not dense, so the only contiguity check possible is that a snapshot
	// advertising anything new must still contain the watermark play itself.
	// If it does not, part of the committed history is missing from the
	// provider's view and nothing in between can be trusted.
	var fresh, committed []*feed.PlaySnapshot
	sawWatermark := g.PlayWatermark == 0
	for i := range snap.Plays {
		ps := &snap.Plays[i]
		if ps.Sequence > g.PlayWatermark {
			fresh = append(fresh, ps)
			continue
		}
		committed = append(committed, ps)
		if ps.Sequence == g.PlayWatermark {
			sawWatermark = true
		}
	}
	if len(fresh) > 0 && !sawWatermark {
		return nil, fmt.Errorf("%w: snapshot advances past watermark %d without containing it", ErrSequenceGap, g.PlayWatermark)
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Sequence < fresh[j].Sequence })

	// Plays at or below the watermark are already committed; a changed
	// content hash means the provider restated one.
	var corrections []*feed.PlaySnapshot
	if len(committed) > 0 {
		hashes, err := p.store.PlayHashes(ctx, g.GameID)
		if err != nil {
			return nil, fmt.Errorf("failed to load play hashes for %s: %w", g.GameID, err)
		}
		for _, ps := range committed {
			stored, ok := hashes[ps.Sequence]
			if !ok {
				log.Warn().Str("game_id", g.GameID).Int("sequence", ps.Sequence).
					Msg("Play below watermark missing from storage, rewriting")
				corrections = append(corrections, ps)
				continue
			}
			if stored != ps.Fingerprint() {
				corrections = append(corrections, ps)
			}
		}
	}

	deltas := len(fresh) + len(corrections)
	status, finalizing, finalized := nextGameState(g, snap.Status, deltas)

	scoresChanged := !g.HomeScore.Valid || g.HomeScore.Int32 != int32(snap.HomeScore) ||
		!g.AwayScore.Valid || g.AwayScore.Int32 != int32(snap.AwayScore)
	stateChanged := status != g.Status || finalizing != g.Finalizing

	if deltas == 0 && !scoresChanged && !stateChanged {
		return nil, nil
	}

	updated := *g
	updated.HomeScore = sql.NullInt32{Int32: int32(snap.HomeScore), Valid: true}
	updated.AwayScore = sql.NullInt32{Int32: int32(snap.AwayScore), Valid: true}
	updated.Status = status
	updated.Finalizing = finalizing

	commit := &GameCommit{
		Game:      &updated,
		Watermark: g.PlayWatermark,
		Stats:     make(map[int][]*models.PlayStat),
	}
	if n := len(fresh); n > 0 {
		commit.Watermark = fresh[n-1].Sequence
	}

	teams := make(map[string]bool)
	players := make(map[string]PlayerRef)

	// Drive rows accumulate summary fields for as long as the game runs, so
	// any commit rewrites all of them rather than guessing which changed.
	for i := range snap.Drives {
		d := snapDrive(g.GameID, &snap.Drives[i])
		teams[d.PosTeam] = true
		commit.Drives = append(commit.Drives, d)
	}

	statCount := 0
	collect := func(ps *feed.PlaySnapshot) *models.Play {
		play := snapPlay(g.GameID, ps)
		teams[play.PosTeam] = true
		if !p.statsEnabled {
			return play
		}
		for _, e := range ps.Stats {
			stat := snapStat(g.GameID, ps.Sequence, &e)
			teams[stat.Team] = true
			if _, ok := players[stat.PlayerID]; !ok {
				name := e.PlayerName
				if name == "" {
					name = e.PlayerID
				}
				players[stat.PlayerID] = PlayerRef{PlayerID: stat.PlayerID, Name: name, Team: stat.Team}
			}
			commit.Stats[ps.Sequence] = append(commit.Stats[ps.Sequence], stat)
			statCount++
		}
		return play
	}

	for _, ps := range fresh {
		commit.NewPlays = append(commit.NewPlays, collect(ps))
	}
	for _, ps := range corrections {
		commit.Corrections = append(commit.Corrections, collect(ps))
	}

	for team := range teams {
		commit.Teams = append(commit.Teams, team)
	}
	sort.Strings(commit.Teams)
	for _, ref := range players {
		commit.Players = append(commit.Players, ref)
	}
	sort.Slice(commit.Players, func(i, j int) bool { return commit.Players[i].PlayerID < commit.Players[j].PlayerID })

	return &gameDelta{commit: commit, statCount: statCount, finalized: finalized}, nil
}

// nextGameState advances the lifecycle. Transitions only move forward; a
// snapshot reporting Final starts the finalizing pass, and only a finalizing
// poll that carries zero play deltas seals the game as Final.
func nextGameState(g *models.Game, feedStatus models.GameStatus, deltas int) (status models.GameStatus, finalizing, finalized bool) {
	status = g.Status
	finalizing = g.Finalizing

	switch feedStatus {
	case models.StatusFinal:
		if status == models.StatusScheduled {
			status = models.StatusInProgress
		}
		if finalizing && deltas == 0 {
			status = models.StatusFinal
			finalizing = false
			finalized = true
		} else if !finalizing {
			finalizing = true
		}
	case models.StatusInProgress:
		if status == models.StatusScheduled {
			status = models.StatusInProgress
		}
		// The provider backed off a premature Final; resume normal polling.
		finalizing = false
	case models.StatusScheduled:
		// A regression to Scheduled never rolls storage back.
	}

	if status.Rank() < g.Status.Rank() {
		status = g.Status
	}
	return status, finalizing, finalized
}

// claim marks a game as having a poll in flight; it returns false when some
// other cycle already owns the game.
func (p *Pipeline) claim(gameID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight[gameID] {
		return false
	}
	p.inFlight[gameID] = true
	return true
}

func (p *Pipeline) release(gameID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, gameID)
}

func (p *Pipeline) noteGap(gameID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gapStreaks[gameID]++
	return p.gapStreaks[gameID]
}

func (p *Pipeline) clearGap(gameID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.gapStreaks, gameID)
}

func snapDrive(gameID string, ds *feed.DriveSnapshot) *models.Drive {
	return &models.Drive{
		GameID:      gameID,
		DriveID:     ds.DriveID,
		PosTeam:     orUnknown(ds.PosTeam),
		StartField:  nullInt32(ds.StartField),
		EndField:    nullInt32(ds.EndField),
		Result:      nullString(ds.Result),
		PlayCount:   ds.PlayCount,
		YardsGained: ds.YardsGained,
		FirstDowns:  ds.FirstDowns,
	}
}

func snapPlay(gameID string, ps *feed.PlaySnapshot) *models.Play {
	return &models.Play{
		GameID:      gameID,
		PlayID:      ps.Sequence,
		DriveID:     ps.DriveID,
		Quarter:     ps.Quarter,
		PosTeam:     orUnknown(ps.PosTeam),
		Down:        nullInt32(ps.Down),
		YardsToGo:   nullInt32(ps.YardsToGo),
		Yardline:    nullInt32(ps.Yardline),
		Note:        nullString(ps.Note),
		Description: ps.Description,
		ContentHash: ps.Fingerprint(),
	}
}

func snapStat(gameID string, sequence int, e *feed.StatEvent) *models.PlayStat {
	return &models.PlayStat{
		GameID:   gameID,
		PlayID:   sequence,
		PlayerID: e.PlayerID,
		Team:     orUnknown(e.Team),
		Category: e.Category,
		Value:    e.Value,
	}
}

// orUnknown maps a missing team abbreviation to the seeded placeholder so
// foreign keys hold.
func orUnknown(team string) string {
	if team == "" {
		return "UNK"
	}
	return team
}

func nullInt32(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
