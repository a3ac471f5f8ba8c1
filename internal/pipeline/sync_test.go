package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"gridirondb/internal/feed"
	"gridirondb/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu sync.Mutex

	meta          models.Meta
	games         map[string]*models.Game
	hashes        map[string]map[int]string
	stats         map[string]map[int][]*models.PlayStat
	dueTeams      []*models.Team
	commits       []*GameCommit
	rosterCommits []*RosterCommit
	scheduled     [][]*models.Game
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		games:  make(map[string]*models.Game),
		hashes: make(map[string]map[int]string),
		stats:  make(map[string]map[int][]*models.PlayStat),
	}
}

func (s *fakeStore) addGame(g *models.Game) {
	s.games[g.GameID] = g
	if s.hashes[g.GameID] == nil {
		s.hashes[g.GameID] = make(map[int]string)
	}
	if s.stats[g.GameID] == nil {
		s.stats[g.GameID] = make(map[int][]*models.PlayStat)
	}
}

func (s *fakeStore) SetCurrentState(ctx context.Context, year int, phase models.SeasonPhase, week int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.SeasonYear.Int32, s.meta.SeasonYear.Valid = int32(year), true
	s.meta.SeasonPhase.String, s.meta.SeasonPhase.Valid = string(phase), true
	s.meta.Week.Int32, s.meta.Week.Valid = int32(week), true
	return nil
}

func (s *fakeStore) CurrentMeta(ctx context.Context) (*models.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := s.meta
	return &meta, nil
}

func (s *fakeStore) UpsertSchedule(ctx context.Context, games []*models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, games)
	for _, g := range games {
		if _, ok := s.games[g.GameID]; !ok {
			copied := *g
			s.games[g.GameID] = &copied
			s.hashes[g.GameID] = make(map[int]string)
			s.stats[g.GameID] = make(map[int][]*models.PlayStat)
		}
	}
	return nil
}

func (s *fakeStore) TrackedGames(ctx context.Context) ([]*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tracked []*models.Game
	for _, g := range s.games {
		if !g.IsFinal() {
			copied := *g
			tracked = append(tracked, &copied)
		}
	}
	return tracked, nil
}

func (s *fakeStore) PlayHashes(ctx context.Context, gameID string) (map[int]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]string, len(s.hashes[gameID]))
	for seq, h := range s.hashes[gameID] {
		out[seq] = h
	}
	return out, nil
}

func (s *fakeStore) CommitGame(ctx context.Context, commit *GameCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, commit)

	game := *commit.Game
	game.PlayWatermark = commit.Watermark
	s.games[game.GameID] = &game

	for _, play := range commit.NewPlays {
		s.hashes[game.GameID][play.PlayID] = play.ContentHash
		s.stats[game.GameID][play.PlayID] = commit.Stats[play.PlayID]
	}
	for _, play := range commit.Corrections {
		s.hashes[game.GameID][play.PlayID] = play.ContentHash
		s.stats[game.GameID][play.PlayID] = commit.Stats[play.PlayID]
	}
	return nil
}

func (s *fakeStore) RosterDueTeams(ctx context.Context, interval time.Duration) ([]*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dueTeams, nil
}

func (s *fakeStore) CommitRoster(ctx context.Context, commit *RosterCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rosterCommits = append(s.rosterCommits, commit)
	return nil
}

func (s *fakeStore) game(t *testing.T, gameID string) models.Game {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	require.True(t, ok, "game %s should exist", gameID)
	return *g
}

func (s *fakeStore) commitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commits)
}

type fakeSource struct {
	mu sync.Mutex

	state     *feed.CurrentState
	stateErr  error
	schedule  []*feed.ScheduledGame
	snapshots map[string]*feed.GameSnapshot
	snapErrs  map[string]error
	rosters   map[string]*feed.RosterSnapshot
	rosterErr map[string]error
	snapCalls map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		state:     &feed.CurrentState{SeasonYear: 2009, SeasonPhase: models.PhaseRegular, Week: 5},
		snapshots: make(map[string]*feed.GameSnapshot),
		snapErrs:  make(map[string]error),
		rosters:   make(map[string]*feed.RosterSnapshot),
		rosterErr: make(map[string]error),
		snapCalls: make(map[string]int),
	}
}

func (f *fakeSource) CurrentState(ctx context.Context) (*feed.CurrentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	return f.state, nil
}

func (f *fakeSource) Schedule(ctx context.Context, year int, phase models.SeasonPhase, week int) ([]*feed.ScheduledGame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schedule, nil
}

func (f *fakeSource) GameSnapshot(ctx context.Context, gameID string) (*feed.GameSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapCalls[gameID]++
	if err := f.snapErrs[gameID]; err != nil {
		return nil, err
	}
	snap, ok := f.snapshots[gameID]
	if !ok {
		return nil, fmt.Errorf("%w: no snapshot for %s", feed.ErrUnavailable, gameID)
	}
	return snap, nil
}

func (f *fakeSource) TeamRoster(ctx context.Context, teamID string) (*feed.RosterSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.rosterErr[teamID]; err != nil {
		return nil, err
	}
	roster, ok := f.rosters[teamID]
	if !ok {
		return nil, fmt.Errorf("%w: no roster for %s", feed.ErrUnavailable, teamID)
	}
	return roster, nil
}

func (f *fakeSource) calls(gameID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapCalls[gameID]
}

func newTestPipeline(store Store, source feed.Source) *Pipeline {
	return New(store, source, nil, Options{
		PollConcurrency:   2,
		GapRetryBudget:    2,
		EnablePlayerStats: true,
	})
}

func liveGameRow(gameID string, watermark int) *models.Game {
	return &models.Game{
		GameID:        gameID,
		SeasonYear:    2009,
		SeasonPhase:   models.PhaseRegular,
		Week:          5,
		StartTime:     time.Now().Add(-time.Hour),
		HomeTeam:      "NE",
		AwayTeam:      "NYJ",
		HomeScore:     sql.NullInt32{Int32: 14, Valid: true},
		AwayScore:     sql.NullInt32{Int32: 7, Valid: true},
		Status:        models.StatusInProgress,
		PlayWatermark: watermark,
	}
}

func testPlay(seq int) feed.PlaySnapshot {
	return feed.PlaySnapshot{
		Sequence:    seq,
		DriveID:     1,
		Quarter:     1 + seq/30,
		PosTeam:     "NE",
		Description: fmt.Sprintf("play %d", seq),
		Stats: []feed.StatEvent{
			{PlayerID: fmt.Sprintf("00-%04d", seq%3), PlayerName: "Player", Team: "NE", Category: models.StatRushingYds, Value: seq},
		},
	}
}

func testSnapshot(gameID string, status models.GameStatus, seqs ...int) *feed.GameSnapshot {
	snap := &feed.GameSnapshot{
		GameID:    gameID,
		Status:    status,
		HomeTeam:  "NE",
		AwayTeam:  "NYJ",
		HomeScore: 14,
		AwayScore: 7,
		Drives:    []feed.DriveSnapshot{{DriveID: 1, PosTeam: "NE", PlayCount: len(seqs)}},
	}
	for _, seq := range seqs {
		snap.Plays = append(snap.Plays, testPlay(seq))
	}
	return snap
}

// seedCommitted records the snapshot's plays at or below the watermark as
// already committed, hashes matching, the way a previous cycle would have
// left them.
func seedCommitted(store *fakeStore, g *models.Game, snap *feed.GameSnapshot) {
	for i := range snap.Plays {
		ps := &snap.Plays[i]
		if ps.Sequence <= g.PlayWatermark {
			store.hashes[g.GameID][ps.Sequence] = ps.Fingerprint()
		}
	}
}

func TestSyncGame_AppliesOnlyPlaysAboveWatermark(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()

	game := liveGameRow("2009101100", 3)
	store.addGame(game)
	snap := testSnapshot(game.GameID, models.StatusInProgress, 1, 2, 3, 4, 5)
	source.snapshots[game.GameID] = snap
	seedCommitted(store, game, snap)

	p := newTestPipeline(store, source)
	report, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.GamesPolled)
	assert.Equal(t, 2, report.PlaysApplied, "Only sequences 4 and 5 are above the watermark")
	assert.Equal(t, 0, report.Corrections)

	require.Equal(t, 1, store.commitCount())
	commit := store.commits[0]
	require.Len(t, commit.NewPlays, 2)
	assert.Equal(t, 4, commit.NewPlays[0].PlayID, "New plays must apply in increasing sequence order")
	assert.Equal(t, 5, commit.NewPlays[1].PlayID)
	assert.Equal(t, 5, commit.Watermark)
	assert.Empty(t, commit.Corrections)
	assert.Len(t, commit.Stats[4], 1)
	assert.Len(t, commit.Stats[5], 1)

	updated := store.game(t, game.GameID)
	assert.Equal(t, 5, updated.PlayWatermark)
	assert.Equal(t, models.StatusInProgress, updated.Status)
}

func TestSyncGame_SecondRunWithSameSnapshotWritesNothing(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()

	game := liveGameRow("2009101100", 0)
	store.addGame(game)
	source.snapshots[game.GameID] = testSnapshot(game.GameID, models.StatusInProgress, 1, 2, 3)

	p := newTestPipeline(store, source)

	_, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, store.commitCount())
	assert.Equal(t, 3, store.game(t, game.GameID).PlayWatermark)

	report, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.PlaysApplied)
	assert.Equal(t, 0, report.Corrections)
	assert.Equal(t, 1, store.commitCount(), "An unchanged snapshot must not produce a second commit")
}

func TestSyncGame_RejectsSnapshotMissingTheWatermarkPlay(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()

	game := liveGameRow("2009101100", 3)
	store.addGame(game)
	// Sequences 4 and 5 without 3: committed history is missing from the
	// provider's view.
	source.snapshots[game.GameID] = testSnapshot(game.GameID, models.StatusInProgress, 4, 5)

	p := newTestPipeline(store, source)

	// Two quiet retries inside the budget.
	for i := 0; i < 2; i++ {
		report, err := p.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.SequenceGaps)
		assert.Equal(t, 0, report.SyncErrors, "Gaps inside the budget are quiet retries")
	}
	assert.Equal(t, 0, store.commitCount(), "Nothing may land while the gap persists")
	assert.Equal(t, 3, store.game(t, game.GameID).PlayWatermark)

	// Third consecutive gap exhausts the budget.
	report, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.SequenceGaps)
	assert.Equal(t, 1, report.SyncErrors, "An exhausted gap budget escalates")

	// The provider repairs its history; the game recovers without manual help.
	snap := testSnapshot(game.GameID, models.StatusInProgress, 3, 4, 5)
	source.mu.Lock()
	source.snapshots[game.GameID] = snap
	source.mu.Unlock()
	seedCommitted(store, game, snap)

	report, err = p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.PlaysApplied)
	assert.Equal(t, 0, report.SequenceGaps)
	assert.Equal(t, 5, store.game(t, game.GameID).PlayWatermark)
}

func TestSyncGame_RewritesCorrectedPlays(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()

	game := liveGameRow("2009101100", 2)
	store.addGame(game)
	snap := testSnapshot(game.GameID, models.StatusInProgress, 1, 2)
	source.snapshots[game.GameID] = snap
	seedCommitted(store, game, snap)

	// The provider restates play 2: new description, new stat value.
	snap.Plays[1].Description = "play 2, reviewed and reversed"
	snap.Plays[1].Stats[0].Value = 99

	p := newTestPipeline(store, source)
	report, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.PlaysApplied)
	assert.Equal(t, 1, report.Corrections)

	require.Equal(t, 1, store.commitCount())
	commit := store.commits[0]
	require.Len(t, commit.Corrections, 1)
	assert.Equal(t, 2, commit.Corrections[0].PlayID)
	assert.Equal(t, 2, commit.Watermark, "Corrections never move the watermark")
	require.Len(t, commit.Stats[2], 1)
	assert.Equal(t, 99, commit.Stats[2][0].Value, "Corrected stats replace the originals")

	// The rewritten hash settles: the same snapshot no longer diffs.
	report, err = p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Corrections)
	assert.Equal(t, 1, store.commitCount())
}

func TestSyncGame_FinalizationNeedsAQuietConfirmationPoll(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()

	game := liveGameRow("2009101100", 0)
	store.addGame(game)
	source.snapshots[game.GameID] = testSnapshot(game.GameID, models.StatusFinal, 1, 2)

	p := newTestPipeline(store, source)

	// First poll sees Final but still carries new plays: apply them and
	// enter the finalizing pass.
	report, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.PlaysApplied)
	assert.Equal(t, 0, report.Finalized)

	mid := store.game(t, game.GameID)
	assert.Equal(t, models.StatusInProgress, mid.Status, "Public status must not claim Final before confirmation")
	assert.True(t, mid.Finalizing)

	// The confirmation poll applies nothing new and seals the game.
	report, err = p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.PlaysApplied)
	assert.Equal(t, 1, report.Finalized)

	final := store.game(t, game.GameID)
	assert.Equal(t, models.StatusFinal, final.Status)
	assert.False(t, final.Finalizing)

	// Final games leave the tracked set entirely.
	calls := source.calls(game.GameID)
	report, err = p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.GamesPolled)
	assert.Equal(t, calls, source.calls(game.GameID), "Final games must not be polled again")
}

func TestSyncGame_StatusNeverRegresses(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()

	game := liveGameRow("2009101100", 2)
	store.addGame(game)
	snap := testSnapshot(game.GameID, models.StatusScheduled, 1, 2)
	source.snapshots[game.GameID] = snap
	seedCommitted(store, game, snap)

	p := newTestPipeline(store, source)
	_, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, store.commitCount(), "A status regression with no data change writes nothing")
	assert.Equal(t, models.StatusInProgress, store.game(t, game.GameID).Status)
}

func TestNextGameState_OnlyMovesForward(t *testing.T) {
	tests := []struct {
		name       string
		stored     models.GameStatus
		finalizing bool
		feed       models.GameStatus
		deltas     int
		want       models.GameStatus
	}{
		{"kickoff", models.StatusScheduled, false, models.StatusInProgress, 1, models.StatusInProgress},
		{"scheduled regression ignored", models.StatusInProgress, false, models.StatusScheduled, 0, models.StatusInProgress},
		{"final with deltas starts finalizing", models.StatusInProgress, false, models.StatusFinal, 2, models.StatusInProgress},
		{"quiet confirmation seals", models.StatusInProgress, true, models.StatusFinal, 0, models.StatusFinal},
		{"provider backs off a premature final", models.StatusInProgress, true, models.StatusInProgress, 1, models.StatusInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &models.Game{GameID: "2009101100", Status: tt.stored, Finalizing: tt.finalizing}
			status, finalizing, finalized := nextGameState(g, tt.feed, tt.deltas)

			assert.Equal(t, tt.want, status)
			assert.GreaterOrEqual(t, status.Rank(), tt.stored.Rank(), "The lifecycle must never move backward")
			if tt.want == models.StatusFinal {
				assert.True(t, finalized)
				assert.False(t, finalizing)
			}
		})
	}
}

func TestRunCycle_ScheduledGamesWaitForKickoff(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()

	future := liveGameRow("2009111500", 0)
	future.Status = models.StatusScheduled
	future.StartTime = time.Now().Add(2 * time.Hour)
	store.addGame(future)

	started := liveGameRow("2009101100", 0)
	started.Status = models.StatusScheduled
	started.StartTime = time.Now().Add(-5 * time.Minute)
	store.addGame(started)
	source.snapshots[started.GameID] = testSnapshot(started.GameID, models.StatusInProgress, 1)

	p := newTestPipeline(store, source)
	report, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.GamesPolled)
	assert.Equal(t, 0, source.calls(future.GameID), "Games before kickoff are not polled")
	assert.Equal(t, 1, source.calls(started.GameID))
	assert.Equal(t, models.StatusInProgress, store.game(t, started.GameID).Status)
}

func TestRunCycle_SyncsSchedule(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	source.schedule = []*feed.ScheduledGame{
		{GameID: "2009101100", SeasonYear: 2009, SeasonPhase: models.PhaseRegular, Week: 5,
			StartTime: time.Now().Add(24 * time.Hour), HomeTeam: "NE", AwayTeam: "NYJ"},
	}

	p := newTestPipeline(store, source)
	report, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.FeedErrors)
	require.Len(t, store.scheduled, 1)
	require.Len(t, store.scheduled[0], 1)
	assert.Equal(t, "2009101100", store.scheduled[0][0].GameID)
	assert.Equal(t, models.StatusScheduled, store.scheduled[0][0].Status)

	meta, err := store.CurrentMeta(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2009), meta.SeasonYear.Int32)
	assert.Equal(t, int32(5), meta.Week.Int32)
}

func TestRunCycle_DegradesWhenCurrentStateUnavailable(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()
	source.stateErr = fmt.Errorf("%w: connect refused", feed.ErrUnavailable)

	game := liveGameRow("2009101100", 0)
	store.addGame(game)
	source.snapshots[game.GameID] = testSnapshot(game.GameID, models.StatusInProgress, 1)

	p := newTestPipeline(store, source)
	report, err := p.RunCycle(context.Background())
	require.NoError(t, err, "Losing the calendar endpoint must not abort the cycle")

	assert.Equal(t, 1, report.FeedErrors)
	assert.Equal(t, 1, report.PlaysApplied, "Tracked games still poll without schedule sync")
	assert.Empty(t, store.scheduled)
}

func TestRunCycle_MalformedSnapshotSkipsOnlyThatGame(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()

	bad := liveGameRow("2009101100", 0)
	store.addGame(bad)
	source.snapErrs[bad.GameID] = fmt.Errorf("%w: duplicate sequence", feed.ErrMalformed)

	good := liveGameRow("2009101101", 0)
	store.addGame(good)
	source.snapshots[good.GameID] = testSnapshot(good.GameID, models.StatusInProgress, 1, 2)

	p := newTestPipeline(store, source)
	report, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.GamesPolled)
	assert.Equal(t, 1, report.FeedErrors)
	assert.Equal(t, 2, report.PlaysApplied, "The healthy game still syncs")
	assert.Equal(t, 0, store.game(t, bad.GameID).PlayWatermark)
	assert.Equal(t, 2, store.game(t, good.GameID).PlayWatermark)
}

func TestPipeline_OnePollPerGameAtATime(t *testing.T) {
	p := newTestPipeline(newFakeStore(), newFakeSource())

	require.True(t, p.claim("2009101100"))
	assert.False(t, p.claim("2009101100"), "A claimed game must not be claimed again")
	assert.True(t, p.claim("2009101101"), "Other games are unaffected")

	p.release("2009101100")
	assert.True(t, p.claim("2009101100"), "A released game is claimable again")
}

func TestSyncGame_StatsCanBeDisabled(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource()

	game := liveGameRow("2009101100", 0)
	store.addGame(game)
	source.snapshots[game.GameID] = testSnapshot(game.GameID, models.StatusInProgress, 1, 2)

	p := New(store, source, nil, Options{EnablePlayerStats: false})
	report, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.PlaysApplied)
	assert.Equal(t, 0, report.StatsApplied)

	require.Equal(t, 1, store.commitCount())
	commit := store.commits[0]
	assert.Empty(t, commit.Stats, "Disabled stats must not produce events")
	assert.Empty(t, commit.Players)
	assert.Len(t, commit.NewPlays, 2, "Plays sync regardless of the stats switch")
}
