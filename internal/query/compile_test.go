package query

import (
	"errors"
	"testing"

	"gridirondb/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	selectGames = "SELECT games.game_id, games.season_year, games.season_phase, games.week, " +
		"games.start_time, games.home_team, games.away_team, games.home_score, " +
		"games.away_score, games.status, games.finalizing, games.play_watermark, " +
		"games.created_at, games.updated_at FROM games"
	selectDrives = "SELECT drives.game_id, drives.drive_id, drives.pos_team, drives.start_field, " +
		"drives.end_field, drives.result, drives.play_count, drives.yards_gained, " +
		"drives.first_downs, drives.created_at, drives.updated_at FROM drives"
	selectPlays = "SELECT plays.game_id, plays.play_id, plays.drive_id, plays.quarter, " +
		"plays.pos_team, plays.down, plays.yards_to_go, plays.yardline, plays.note, " +
		"plays.description, plays.content_hash, plays.created_at, plays.updated_at FROM plays"
	selectStats = "SELECT play_stats.game_id, play_stats.play_id, play_stats.player_id, " +
		"play_stats.team, play_stats.category, play_stats.value FROM play_stats"
)

func TestCompile_GameOnlyCriteriaNeedsNoJoins(t *testing.T) {
	c := New().Games(GameSeason.Eq(2009), GameWeek.Eq(5))

	plan, err := Compile(c, ShapeGames)
	require.NoError(t, err, "Should compile game-only criteria")

	assert.Equal(t, selectGames+" WHERE games.season_year = $1 AND games.week = $2 ORDER BY games.game_id", plan.SQL)
	assert.Equal(t, []any{2009, 5}, plan.Args)
	assert.NotContains(t, plan.SQL, " JOIN ", "Game-only criteria should not touch other tables")
	assert.NotContains(t, plan.SQL, "EXISTS", "Game-only criteria should not touch other tables")
}

func TestCompile_EmptyCriteriaMatchesEverything(t *testing.T) {
	plan, err := Compile(New(), ShapeGames)
	require.NoError(t, err, "Should compile the empty criteria")
	assert.Equal(t, selectGames+" ORDER BY games.game_id", plan.SQL)
	assert.Empty(t, plan.Args)
}

func TestCompile_TeamPseudoField(t *testing.T) {
	t.Run("eq matches either side", func(t *testing.T) {
		plan, err := Compile(New().Games(GameTeam.Eq("NE")), ShapeGames)
		require.NoError(t, err)
		assert.Equal(t, selectGames+" WHERE (games.home_team = $1 OR games.away_team = $2) ORDER BY games.game_id", plan.SQL)
		assert.Equal(t, []any{"NE", "NE"}, plan.Args)
	})

	t.Run("ne excludes both sides", func(t *testing.T) {
		plan, err := Compile(New().Games(GameTeam.Ne("NE")), ShapeGames)
		require.NoError(t, err)
		assert.Equal(t, selectGames+" WHERE (games.home_team <> $1 AND games.away_team <> $2) ORDER BY games.game_id", plan.SQL)
		assert.Equal(t, []any{"NE", "NE"}, plan.Args)
	})

	t.Run("in expands per side", func(t *testing.T) {
		plan, err := Compile(New().Games(GameTeam.In("NE", "NYJ")), ShapeGames)
		require.NoError(t, err)
		assert.Equal(t, selectGames+" WHERE (games.home_team IN ($1, $2) OR games.away_team IN ($3, $4)) ORDER BY games.game_id", plan.SQL)
		assert.Equal(t, []any{"NE", "NYJ", "NE", "NYJ"}, plan.Args)
	})
}

func TestCompile_InRendersIndividualParams(t *testing.T) {
	plan, err := Compile(New().Games(GameID.In("2009101100", "2009101101", "2009101102")), ShapeGames)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "games.game_id IN ($1, $2, $3)")
	assert.Len(t, plan.Args, 3)
}

func TestCompile_AncestorFiltersJoinUpward(t *testing.T) {
	c := New().
		Games(GameSeason.Eq(2009)).
		Drives(DriveResult.Eq("Touchdown")).
		Plays(PlayDown.Eq(3))

	plan, err := Compile(c, ShapePlays)
	require.NoError(t, err, "Should compile play criteria with ancestor filters")

	assert.Equal(t, selectPlays+
		" JOIN games ON games.game_id = plays.game_id"+
		" JOIN drives ON drives.game_id = plays.game_id AND drives.drive_id = plays.drive_id"+
		" WHERE games.season_year = $1 AND drives.result = $2 AND plays.down = $3"+
		" ORDER BY plays.game_id, plays.play_id", plan.SQL)
	assert.Equal(t, []any{2009, "Touchdown", 3}, plan.Args)
}

func TestCompile_StatBaseReachesDrivesThroughPlays(t *testing.T) {
	plan, err := Compile(New().Drives(DriveResult.Eq("Punt")), ShapeStats)
	require.NoError(t, err)

	assert.Equal(t, selectStats+
		" JOIN plays ON plays.game_id = play_stats.game_id AND plays.play_id = play_stats.play_id"+
		" JOIN drives ON drives.game_id = plays.game_id AND drives.drive_id = plays.drive_id"+
		" WHERE drives.result = $1"+
		" ORDER BY play_stats.game_id, play_stats.play_id, play_stats.player_id, play_stats.category", plan.SQL)
	assert.Equal(t, []any{"Punt"}, plan.Args)
}

func TestCompile_DescendantFiltersUseExists(t *testing.T) {
	c := New().
		Games(GameSeason.Eq(2009)).
		Stats(Category(models.StatPassingYds).Ge(40))

	plan, err := Compile(c, ShapeGames)
	require.NoError(t, err)

	assert.Equal(t, selectGames+
		" WHERE games.season_year = $1"+
		" AND EXISTS (SELECT 1 FROM play_stats"+
		" WHERE play_stats.game_id = games.game_id"+
		" AND (play_stats.category = 'passing_yds' AND play_stats.value >= $2))"+
		" ORDER BY games.game_id", plan.SQL)
	assert.Equal(t, []any{2009, 40}, plan.Args)
}

func TestCompile_ExistsBridgesDrivesAndStatsThroughPlays(t *testing.T) {
	c := New().
		Games(GameTeam.Eq("NE")).
		Drives(DriveResult.Eq("Touchdown")).
		Stats(Category(models.StatRushingYds).Ge(10))

	plan, err := Compile(c, ShapeGames)
	require.NoError(t, err)

	assert.Equal(t, selectGames+
		" WHERE (games.home_team = $1 OR games.away_team = $2)"+
		" AND EXISTS (SELECT 1 FROM drives"+
		" JOIN plays ON plays.game_id = drives.game_id AND plays.drive_id = drives.drive_id"+
		" JOIN play_stats ON play_stats.game_id = plays.game_id AND play_stats.play_id = plays.play_id"+
		" WHERE drives.game_id = games.game_id"+
		" AND drives.result = $3"+
		" AND (play_stats.category = 'rushing_yds' AND play_stats.value >= $4))"+
		" ORDER BY games.game_id", plan.SQL)
	assert.Equal(t, []any{"NE", "NE", "Touchdown", 10}, plan.Args)
}

func TestCompile_DriveBaseBridgesStatFiltersThroughPlays(t *testing.T) {
	plan, err := Compile(New().Stats(StatPlayer.Eq("00-0026143")), ShapeDrives)
	require.NoError(t, err)

	assert.Equal(t, selectDrives+
		" WHERE EXISTS (SELECT 1 FROM plays"+
		" JOIN play_stats ON play_stats.game_id = plays.game_id AND play_stats.play_id = plays.play_id"+
		" WHERE plays.game_id = drives.game_id AND plays.drive_id = drives.drive_id"+
		" AND play_stats.player_id = $1)"+
		" ORDER BY drives.game_id, drives.drive_id", plan.SQL)
	assert.Equal(t, []any{"00-0026143"}, plan.Args)
}

func TestCompile_CategoryConditionAtRowLevel(t *testing.T) {
	plan, err := Compile(New().Stats(Category(models.StatRushingYds).Gt(10)), ShapeStats)
	require.NoError(t, err)

	assert.Equal(t, selectStats+
		" WHERE (play_stats.category = 'rushing_yds' AND play_stats.value > $1)"+
		" ORDER BY play_stats.game_id, play_stats.play_id, play_stats.player_id, play_stats.category", plan.SQL)
	assert.Equal(t, []any{10}, plan.Args)
}

func TestCompile_SortKeyReplacesItsSecondary(t *testing.T) {
	plan, err := Compile(New().Plays(PlayQuarter.Eq(4)).Sort(PlayID, Desc), ShapePlays)
	require.NoError(t, err)

	assert.Equal(t, selectPlays+
		" WHERE plays.quarter = $1"+
		" ORDER BY plays.play_id DESC, plays.game_id", plan.SQL)
}

func TestCompile_TotalsShape(t *testing.T) {
	c := New().
		Games(GameSeason.Eq(2009)).
		Having(Category(models.StatPassingYds).Ge(300)).
		Sort(Category(models.StatPassingYds), Desc).
		Limit(10)

	plan, err := Compile(c, ShapeTotals)
	require.NoError(t, err, "Should compile the aggregate shape")

	assert.Contains(t, plan.SQL, "SELECT play_stats.player_id, COALESCE(SUM(play_stats.value) FILTER (WHERE play_stats.category = 'passing_att'), 0) AS passing_att")
	assert.Contains(t, plan.SQL, "AS kicking_fga FROM play_stats JOIN games ON games.game_id = play_stats.game_id")
	assert.Contains(t, plan.SQL, " WHERE games.season_year = $1 GROUP BY play_stats.player_id")
	assert.Contains(t, plan.SQL, " HAVING COALESCE(SUM(play_stats.value) FILTER (WHERE play_stats.category = 'passing_yds'), 0) >= $2")
	assert.Contains(t, plan.SQL, " ORDER BY passing_yds DESC, play_stats.player_id LIMIT 10")
	assert.Equal(t, []any{2009, 300}, plan.Args)
}

func TestCompile_TotalsRowFiltersApplyBeforeGrouping(t *testing.T) {
	c := New().
		Stats(StatTeam.Eq("NE")).
		Having(Category(models.StatRushingYds).Gt(100))

	plan, err := Compile(c, ShapeTotals)
	require.NoError(t, err)

	assert.Contains(t, plan.SQL, " WHERE play_stats.team = $1 GROUP BY play_stats.player_id HAVING ",
		"Row filters must land in WHERE, not HAVING")
	assert.Equal(t, []any{"NE", 100}, plan.Args)
}

func TestCompile_TotalsWithoutUpstreamFiltersNeedsNoJoins(t *testing.T) {
	plan, err := Compile(New().Stats(StatPlayer.Eq("00-0026143")), ShapeTotals)
	require.NoError(t, err)

	assert.NotContains(t, plan.SQL, " JOIN ", "Stat-only aggregate criteria should stay on play_stats")
	assert.Contains(t, plan.SQL, " WHERE play_stats.player_id = $1 GROUP BY play_stats.player_id ORDER BY play_stats.player_id")
}

func TestCompile_TotalsDefaultOrderIsPlayerID(t *testing.T) {
	plan, err := Compile(New(), ShapeTotals)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, " GROUP BY play_stats.player_id ORDER BY play_stats.player_id")
}

func TestCompile_InvalidCriteria(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		shape    Shape
	}{
		{"having on a row shape", New().Having(Category(models.StatPassingYds).Ge(300)), ShapeGames},
		{"sort field outside the shape", New().Sort(PlayDown, Asc), ShapeGames},
		{"sort on the team pseudo field", New().Sort(GameTeam, Asc), ShapeGames},
		{"category sort on a row shape", New().Sort(Category(models.StatRushingYds), Asc), ShapeStats},
		{"totals sort on a game field", New().Sort(GameWeek, Asc), ShapeTotals},
		{"empty In", New().Games(GameTeam.In()), ShapeGames},
		{"nil comparison value", New().Games(GameSeason.Eq(nil)), ShapeGames},
		{"nil In member", New().Games(GameID.In("a", nil)), ShapeGames},
		{"range operator on the team pseudo field", New().Games(GameTeam.Gt("NE")), ShapeGames},
		{"condition in the wrong scope", New().Games(PlayDown.Eq(3)), ShapeGames},
		{"condition on the zero field", New().Games(Field{}.Eq(1)), ShapeGames},
		{"non-positive limit", New().Limit(0), ShapeGames},
		{"condition on an unknown stat category", New().Stats(Category("no_such_category").Ge(1)), ShapeTotals},
		{"having on an unknown stat category", New().Having(Category("passing_epa").Ge(300)), ShapeTotals},
		{"sort on an unknown stat category", New().Sort(Category("passing_epa"), Desc), ShapeTotals},
		{"hostile category never reaches the renderer", New().Stats(Category("x') OR ('1'='1").Ge(1)), ShapeTotals},
		{"having on a non-category field", New().Having(GameWeek.Ge(2)), ShapeTotals},
		{"sort on the zero field", New().Sort(Field{}, Asc), ShapeGames},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Compile(tt.criteria, tt.shape)
			require.Error(t, err, "Should reject the criteria")
			assert.True(t, errors.Is(err, ErrInvalidCriteria), "Error should wrap ErrInvalidCriteria, got %v", err)
			assert.Nil(t, plan, "No plan should be produced")
		})
	}
}

func TestCompile_FirstConstructionErrorWins(t *testing.T) {
	c := New().Limit(-1).Games(PlayDown.Eq(3))

	require.Error(t, c.Err(), "Err should expose the problem before compilation")

	_, err := Compile(c, ShapeGames)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCriteria))
	assert.Contains(t, err.Error(), "limit", "The first recorded error should win")
}

func TestCriteria_ChainsDoNotMutateTheReceiver(t *testing.T) {
	base := New().Games(GameSeason.Eq(2009))

	withDrives := base.Drives(DriveResult.Eq("Touchdown"))
	withSort := base.Sort(GameStart, Desc)
	broken := base.Limit(0)

	require.NoError(t, base.Err(), "A broken derivation must not poison the base")
	require.Error(t, broken.Err())

	basePlan, err := Compile(base, ShapeGames)
	require.NoError(t, err)
	assert.NotContains(t, basePlan.SQL, "drives", "Derived conditions must not leak into the base")
	assert.NotContains(t, basePlan.SQL, "start_time DESC")

	drivesPlan, err := Compile(withDrives, ShapeGames)
	require.NoError(t, err)
	assert.Contains(t, drivesPlan.SQL, "EXISTS (SELECT 1 FROM drives")

	sortPlan, err := Compile(withSort, ShapeGames)
	require.NoError(t, err)
	assert.Contains(t, sortPlan.SQL, " ORDER BY games.start_time DESC, games.game_id")
}

func TestCompile_IsDeterministic(t *testing.T) {
	c := New().
		Games(GameSeason.Eq(2009), GameTeam.In("NE", "NYJ")).
		Drives(DriveResult.Eq("Touchdown")).
		Plays(PlayDown.Eq(3)).
		Stats(Category(models.StatRushingYds).Ge(5))

	first, err := Compile(c, ShapeGames)
	require.NoError(t, err)
	second, err := Compile(c, ShapeGames)
	require.NoError(t, err)

	assert.Equal(t, first.SQL, second.SQL, "Identical criteria must render identical SQL")
	assert.Equal(t, first.Args, second.Args, "Identical criteria must bind identical args")
}
