//go:build integration

package repository

import (
	"context"
	"database/sql"
	"testing"

	"gridirondb/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlayer(playerID, fullName, team string) *models.Player {
	return &models.Player{
		PlayerID:      playerID,
		FullName:      fullName,
		Team:          team,
		Position:      sql.NullString{String: "QB", Valid: true},
		Status:        sql.NullString{String: "Active", Valid: true},
		UniformNumber: sql.NullInt32{Int32: 12, Valid: true},
		Height:        sql.NullInt32{Int32: 76, Valid: true},
		Weight:        sql.NullInt32{Int32: 225, Valid: true},
		College:       sql.NullString{String: "Michigan", Valid: true},
		YearsPro:      sql.NullInt32{Int32: 10, Valid: true},
	}
}

func TestPlayerRepository_Upsert(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	require.NoError(t, db.Teams.EnsureExists(ctx, "NE"))
	require.NoError(t, db.Teams.EnsureExists(ctx, "TB"))

	player := testPlayer("00-0019596", "Tom Brady", "NE")
	require.NoError(t, db.Players.Upsert(ctx, player), "Should insert player")
	assert.False(t, player.CreatedAt.IsZero())

	got, err := db.Players.Get(ctx, "00-0019596")
	require.NoError(t, err)
	assert.Equal(t, "Tom Brady", got.FullName)
	assert.Equal(t, int32(12), got.UniformNumber.Int32)
	assert.Equal(t, "Michigan", got.College.String)

	// A trade moves the current team; the old membership survives in rosters.
	player.Team = "TB"
	player.YearsPro = sql.NullInt32{Int32: 20, Valid: true}
	require.NoError(t, db.Players.Upsert(ctx, player), "Should update player")

	got, err = db.Players.Get(ctx, "00-0019596")
	require.NoError(t, err)
	assert.Equal(t, "TB", got.Team)
	assert.Equal(t, int32(20), got.YearsPro.Int32)
}

func TestPlayerRepository_EnsureExists(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	require.NoError(t, db.Teams.EnsureExists(ctx, "NE"))

	require.NoError(t, db.Players.EnsureExists(ctx, "00-0026035", "J.Edelman", "NE"))

	got, err := db.Players.Get(ctx, "00-0026035")
	require.NoError(t, err)
	assert.Equal(t, "J.Edelman", got.FullName)
	assert.False(t, got.Position.Valid, "Play data carries no position")

	// The roster refresh fills the profile in; EnsureExists must not undo it.
	full := testPlayer("00-0026035", "Julian Edelman", "NE")
	require.NoError(t, db.Players.Upsert(ctx, full))
	require.NoError(t, db.Players.EnsureExists(ctx, "00-0026035", "J.Edelman", "NE"))

	got, err = db.Players.Get(ctx, "00-0026035")
	require.NoError(t, err)
	assert.Equal(t, "Julian Edelman", got.FullName, "EnsureExists should never overwrite")
	assert.True(t, got.Position.Valid)
}

func TestPlayerRepository_GetMissing(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	_, err := db.Players.Get(ctx, "00-9999999")
	assert.Error(t, err, "Should error for unknown player")
}

func TestPlayerRepository_SearchByName(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	require.NoError(t, db.Teams.EnsureExists(ctx, "NE"))
	require.NoError(t, db.Players.EnsureExists(ctx, "00-0019596", "Tom Brady", "NE"))
	require.NoError(t, db.Players.EnsureExists(ctx, "00-0030506", "Kyle Brady", "NE"))
	require.NoError(t, db.Players.EnsureExists(ctx, "00-0023436", "Wes Welker", "NE"))

	players, err := db.Players.SearchByName(ctx, "brady", 10)
	require.NoError(t, err)
	require.Len(t, players, 2, "Match should be case-insensitive")
	assert.Equal(t, "Kyle Brady", players[0].FullName, "Results sort by name")
	assert.Equal(t, "Tom Brady", players[1].FullName)

	players, err = db.Players.SearchByName(ctx, "brady", 1)
	require.NoError(t, err)
	assert.Len(t, players, 1, "Limit caps the result set")
}
