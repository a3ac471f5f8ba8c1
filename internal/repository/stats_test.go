//go:build integration

package repository

import (
	"context"
	"testing"

	"gridirondb/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStatPlay(t *testing.T, ctx context.Context, db *Database) string {
	t.Helper()

	gameID := seedPlayableGame(t, ctx, db)
	require.NoError(t, db.Plays.Upsert(ctx, testPlayRow(gameID, 1)))
	require.NoError(t, db.Players.EnsureExists(ctx, "00-0019596", "T.Brady", "NE"))
	require.NoError(t, db.Players.EnsureExists(ctx, "00-0023436", "W.Welker", "NE"))
	return gameID
}

func TestStatRepository_UpsertAndList(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	gameID := seedStatPlay(t, ctx, db)

	events := []*models.PlayStat{
		{GameID: gameID, PlayID: 1, PlayerID: "00-0019596", Team: "NE", Category: models.StatPassingYds, Value: 11},
		{GameID: gameID, PlayID: 1, PlayerID: "00-0023436", Team: "NE", Category: models.StatReceivingYds, Value: 11},
		{GameID: gameID, PlayID: 1, PlayerID: "00-0023436", Team: "NE", Category: models.StatReceivingRec, Value: 1},
	}
	for _, e := range events {
		require.NoError(t, db.Stats.Upsert(ctx, e), "Should insert stat event")
	}

	// Upserting the same key updates the value, not a second row.
	require.NoError(t, db.Stats.Upsert(ctx, &models.PlayStat{
		GameID: gameID, PlayID: 1, PlayerID: "00-0019596", Team: "NE",
		Category: models.StatPassingYds, Value: 13,
	}))

	stats, err := db.Stats.ListByPlay(ctx, gameID, 1)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, "00-0019596", stats[0].PlayerID, "Events list in key order")
	assert.Equal(t, 13, stats[0].Value, "The upsert replaced the value")
	assert.Equal(t, models.StatReceivingRec, stats[1].Category)
}

func TestStatRepository_DeleteByPlay(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	gameID := seedStatPlay(t, ctx, db)

	require.NoError(t, db.Stats.Upsert(ctx, &models.PlayStat{
		GameID: gameID, PlayID: 1, PlayerID: "00-0019596", Team: "NE",
		Category: models.StatPassingYds, Value: 11,
	}))
	require.NoError(t, db.Stats.Upsert(ctx, &models.PlayStat{
		GameID: gameID, PlayID: 1, PlayerID: "00-0023436", Team: "NE",
		Category: models.StatReceivingYds, Value: 11,
	}))

	// A correction may carry fewer events than the original play, so the
	// rewrite deletes before it reinserts.
	require.NoError(t, db.Stats.DeleteByPlay(ctx, gameID, 1))
	require.NoError(t, db.Stats.Upsert(ctx, &models.PlayStat{
		GameID: gameID, PlayID: 1, PlayerID: "00-0019596", Team: "NE",
		Category: models.StatPassingAtt, Value: 1,
	}))

	stats, err := db.Stats.ListByGame(ctx, gameID)
	require.NoError(t, err)
	require.Len(t, stats, 1, "Old events must not survive the rewrite")
	assert.Equal(t, models.StatPassingAtt, stats[0].Category)
}

func TestStatRepository_CopyInsert(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	gameID := seedStatPlay(t, ctx, db)

	events := []*models.PlayStat{
		{GameID: gameID, PlayID: 1, PlayerID: "00-0019596", Team: "NE", Category: models.StatPassingYds, Value: 11},
		{GameID: gameID, PlayID: 1, PlayerID: "00-0019596", Team: "NE", Category: models.StatPassingCmp, Value: 1},
		{GameID: gameID, PlayID: 1, PlayerID: "00-0023436", Team: "NE", Category: models.StatReceivingYds, Value: 11},
	}

	n, err := db.Stats.CopyInsert(ctx, events)
	require.NoError(t, err, "Should bulk insert stat events")
	assert.Equal(t, int64(3), n)

	stats, err := db.Stats.ListByGame(ctx, gameID)
	require.NoError(t, err)
	assert.Len(t, stats, 3)
}
