//go:build integration

package repository

import (
	"database/sql"
	"testing"
	"time"

	"gridirondb/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeamRepository_Upsert(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	team := &models.Team{
		TeamID:     "NE",
		City:       "New England",
		Name:       "Patriots",
		Conference: sql.NullString{String: "AFC", Valid: true},
		Division:   sql.NullString{String: "East", Valid: true},
	}

	require.NoError(t, db.Teams.Upsert(ctx, team), "Should insert team")
	assert.False(t, team.RosterRefreshedAt.Valid, "A new team has no roster refresh stamp")

	// Update in place
	team.City = "Boston"
	require.NoError(t, db.Teams.Upsert(ctx, team), "Should update team")

	retrieved, err := db.Teams.Get(ctx, "NE")
	require.NoError(t, err)
	assert.Equal(t, "Boston", retrieved.City)
	assert.Equal(t, "AFC", retrieved.Conference.String)
}

func TestTeamRepository_EnsureExists(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	require.NoError(t, db.Teams.EnsureExists(ctx, "DEN"))

	placeholder, err := db.Teams.Get(ctx, "DEN")
	require.NoError(t, err)
	assert.Equal(t, "DEN", placeholder.Name, "Placeholder name falls back to the abbreviation")
	assert.Equal(t, "", placeholder.City)

	// A full upsert fills in the details; EnsureExists afterwards must not
	// wipe them back out.
	require.NoError(t, db.Teams.Upsert(ctx, &models.Team{TeamID: "DEN", City: "Denver", Name: "Broncos"}))
	require.NoError(t, db.Teams.EnsureExists(ctx, "DEN"))

	kept, err := db.Teams.Get(ctx, "DEN")
	require.NoError(t, err)
	assert.Equal(t, "Denver", kept.City, "EnsureExists should never overwrite an existing row")
	assert.Equal(t, "Broncos", kept.Name)
}

func TestTeamRepository_ListRosterDue(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	require.NoError(t, db.Teams.Upsert(ctx, &models.Team{TeamID: "NE", City: "New England", Name: "Patriots"}))
	require.NoError(t, db.Teams.Upsert(ctx, &models.Team{TeamID: "NYJ", City: "New York", Name: "Jets"}))
	require.NoError(t, db.Teams.EnsureExists(ctx, "UNK"))

	// Fresh stamp on NYJ, stale stamp on NE.
	require.NoError(t, db.Teams.TouchRosterRefreshed(ctx, "NYJ", time.Now()))
	require.NoError(t, db.Teams.TouchRosterRefreshed(ctx, "NE", time.Now().Add(-13*time.Hour)))

	due, err := db.Teams.ListRosterDue(ctx, 12*time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 1, "Only the stale team is due")
	assert.Equal(t, "NE", due[0].TeamID)

	// A team never refreshed is always due, and sorts first.
	require.NoError(t, db.Teams.Upsert(ctx, &models.Team{TeamID: "DEN", City: "Denver", Name: "Broncos"}))
	due, err = db.Teams.ListRosterDue(ctx, 12*time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "DEN", due[0].TeamID, "Never-refreshed teams sort before stale ones")
	assert.Equal(t, "NE", due[1].TeamID)

	for _, team := range due {
		assert.NotEqual(t, "UNK", team.TeamID, "The placeholder team never gets a roster sweep")
	}
}

func TestTeamRepository_TouchRosterRefreshed(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	require.NoError(t, db.Teams.Upsert(ctx, &models.Team{TeamID: "NE", City: "New England", Name: "Patriots"}))

	stamp := time.Now().Truncate(time.Second)
	require.NoError(t, db.Teams.TouchRosterRefreshed(ctx, "NE", stamp))

	team, err := db.Teams.Get(ctx, "NE")
	require.NoError(t, err)
	require.True(t, team.RosterRefreshedAt.Valid)
	assert.WithinDuration(t, stamp, team.RosterRefreshedAt.Time, time.Second)

	assert.Error(t, db.Teams.TouchRosterRefreshed(ctx, "NOPE", stamp), "Stamping an unknown team should fail")
}
