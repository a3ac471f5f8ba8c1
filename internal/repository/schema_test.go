package repository

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetVersion_GatesTheStatsExtension(t *testing.T) {
	assert.Equal(t, len(migrations), targetVersion(true), "With stats enabled every migration applies")
	assert.Equal(t, statsExtensionVersion-1, targetVersion(false), "Without stats the schema stops short of play_stats")
}

func TestStatsExtensionIsTheLastMigration(t *testing.T) {
	require.Equal(t, len(migrations), statsExtensionVersion, "The statistics extension must stay last so it can be skipped")

	stats := strings.Join(migrations[statsExtensionVersion-1], "\n")
	assert.Contains(t, stats, "CREATE TABLE play_stats", "The gated migration should be the one creating play_stats")

	for _, stmts := range migrations[:statsExtensionVersion-1] {
		for _, stmt := range stmts {
			assert.NotContains(t, stmt, "play_stats", "Core migrations must not depend on the statistics extension")
		}
	}
}
