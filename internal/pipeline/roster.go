package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"gridirondb/internal/feed"
	"gridirondb/internal/metrics"
	"gridirondb/internal/models"
)

// RefreshRosters sweeps every team whose roster is older than the configured
// interval. The cadence is persisted per team, so a restart never forces or
// skips a refresh. Teams the feed cannot answer for stay due and come back on
// the next sweep. Returns how many teams were refreshed.
func (p *Pipeline) RefreshRosters(ctx context.Context) (int, error) {
	teams, err := p.store.RosterDueTeams(ctx, p.rosterInterval)
	if err != nil {
		return 0, fmt.Errorf("failed to list roster-due teams: %w", err)
	}
	if len(teams) == 0 {
		return 0, nil
	}

	season := p.currentSeason(ctx)

	refreshed := 0
	var firstErr error
	for _, team := range teams {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}

		err := p.refreshTeamRoster(ctx, team, season)
		switch {
		case err == nil:
			refreshed++
			metrics.RostersRefreshed.Inc()
		case errors.Is(err, feed.ErrUnavailable):
			log.Debug().Str("team_id", team.TeamID).Err(err).Msg("Roster unavailable, team stays due")
		case errors.Is(err, feed.ErrMalformed):
			metrics.RecordError("pipeline", "malformed")
			log.Warn().Str("team_id", team.TeamID).Err(err).Msg("Rejected malformed roster")
		default:
			metrics.RecordError("pipeline", "roster")
			log.Error().Str("team_id", team.TeamID).Err(err).Msg("Roster refresh failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	log.Info().Int("due", len(teams)).Int("refreshed", refreshed).Msg("Roster sweep complete")
	return refreshed, firstErr
}

func (p *Pipeline) refreshTeamRoster(ctx context.Context, team *models.Team, season int) error {
	roster, err := p.source.TeamRoster(ctx, team.TeamID)
	if err != nil {
		return err
	}
	if roster.SeasonYear != 0 {
		season = roster.SeasonYear
	}

	commit := &RosterCommit{
		TeamID:      team.TeamID,
		SeasonYear:  season,
		RefreshedAt: time.Now(),
	}
	for i := range roster.Players {
		rp := &roster.Players[i]
		commit.Players = append(commit.Players, rosterPlayer(team.TeamID, rp))
		commit.Entries = append(commit.Entries, &models.RosterEntry{
			SeasonYear: season,
			TeamID:     team.TeamID,
			PlayerID:   rp.PlayerID,
			Position:   nullString(rp.Position),
		})
	}

	if err := p.store.CommitRoster(ctx, commit); err != nil {
		return fmt.Errorf("failed to commit roster for %s: %w", team.TeamID, err)
	}

	log.Debug().Str("team_id", team.TeamID).Int("players", len(commit.Players)).Msg("Roster refreshed")
	return nil
}

// currentSeason falls back to the wall clock when the feed has never reported
// a calendar position.
func (p *Pipeline) currentSeason(ctx context.Context) int {
	meta, err := p.store.CurrentMeta(ctx)
	if err == nil && meta.SeasonYear.Valid {
		return int(meta.SeasonYear.Int32)
	}
	return time.Now().Year()
}

func rosterPlayer(teamID string, rp *feed.RosterPlayer) *models.Player {
	return &models.Player{
		PlayerID:      rp.PlayerID,
		FullName:      rp.FullName,
		FirstName:     nullString(rp.FirstName),
		LastName:      nullString(rp.LastName),
		Team:          teamID,
		Position:      nullString(rp.Position),
		Status:        nullString(rp.Status),
		UniformNumber: nullInt32(rp.UniformNumber),
		Height:        nullInt32(rp.Height),
		Weight:        nullInt32(rp.Weight),
		College:       nullString(rp.College),
		YearsPro:      nullInt32(rp.YearsPro),
	}
}
