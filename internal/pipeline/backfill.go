package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"gridirondb/internal/feed"
	"gridirondb/internal/models"
	"gridirondb/internal/repository"
)

// BulkLoadGame writes one complete snapshot into a game with no committed
// plays, using the COPY fast path instead of per-row upserts. The caller is
// responsible for only loading empty games; plays of a populated game would
// collide on their primary key and roll the whole load back.
func (s *DBStore) BulkLoadGame(ctx context.Context, game *models.Game, snap *feed.GameSnapshot, withStats bool) (int, int, error) {
	if snap.GameID != game.GameID {
		return 0, 0, fmt.Errorf("%w: asked for game %s, snapshot answered %s", feed.ErrMalformed, game.GameID, snap.GameID)
	}

	teams := map[string]bool{game.HomeTeam: true, game.AwayTeam: true}
	players := make(map[string]PlayerRef)

	drives := make([]*models.Drive, 0, len(snap.Drives))
	for i := range snap.Drives {
		d := snapDrive(game.GameID, &snap.Drives[i])
		teams[d.PosTeam] = true
		drives = append(drives, d)
	}

	plays := make([]*models.Play, 0, len(snap.Plays))
	var stats []*models.PlayStat
	watermark := 0
	for i := range snap.Plays {
		ps := &snap.Plays[i]
		play := snapPlay(game.GameID, ps)
		teams[play.PosTeam] = true
		plays = append(plays, play)
		if ps.Sequence > watermark {
			watermark = ps.Sequence
		}
		if !withStats {
			continue
		}
		for _, e := range ps.Stats {
			stat := snapStat(game.GameID, ps.Sequence, &e)
			teams[stat.Team] = true
			if _, ok := players[stat.PlayerID]; !ok {
				name := e.PlayerName
				if name == "" {
					name = e.PlayerID
				}
				players[stat.PlayerID] = PlayerRef{PlayerID: stat.PlayerID, Name: name, Team: stat.Team}
			}
			stats = append(stats, stat)
		}
	}

	teamList := make([]string, 0, len(teams))
	for team := range teams {
		teamList = append(teamList, team)
	}
	sort.Strings(teamList)

	playerList := make([]PlayerRef, 0, len(players))
	for _, ref := range players {
		playerList = append(playerList, ref)
	}
	sort.Slice(playerList, func(i, j int) bool { return playerList[i].PlayerID < playerList[j].PlayerID })

	err := s.db.InTx(ctx, func(tx *repository.Tx) error {
		for _, team := range teamList {
			if err := tx.Teams.EnsureExists(ctx, team); err != nil {
				return err
			}
		}
		for _, ref := range playerList {
			if err := tx.Players.EnsureExists(ctx, ref.PlayerID, ref.Name, ref.Team); err != nil {
				return err
			}
		}
		if err := tx.Games.UpsertSchedule(ctx, game); err != nil {
			return err
		}
		// UpsertSchedule scans the stored live fields back into the row, so
		// the snapshot's state goes on after it, not before.
		game.HomeScore = sql.NullInt32{Int32: int32(snap.HomeScore), Valid: true}
		game.AwayScore = sql.NullInt32{Int32: int32(snap.AwayScore), Valid: true}
		game.Status = snap.Status
		game.Finalizing = false
		if err := tx.Games.UpdateLive(ctx, game); err != nil {
			return err
		}
		for _, d := range drives {
			if err := tx.Drives.Upsert(ctx, d); err != nil {
				return err
			}
		}
		if _, err := tx.Plays.CopyInsert(ctx, plays); err != nil {
			return err
		}
		if _, err := tx.Stats.CopyInsert(ctx, stats); err != nil {
			return err
		}
		return tx.Games.SetWatermark(ctx, game.GameID, watermark)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to bulk load game %s: %w", game.GameID, err)
	}

	return len(plays), len(stats), nil
}
