package query

import (
	"sort"

	"gridirondb/internal/models"
)

// SumStats folds raw statistical events into per-player totals, ordered by
// player ID. It computes in memory exactly what the aggregate shape computes
// in SQL, which is what the equivalence tests between the two paths lean on.
func SumStats(stats []*models.PlayStat) []*models.PlayerTotals {
	byPlayer := make(map[string]*models.PlayerTotals)
	for _, s := range stats {
		t, ok := byPlayer[s.PlayerID]
		if !ok {
			t = &models.PlayerTotals{PlayerID: s.PlayerID, Totals: make(map[models.StatCategory]int64)}
			byPlayer[s.PlayerID] = t
		}
		t.Totals[s.Category] += int64(s.Value)
	}

	out := make([]*models.PlayerTotals, 0, len(byPlayer))
	for _, t := range byPlayer {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// SortTotals orders totals by one category's value, ties broken by player ID
// so the ordering is stable across runs.
func SortTotals(totals []*models.PlayerTotals, cat models.StatCategory, dir Direction) {
	sort.SliceStable(totals, func(i, j int) bool {
		a, b := totals[i].Total(cat), totals[j].Total(cat)
		if a == b {
			return totals[i].PlayerID < totals[j].PlayerID
		}
		if dir == Desc {
			return a > b
		}
		return a < b
	})
}
