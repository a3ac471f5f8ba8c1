package query

import (
	"fmt"
	"strings"

	"gridirondb/internal/models"
)

// Shape selects the result row type a criteria compiles against.
type Shape int

const (
	// ShapeGames yields one game per matching row set.
	ShapeGames Shape = iota
	// ShapeDrives yields drives.
	ShapeDrives
	// ShapePlays yields plays.
	ShapePlays
	// ShapeStats yields raw statistical events.
	ShapeStats
	// ShapeTotals yields one row per player with every category summed over
	// the matching events. Row-level filters apply before the summation;
	// sort and limit apply after.
	ShapeTotals
)

func (s Shape) String() string {
	switch s {
	case ShapeGames:
		return "games"
	case ShapeDrives:
		return "drives"
	case ShapePlays:
		return "plays"
	case ShapeStats:
		return "stats"
	case ShapeTotals:
		return "totals"
	}
	return "unknown"
}

func (s Shape) base() table {
	switch s {
	case ShapeGames:
		return tableGames
	case ShapeDrives:
		return tableDrives
	case ShapePlays:
		return tablePlays
	}
	return tableStats
}

var tableNames = [...]string{
	tableGames:  "games",
	tableDrives: "drives",
	tablePlays:  "plays",
	tableStats:  "play_stats",
}

var selectLists = [...]string{
	tableGames: "games.game_id, games.season_year, games.season_phase, games.week, " +
		"games.start_time, games.home_team, games.away_team, games.home_score, " +
		"games.away_score, games.status, games.finalizing, games.play_watermark, " +
		"games.created_at, games.updated_at",
	tableDrives: "drives.game_id, drives.drive_id, drives.pos_team, drives.start_field, " +
		"drives.end_field, drives.result, drives.play_count, drives.yards_gained, " +
		"drives.first_downs, drives.created_at, drives.updated_at",
	tablePlays: "plays.game_id, plays.play_id, plays.drive_id, plays.quarter, " +
		"plays.pos_team, plays.down, plays.yards_to_go, plays.yardline, plays.note, " +
		"plays.description, plays.content_hash, plays.created_at, plays.updated_at",
	tableStats: "play_stats.game_id, play_stats.play_id, play_stats.player_id, " +
		"play_stats.team, play_stats.category, play_stats.value",
}

// secondaryKeys is the stable tie-break appended to every ORDER BY: the base
// table's natural key, so repeated execution over unchanged data returns an
// identical ordering.
var secondaryKeys = [...][]string{
	tableGames:  {"games.game_id"},
	tableDrives: {"drives.game_id", "drives.drive_id"},
	tablePlays:  {"plays.game_id", "plays.play_id"},
	tableStats:  {"play_stats.game_id", "play_stats.play_id", "play_stats.player_id", "play_stats.category"},
}

func sortable(f Field, shape Shape) bool {
	if shape == ShapeTotals {
		if f.category != "" {
			return true
		}
		return f.column == "play_stats.player_id"
	}
	return !f.teamSplit && f.category == "" && f.tbl == shape.base()
}

// Plan is one compiled, executable statement.
type Plan struct {
	SQL  string
	Args []any
}

// Compile validates the criteria against a result shape and renders its SQL
// plan. Every validation failure wraps ErrInvalidCriteria and surfaces here,
// before anything touches the database.
func Compile(c Criteria, shape Shape) (*Plan, error) {
	if c.err != nil {
		return nil, c.err
	}
	if len(c.aggConds) > 0 && shape != ShapeTotals {
		return nil, fmt.Errorf("%w: Having conditions require the aggregate shape, not %s", ErrInvalidCriteria, shape)
	}
	if c.sort != nil && !sortable(c.sort.field, shape) {
		return nil, fmt.Errorf("%w: cannot sort %s results by %s", ErrInvalidCriteria, shape, c.sort.field.name)
	}

	var parts [tableStats + 1][]Cond
	for _, cond := range c.conds {
		parts[cond.field.tbl] = append(parts[cond.field.tbl], cond)
	}

	b := &planBuilder{}
	if shape == ShapeTotals {
		return b.buildTotals(c, parts)
	}
	return b.buildRows(c, shape, parts)
}

type planBuilder struct {
	args []any
}

func (b *planBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *planBuilder) buildRows(c Criteria, shape Shape, parts [tableStats + 1][]Cond) (*Plan, error) {
	base := shape.base()

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(selectLists[base])
	sb.WriteString(" FROM ")
	sb.WriteString(tableNames[base])

	for _, join := range ancestorJoins(base, parts) {
		sb.WriteString(" JOIN ")
		sb.WriteString(join)
	}

	var where []string
	for t := tableGames; t <= base; t++ {
		for _, cond := range parts[t] {
			where = append(where, b.renderCond(cond))
		}
	}
	if clause := b.existsClause(base, parts); clause != "" {
		where = append(where, clause)
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(rowOrder(c, base), ", "))

	if c.hasLimit {
		fmt.Fprintf(&sb, " LIMIT %d", c.limit)
	}

	return &Plan{SQL: sb.String(), Args: b.args}, nil
}

func (b *planBuilder) buildTotals(c Criteria, parts [tableStats + 1][]Cond) (*Plan, error) {
	var sb strings.Builder
	sb.WriteString("SELECT play_stats.player_id")
	for _, cat := range models.StatCategories {
		fmt.Fprintf(&sb, ", %s AS %s", sumExpr(cat), cat)
	}
	sb.WriteString(" FROM play_stats")

	for _, join := range ancestorJoins(tableStats, parts) {
		sb.WriteString(" JOIN ")
		sb.WriteString(join)
	}

	var where []string
	for t := tableGames; t <= tableStats; t++ {
		for _, cond := range parts[t] {
			where = append(where, b.renderCond(cond))
		}
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	sb.WriteString(" GROUP BY play_stats.player_id")

	if len(c.aggConds) > 0 {
		having := make([]string, 0, len(c.aggConds))
		for _, cond := range c.aggConds {
			having = append(having, b.renderOp(sumExpr(cond.field.category), cond))
		}
		sb.WriteString(" HAVING ")
		sb.WriteString(strings.Join(having, " AND "))
	}

	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(totalsOrder(c), ", "))

	if c.hasLimit {
		fmt.Fprintf(&sb, " LIMIT %d", c.limit)
	}

	return &Plan{SQL: sb.String(), Args: b.args}, nil
}

// ancestorJoins returns 1:1 upward joins for condition tables above the base.
// Each row of the base table has at most one partner per ancestor, so these
// joins can never duplicate base rows. Drive conditions under a stat base
// route through plays, which carry the drive sequence.
func ancestorJoins(base table, parts [tableStats + 1][]Cond) []string {
	var joins []string
	switch base {
	case tableDrives:
		if len(parts[tableGames]) > 0 {
			joins = append(joins, "games ON games.game_id = drives.game_id")
		}
	case tablePlays:
		if len(parts[tableGames]) > 0 {
			joins = append(joins, "games ON games.game_id = plays.game_id")
		}
		if len(parts[tableDrives]) > 0 {
			joins = append(joins, "drives ON drives.game_id = plays.game_id AND drives.drive_id = plays.drive_id")
		}
	case tableStats:
		if len(parts[tableGames]) > 0 {
			joins = append(joins, "games ON games.game_id = play_stats.game_id")
		}
		if len(parts[tablePlays]) > 0 || len(parts[tableDrives]) > 0 {
			joins = append(joins, "plays ON plays.game_id = play_stats.game_id AND plays.play_id = play_stats.play_id")
		}
		if len(parts[tableDrives]) > 0 {
			joins = append(joins, "drives ON drives.game_id = plays.game_id AND drives.drive_id = plays.drive_id")
		}
	}
	return joins
}

// existsClause constrains the base by condition tables below it. A single
// correlated subquery walks the chain so conditions on different levels must
// hold on the same joined row, and the base row count is never multiplied or
// silently reduced by the join.
func (b *planBuilder) existsClause(base table, parts [tableStats + 1][]Cond) string {
	need := make(map[table]bool)
	for t := base + 1; t <= tableStats; t++ {
		if len(parts[t]) > 0 {
			need[t] = true
		}
	}
	if len(need) == 0 {
		return ""
	}

	// play_stats cannot correlate to drives directly; bridge through plays.
	if need[tableStats] && (need[tableDrives] || base == tableDrives) && !need[tablePlays] {
		need[tablePlays] = true
	}

	var chain []table
	for t := base + 1; t <= tableStats; t++ {
		if need[t] {
			chain = append(chain, t)
		}
	}

	var sb strings.Builder
	sb.WriteString("EXISTS (SELECT 1 FROM ")
	sb.WriteString(tableNames[chain[0]])
	for i := 1; i < len(chain); i++ {
		sb.WriteString(" JOIN ")
		sb.WriteString(tableNames[chain[i]])
		sb.WriteString(" ON ")
		sb.WriteString(chainJoin(chain[i-1], chain[i]))
	}

	clauses := []string{correlate(chain[0], base)}
	for _, t := range chain {
		for _, cond := range parts[t] {
			clauses = append(clauses, b.renderCond(cond))
		}
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(clauses, " AND "))
	sb.WriteString(")")
	return sb.String()
}

func chainJoin(outer, inner table) string {
	if outer == tableDrives && inner == tablePlays {
		return "plays.game_id = drives.game_id AND plays.drive_id = drives.drive_id"
	}
	return "play_stats.game_id = plays.game_id AND play_stats.play_id = plays.play_id"
}

func correlate(first, base table) string {
	if base == tableGames {
		return tableNames[first] + ".game_id = games.game_id"
	}
	if base == tableDrives {
		return "plays.game_id = drives.game_id AND plays.drive_id = drives.drive_id"
	}
	return "play_stats.game_id = plays.game_id AND play_stats.play_id = plays.play_id"
}

func (b *planBuilder) renderCond(cond Cond) string {
	f := cond.field
	if f.teamSplit {
		return b.renderTeamCond(cond)
	}
	if f.category != "" {
		return fmt.Sprintf("(play_stats.category = '%s' AND %s)", f.category, b.renderOp("play_stats.value", cond))
	}
	return b.renderOp(f.column, cond)
}

func (b *planBuilder) renderOp(expr string, cond Cond) string {
	if cond.op == opIn {
		ph := make([]string, len(cond.values))
		for i, v := range cond.values {
			ph[i] = b.bind(v)
		}
		return fmt.Sprintf("%s IN (%s)", expr, strings.Join(ph, ", "))
	}
	return fmt.Sprintf("%s %s %s", expr, opSQL[cond.op], b.bind(cond.value))
}

// renderTeamCond expands the "team" pseudo-field. Eq and In ask "did this
// team play", so they match either side; Ne asks "did this team sit out", so
// it must exclude both sides.
func (b *planBuilder) renderTeamCond(cond Cond) string {
	switch cond.op {
	case opNe:
		return fmt.Sprintf("(games.home_team <> %s AND games.away_team <> %s)",
			b.bind(cond.value), b.bind(cond.value))
	case opIn:
		home := b.renderOp("games.home_team", cond)
		away := b.renderOp("games.away_team", cond)
		return "(" + home + " OR " + away + ")"
	default:
		return fmt.Sprintf("(games.home_team = %s OR games.away_team = %s)",
			b.bind(cond.value), b.bind(cond.value))
	}
}

func sumExpr(cat models.StatCategory) string {
	return fmt.Sprintf("COALESCE(SUM(play_stats.value) FILTER (WHERE play_stats.category = '%s'), 0)", cat)
}

func rowOrder(c Criteria, base table) []string {
	var keys []string
	if c.sort != nil {
		keys = append(keys, c.sort.field.column+" "+string(c.sort.dir))
	}
	for _, k := range secondaryKeys[base] {
		if c.sort != nil && c.sort.field.column == k {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

func totalsOrder(c Criteria) []string {
	var keys []string
	if c.sort != nil {
		if f := c.sort.field; f.category != "" {
			keys = append(keys, string(f.category)+" "+string(c.sort.dir))
		} else {
			keys = append(keys, "play_stats.player_id "+string(c.sort.dir))
		}
	}
	if c.sort == nil || c.sort.field.category != "" {
		keys = append(keys, "play_stats.player_id")
	}
	return keys
}
