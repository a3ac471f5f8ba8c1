// Package query compiles chained filter/sort/limit criteria into SQL over the
// game -> drive -> play -> stat hierarchy. Criteria values are immutable;
// compilation validates everything before any statement reaches the database.
package query

import (
	"errors"
	"fmt"
)

// ErrInvalidCriteria marks malformed or inconsistent query construction. It
// always surfaces before any storage access and is recoverable by correcting
// the criteria.
var ErrInvalidCriteria = errors.New("invalid criteria")

// Direction orders a sort key.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

type op int

const (
	opEq op = iota
	opNe
	opLt
	opLe
	opGt
	opGe
	opIn
)

var opSQL = [...]string{opEq: "=", opNe: "<>", opLt: "<", opLe: "<=", opGt: ">", opGe: ">="}

// Cond is one comparison against a field.
type Cond struct {
	field  Field
	op     op
	value  any
	values []any
}

// Eq matches rows where the field equals v.
func (f Field) Eq(v any) Cond { return Cond{field: f, op: opEq, value: v} }

// Ne matches rows where the field differs from v.
func (f Field) Ne(v any) Cond { return Cond{field: f, op: opNe, value: v} }

// Lt matches rows where the field is less than v.
func (f Field) Lt(v any) Cond { return Cond{field: f, op: opLt, value: v} }

// Le matches rows where the field is at most v.
func (f Field) Le(v any) Cond { return Cond{field: f, op: opLe, value: v} }

// Gt matches rows where the field is greater than v.
func (f Field) Gt(v any) Cond { return Cond{field: f, op: opGt, value: v} }

// Ge matches rows where the field is at least v.
func (f Field) Ge(v any) Cond { return Cond{field: f, op: opGe, value: v} }

// In matches rows where the field equals any of vs.
func (f Field) In(vs ...any) Cond { return Cond{field: f, op: opIn, values: vs} }

func (c Cond) validate() error {
	if c.field.zero() {
		return fmt.Errorf("%w: condition on unknown field", ErrInvalidCriteria)
	}
	if c.field.category != "" && !c.field.category.Valid() {
		return fmt.Errorf("%w: unknown stat category %q", ErrInvalidCriteria, string(c.field.category))
	}
	if c.op == opIn {
		if len(c.values) == 0 {
			return fmt.Errorf("%w: empty In() on field %s", ErrInvalidCriteria, c.field.name)
		}
		for _, v := range c.values {
			if v == nil {
				return fmt.Errorf("%w: nil value in In() on field %s", ErrInvalidCriteria, c.field.name)
			}
		}
		return nil
	}
	if c.value == nil {
		return fmt.Errorf("%w: nil value on field %s", ErrInvalidCriteria, c.field.name)
	}
	if c.field.teamSplit && c.op != opEq && c.op != opNe {
		return fmt.Errorf("%w: field team supports only Eq, Ne and In", ErrInvalidCriteria)
	}
	return nil
}

type sortSpec struct {
	field Field
	dir   Direction
}

// Criteria is an immutable filter/sort/limit specification. Every chained
// call returns a copy, so a partially built value can be reused as a template
// from multiple goroutines. Construction problems stick to the value and
// surface when it is compiled, before any query executes.
type Criteria struct {
	conds    []Cond
	aggConds []Cond
	sort     *sortSpec
	limit    int
	hasLimit bool
	err      error
}

// New returns an empty criteria matching everything.
func New() Criteria { return Criteria{} }

func (c Criteria) clone() Criteria {
	out := c
	out.conds = append([]Cond(nil), c.conds...)
	out.aggConds = append([]Cond(nil), c.aggConds...)
	if c.sort != nil {
		s := *c.sort
		out.sort = &s
	}
	return out
}

func (c Criteria) appendScoped(t table, conds []Cond) Criteria {
	out := c.clone()
	for _, cond := range conds {
		if err := cond.validate(); err != nil {
			if out.err == nil {
				out.err = err
			}
			continue
		}
		if cond.field.tbl != t {
			if out.err == nil {
				out.err = fmt.Errorf("%w: %s is a %s field", ErrInvalidCriteria, cond.field.name, cond.field.tbl)
			}
			continue
		}
		out.conds = append(out.conds, cond)
	}
	return out
}

// Games adds row-level conditions on game columns.
func (c Criteria) Games(conds ...Cond) Criteria { return c.appendScoped(tableGames, conds) }

// Drives adds row-level conditions on drive columns.
func (c Criteria) Drives(conds ...Cond) Criteria { return c.appendScoped(tableDrives, conds) }

// Plays adds row-level conditions on play columns.
func (c Criteria) Plays(conds ...Cond) Criteria { return c.appendScoped(tablePlays, conds) }

// Stats adds row-level conditions on statistical event columns. These filter
// which rows contribute, so in the aggregate shape they apply before
// summation.
func (c Criteria) Stats(conds ...Cond) Criteria { return c.appendScoped(tableStats, conds) }

// Having adds post-aggregation conditions on per-player category sums. Only
// the aggregate shape accepts them.
func (c Criteria) Having(conds ...Cond) Criteria {
	out := c.clone()
	for _, cond := range conds {
		if err := cond.validate(); err != nil {
			if out.err == nil {
				out.err = err
			}
			continue
		}
		if cond.field.category == "" {
			if out.err == nil {
				out.err = fmt.Errorf("%w: Having needs a stat category field, got %s", ErrInvalidCriteria, cond.field.name)
			}
			continue
		}
		out.aggConds = append(out.aggConds, cond)
	}
	return out
}

// Sort sets the single sort key. The field must be part of the result shape
// the criteria is compiled against; a stable secondary key on the shape's
// natural key is always appended, so equal sort values cannot reorder across
// executions.
func (c Criteria) Sort(f Field, dir Direction) Criteria {
	out := c.clone()
	if f.zero() {
		if out.err == nil {
			out.err = fmt.Errorf("%w: sort on unknown field", ErrInvalidCriteria)
		}
		return out
	}
	if f.category != "" && !f.category.Valid() {
		if out.err == nil {
			out.err = fmt.Errorf("%w: sort on unknown stat category %q", ErrInvalidCriteria, string(f.category))
		}
		return out
	}
	if dir != Asc && dir != Desc {
		if out.err == nil {
			out.err = fmt.Errorf("%w: sort direction must be Asc or Desc", ErrInvalidCriteria)
		}
		return out
	}
	out.sort = &sortSpec{field: f, dir: dir}
	return out
}

// Limit caps the result count, applied strictly after the sort.
func (c Criteria) Limit(n int) Criteria {
	out := c.clone()
	if n <= 0 {
		if out.err == nil {
			out.err = fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidCriteria, n)
		}
		return out
	}
	out.limit = n
	out.hasLimit = true
	return out
}

// Err returns the first construction problem recorded on the value, if any.
// Compile reports the same error; Err just lets callers check earlier.
func (c Criteria) Err() error { return c.err }
