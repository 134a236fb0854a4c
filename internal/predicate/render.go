package predicate

import (
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapgrid/internal/dialect"
	"github.com/leapstack-labs/leapgrid/internal/schema"
)

// RenderSelect renders the data query: declared columns, predicate, ordering
// and the offset/limit window, with values passed as bound arguments.
func RenderSelect(d *dialect.Dialect, s *schema.SheetSchema, p *Predicate) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, name := range s.ColumnNames() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdentifier(name))
	}
	b.WriteString(" FROM ")
	b.WriteString(d.QuoteIdentifier(s.Table))

	args := renderWhere(&b, d, p)

	b.WriteString(" ORDER BY ")
	for i, o := range p.Order {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdentifier(o.Column))
		if o.Descending {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}

	b.WriteString(" LIMIT ")
	b.WriteString(strconv.Itoa(p.Limit))
	b.WriteString(" OFFSET ")
	b.WriteString(strconv.Itoa(p.Offset))

	return b.String(), args
}

// RenderCount renders the count query: same predicate, no ordering or window.
func RenderCount(d *dialect.Dialect, s *schema.SheetSchema, p *Predicate) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(d.QuoteIdentifier(s.Table))
	args := renderWhere(&b, d, p)
	return b.String(), args
}

// renderWhere appends the WHERE clause and returns the bound arguments in
// placeholder order.
func renderWhere(b *strings.Builder, d *dialect.Dialect, p *Predicate) []any {
	// Bindings are consumed strictly in order, so placeholder position n
	// always corresponds to args[n-1].
	args := make([]any, 0, len(p.Bindings))
	pos := make(map[string]int, len(p.Bindings))
	for i, bind := range p.Bindings {
		args = append(args, bind.Value)
		pos[bind.Name] = i + 1
	}

	if len(p.Conditions) == 0 {
		return args
	}

	b.WriteString(" WHERE ")
	for i, c := range p.Conditions {
		if i > 0 {
			b.WriteString(" AND ")
		}
		col := d.QuoteIdentifier(c.Column)

		switch c.Op {
		case OpIsNull:
			b.WriteString(col + " IS NULL")
		case OpNotNull:
			b.WriteString(col + " IS NOT NULL")
		case OpIn, OpNotIn:
			b.WriteString(col)
			if c.Op == OpNotIn {
				b.WriteString(" NOT IN (")
			} else {
				b.WriteString(" IN (")
			}
			for j, name := range c.Params {
				if j > 0 {
					b.WriteString(", ")
				}
				b.WriteString(d.Placeholder(pos[name]))
			}
			b.WriteString(")")
		case OpContains, OpStartsWith, OpEndsWith:
			b.WriteString(col + " LIKE " + d.Placeholder(pos[c.Params[0]]) + ` ESCAPE '\'`)
		default:
			b.WriteString(col + " " + comparison(c.Op) + " " + d.Placeholder(pos[c.Params[0]]))
		}
	}
	return args
}

func comparison(op Operator) string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpGt:
		return ">"
	case OpLt:
		return "<"
	case OpGe:
		return ">="
	case OpLe:
		return "<="
	}
	return "="
}
