// Package predicate translates filter, sort and pagination criteria into a
// backend-neutral parameterized predicate. User-supplied values only ever
// travel as bindings; column references are validated against the sheet
// schema before any query is constructed.
package predicate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapgrid/internal/schema"
)

// Operator is a filter comparison operator.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpGt         Operator = "gt"
	OpLt         Operator = "lt"
	OpGe         Operator = "ge"
	OpLe         Operator = "le"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startswith"
	OpEndsWith   Operator = "endswith"
	OpIn         Operator = "in"
	OpNotIn      Operator = "notin"
	OpIsNull     Operator = "isnull"
	OpNotNull    Operator = "notnull"
)

// setOperator reports whether the operator takes a value set.
func setOperator(op Operator) bool { return op == OpIn || op == OpNotIn }

// nullOperator reports whether the operator takes no value at all.
func nullOperator(op Operator) bool { return op == OpIsNull || op == OpNotNull }

// Filter is one filter criterion. Value is used by scalar operators, Values
// by the set operators.
type Filter struct {
	Column string
	Op     Operator
	Value  schema.Value
	Values []schema.Value
}

// Sort is one sort criterion. Direction tokens other than "desc" (including
// the empty default) sort ascending; this leniency is deliberate, while an
// unrecognized operator is a hard rejection.
type Sort struct {
	Column    string
	Direction string
}

// Binding is one named parameter with its driver-compatible value. Binding
// order is the order parameters appear in the rendered statement.
type Binding struct {
	Name  string
	Value any
}

// Condition is one predicate leaf: a validated column, an operator and the
// names of the bindings it consumes. Conditions are combined with AND.
type Condition struct {
	Column string
	Op     Operator
	Params []string
}

// Order is one ORDER BY entry.
type Order struct {
	Column     string
	Descending bool
}

// Predicate is the backend-neutral output of Build: predicate tree, ordered
// bindings, ordering and the offset/limit window.
type Predicate struct {
	Conditions []Condition
	Bindings   []Binding
	Order      []Order
	Offset     int
	Limit      int
}

// Build validates the criteria against the schema and constructs the
// predicate. Any invalid criterion rejects the whole request; nothing is
// partially applied. Page and pageSize ranges are the caller's concern
// (page >= 1, bounded pageSize); Build only derives the window from them.
func Build(s *schema.SheetSchema, filters []Filter, sorts []Sort, page, pageSize int) (*Predicate, error) {
	p := &Predicate{
		Offset: (page - 1) * pageSize,
		Limit:  pageSize,
	}

	param := 0
	nextParam := func(v schema.Value) string {
		param++
		name := "p" + strconv.Itoa(param)
		p.Bindings = append(p.Bindings, Binding{Name: name, Value: v.Native()})
		return name
	}

	for _, f := range filters {
		if !s.HasColumn(f.Column) {
			return nil, fmt.Errorf("%w: sheet %q has no column %q", schema.ErrValidation, s.ID, f.Column)
		}

		cond := Condition{Column: f.Column, Op: f.Op}
		switch {
		case nullOperator(f.Op):
			if !f.Value.IsNull() || len(f.Values) > 0 {
				return nil, fmt.Errorf("%w: operator %q on column %q takes no value", schema.ErrValidation, f.Op, f.Column)
			}

		case setOperator(f.Op):
			if !f.Value.IsNull() {
				return nil, fmt.Errorf("%w: operator %q on column %q takes a value set, not a scalar value", schema.ErrValidation, f.Op, f.Column)
			}
			if len(f.Values) == 0 {
				return nil, fmt.Errorf("%w: operator %q on column %q requires a non-empty value set", schema.ErrValidation, f.Op, f.Column)
			}
			for _, v := range f.Values {
				cond.Params = append(cond.Params, nextParam(v))
			}

		case f.Op == OpContains || f.Op == OpStartsWith || f.Op == OpEndsWith:
			if err := requireScalar(f); err != nil {
				return nil, err
			}
			cond.Params = append(cond.Params, nextParam(schema.Text(wildcard(f.Op, f.Value.Canonical()))))

		case f.Op == OpEq || f.Op == OpNe || f.Op == OpGt || f.Op == OpLt || f.Op == OpGe || f.Op == OpLe:
			if err := requireScalar(f); err != nil {
				return nil, err
			}
			cond.Params = append(cond.Params, nextParam(f.Value))

		default:
			return nil, fmt.Errorf("%w: unknown operator %q on column %q", schema.ErrValidation, f.Op, f.Column)
		}

		p.Conditions = append(p.Conditions, cond)
	}

	for _, srt := range sorts {
		if !s.HasColumn(srt.Column) {
			return nil, fmt.Errorf("%w: sheet %q has no column %q", schema.ErrValidation, s.ID, srt.Column)
		}
		p.Order = append(p.Order, Order{
			Column:     srt.Column,
			Descending: strings.EqualFold(srt.Direction, "desc"),
		})
	}

	// Default ordering: the full key sequence ascending, in declared order.
	// This keeps pagination stable across repeated queries with no sort.
	if len(p.Order) == 0 {
		for _, k := range s.KeyColumns {
			p.Order = append(p.Order, Order{Column: k})
		}
	}

	return p, nil
}

// requireScalar checks that a scalar operator carries exactly one value: no
// value set, and a non-null value. Value and Values are mutually exclusive by
// operator class; a mismatched combination rejects the request.
func requireScalar(f Filter) error {
	if len(f.Values) > 0 {
		return fmt.Errorf("%w: operator %q on column %q takes a scalar value, not a value set", schema.ErrValidation, f.Op, f.Column)
	}
	if f.Value.IsNull() {
		return fmt.Errorf("%w: operator %q on column %q requires a value", schema.ErrValidation, f.Op, f.Column)
	}
	return nil
}

// wildcard wraps a pattern value for the LIKE-style operators. LIKE escape
// characters in the user value are escaped so they match literally.
func wildcard(op Operator, v string) string {
	v = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(v)
	switch op {
	case OpContains:
		return "%" + v + "%"
	case OpStartsWith:
		return v + "%"
	case OpEndsWith:
		return "%" + v
	}
	return v
}
