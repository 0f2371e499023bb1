package query

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// IDField is the field every in-memory ordering starts with.
const IDField = "id"

// Resolver returns the value of a field for one record: a string, a
// time.Time, or nil when the value is absent (SQL NULL). ok is false for
// fields the record does not know.
type Resolver func(name string) (value any, ok bool)

// tri is SQL three-valued logic.
type tri int8

const (
	triFalse tri = iota
	triTrue
	triNull
)

// Match reports whether the record satisfies the filter. Comparisons against
// an absent value are neither true nor false, as in SQL.
func (c *Compiled) Match(resolve Resolver) (bool, error) {
	if c.root == nil {
		return true, nil
	}
	t, err := c.root.eval(resolve)
	return t == triTrue, err
}

// Compare orders two records the way OrderBy orders rows: id ascending, then
// the caller's terms. Absent values sort after present ones in ascending order.
func (c *Compiled) Compare(a, b Resolver) int {
	av, _ := a(IDField)
	bv, _ := b(IDField)
	if r := compareNullable(av, bv); r != 0 {
		return r
	}
	for _, o := range c.order {
		av, _ := a(o.Field.Name)
		bv, _ := b(o.Field.Name)
		r := compareNullable(av, bv)
		if o.Desc {
			r = -r
		}
		if r != 0 {
			return r
		}
	}
	return 0
}

// JSONText renders a profile value the way Postgres ->> does: strings as is,
// JSON null as absent, anything else as its JSON text.
func JSONText(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		return string(b)
	}
}

func (n andNode) eval(r Resolver) (tri, error) {
	l, err := n.l.eval(r)
	if err != nil {
		return triFalse, err
	}
	if l == triFalse {
		return triFalse, nil
	}
	rt, err := n.r.eval(r)
	if err != nil {
		return triFalse, err
	}
	switch {
	case rt == triFalse:
		return triFalse, nil
	case l == triNull || rt == triNull:
		return triNull, nil
	}
	return triTrue, nil
}

func (n orNode) eval(r Resolver) (tri, error) {
	l, err := n.l.eval(r)
	if err != nil {
		return triFalse, err
	}
	if l == triTrue {
		return triTrue, nil
	}
	rt, err := n.r.eval(r)
	if err != nil {
		return triFalse, err
	}
	switch {
	case rt == triTrue:
		return triTrue, nil
	case l == triNull || rt == triNull:
		return triNull, nil
	}
	return triFalse, nil
}

func (n notNode) eval(r Resolver) (tri, error) {
	x, err := n.x.eval(r)
	if err != nil {
		return triFalse, err
	}
	switch x {
	case triTrue:
		return triFalse, nil
	case triFalse:
		return triTrue, nil
	}
	return triNull, nil
}

func (n cmpNode) eval(r Resolver) (tri, error) {
	v, ok := r(n.field.Name)
	if !ok {
		return triFalse, fmt.Errorf("unknown field: %s", n.field.Name)
	}
	if v == nil {
		return triNull, nil
	}

	if n.pattern {
		s, ok := v.(string)
		if !ok {
			return triFalse, fmt.Errorf("type mismatch: %s is %T", n.field.Name, v)
		}
		m := wildcardMatch(n.value.(string), s)
		if n.op == "!=" {
			m = !m
		}
		return boolTri(m), nil
	}

	cmp, err := compareValues(v, n.value)
	if err != nil {
		return triFalse, fmt.Errorf("%s: %w", n.field.Name, err)
	}
	switch n.op {
	case "=":
		return boolTri(cmp == 0), nil
	case "!=":
		return boolTri(cmp != 0), nil
	case "<":
		return boolTri(cmp < 0), nil
	case "<=":
		return boolTri(cmp <= 0), nil
	case ">":
		return boolTri(cmp > 0), nil
	case ">=":
		return boolTri(cmp >= 0), nil
	}
	return triFalse, fmt.Errorf("unsupported operator: %s", n.op)
}

func boolTri(b bool) tri {
	if b {
		return triTrue
	}
	return triFalse
}

func compareValues(left, right any) (int, error) {
	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		if !ok {
			return 0, fmt.Errorf("type mismatch: string vs %T", right)
		}
		return strings.Compare(l, r), nil
	case time.Time:
		r, ok := right.(time.Time)
		if !ok {
			return 0, fmt.Errorf("type mismatch: timestamp vs %T", right)
		}
		return l.Compare(r), nil
	}
	return 0, fmt.Errorf("unsupported value type: %T", left)
}

func compareNullable(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	c, err := compareValues(a, b)
	if err != nil {
		return 0
	}
	return c
}

// wildcardMatch matches s against pattern where '*' stands for any run of
// characters, including none.
func wildcardMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, p := range parts[1 : len(parts)-1] {
		i := strings.Index(s, p)
		if i < 0 {
			return false
		}
		s = s[i+len(p):]
	}
	return strings.HasSuffix(s, last)
}
