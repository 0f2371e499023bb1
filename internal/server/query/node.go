package query

import (
	"fmt"
	"strings"
	"time"

	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

type node interface {
	sql(b *sqlBuilder) string
	eval(resolve Resolver) (tri, error)
}

type andNode struct{ l, r node }
type orNode struct{ l, r node }
type notNode struct{ x node }

// cmpNode compares a field with a constant. A string value containing '*'
// under =, != or : is a wildcard pattern.
type cmpNode struct {
	field   Field
	op      string
	value   any
	pattern bool
}

func (s *Schema) build(e *expr.Expr) (node, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}
	call, ok := e.ExprKind.(*expr.Expr_CallExpr)
	if !ok {
		return nil, fmt.Errorf("unsupported expression type: %T", e.ExprKind)
	}
	fn, args := call.CallExpr.Function, call.CallExpr.Args

	switch fn {
	case "AND", "_&&_":
		return s.fold(args, func(l, r node) node { return andNode{l, r} })
	case "OR", "_||_":
		return s.fold(args, func(l, r node) node { return orNode{l, r} })
	case "NOT", "-", "!_":
		if len(args) != 1 {
			return nil, fmt.Errorf("NOT requires 1 argument")
		}
		x, err := s.build(args[0])
		if err != nil {
			return nil, err
		}
		return notNode{x}, nil
	case "=", "_==_":
		return s.comparison(args, "=")
	case "!=", "_!=_":
		return s.comparison(args, "!=")
	case "<", "_<_":
		return s.comparison(args, "<")
	case "<=", "_<=_":
		return s.comparison(args, "<=")
	case ">", "_>_":
		return s.comparison(args, ">")
	case ">=", "_>=_":
		return s.comparison(args, ">=")
	case ":":
		return s.comparison(args, "=")
	default:
		return nil, fmt.Errorf("unsupported function: %s", fn)
	}
}

func (s *Schema) fold(args []*expr.Expr, join func(l, r node) node) (node, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("logical operator requires at least 2 arguments")
	}
	acc, err := s.build(args[0])
	if err != nil {
		return nil, err
	}
	for _, a := range args[1:] {
		n, err := s.build(a)
		if err != nil {
			return nil, err
		}
		acc = join(acc, n)
	}
	return acc, nil
}

func (s *Schema) comparison(args []*expr.Expr, op string) (node, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("comparison requires 2 arguments")
	}
	ident, ok := args[0].GetExprKind().(*expr.Expr_IdentExpr)
	if !ok {
		return nil, fmt.Errorf("left side of comparison must be a field")
	}
	f, ok := s.fields[ident.IdentExpr.Name]
	if !ok {
		return nil, fmt.Errorf("unknown field: %s", ident.IdentExpr.Name)
	}

	switch f.Type {
	case String:
		v, err := stringValue(args[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		pattern := strings.Contains(v, "*")
		if pattern && op != "=" && op != "!=" {
			return nil, fmt.Errorf("%s: wildcard only allowed with = and !=", f.Name)
		}
		return cmpNode{field: f, op: op, value: v, pattern: pattern}, nil
	case Timestamp:
		v, err := timestampValue(args[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		return cmpNode{field: f, op: op, value: v}, nil
	}
	return nil, fmt.Errorf("unsupported field type for %s", f.Name)
}

func stringValue(e *expr.Expr) (string, error) {
	c, ok := e.GetExprKind().(*expr.Expr_ConstExpr)
	if !ok {
		return "", fmt.Errorf("expected constant, got %T", e.GetExprKind())
	}
	sv, ok := c.ConstExpr.GetConstantKind().(*expr.Constant_StringValue)
	if !ok {
		return "", fmt.Errorf("expected string constant")
	}
	return sv.StringValue, nil
}

func timestampValue(e *expr.Expr) (time.Time, error) {
	raw := e
	if call, ok := e.GetExprKind().(*expr.Expr_CallExpr); ok {
		if call.CallExpr.Function != "timestamp" || len(call.CallExpr.Args) != 1 {
			return time.Time{}, fmt.Errorf("unsupported function in value position: %s", call.CallExpr.Function)
		}
		raw = call.CallExpr.Args[0]
	}
	s, err := stringValue(raw)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp format: %s", s)
	}
	return t.UTC(), nil
}
