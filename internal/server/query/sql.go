package query

import (
	"fmt"
	"strings"
)

type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// Where renders the filter as a boolean SQL expression. Placeholders continue
// numbering after the given args, which are returned extended with the
// filter's values. With no filter the clause is TRUE.
func (c *Compiled) Where(args []any) (string, []any) {
	if c.root == nil {
		return "TRUE", args
	}
	b := &sqlBuilder{args: args}
	return c.root.sql(b), b.args
}

// OrderBy renders the ORDER BY list: id ascending first, then the caller's
// terms. String fields sort bytewise.
func (c *Compiled) OrderBy() string {
	parts := make([]string, 0, len(c.order)+1)
	parts = append(parts, c.schema.idCol+" ASC")
	for _, o := range c.order {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, sortColumn(o.Field)+" "+dir)
	}
	return strings.Join(parts, ", ")
}

func sortColumn(f Field) string {
	if f.Type == String {
		return "(" + f.Column + `) COLLATE "C"`
	}
	return f.Column
}

func (n andNode) sql(b *sqlBuilder) string {
	return fmt.Sprintf("(%s AND %s)", n.l.sql(b), n.r.sql(b))
}

func (n orNode) sql(b *sqlBuilder) string {
	return fmt.Sprintf("(%s OR %s)", n.l.sql(b), n.r.sql(b))
}

func (n notNode) sql(b *sqlBuilder) string {
	return fmt.Sprintf("(NOT %s)", n.x.sql(b))
}

func (n cmpNode) sql(b *sqlBuilder) string {
	if n.pattern {
		op := "LIKE"
		if n.op == "!=" {
			op = "NOT LIKE"
		}
		return fmt.Sprintf("%s %s %s", n.field.Column, op, b.bind(likePattern(n.value.(string))))
	}
	col := n.field.Column
	if n.field.Type == String && n.op != "=" && n.op != "!=" {
		col = sortColumn(n.field)
	}
	return fmt.Sprintf("%s %s %s", col, n.op, b.bind(n.value))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `%`)

func likePattern(s string) string {
	return likeEscaper.Replace(s)
}
