// Package query compiles AIP-160 filters and AIP-132 order_by strings against a
// declared field set. A compiled query renders to a Postgres WHERE/ORDER BY
// fragment and can also be evaluated against in-memory records, with the same
// NULL semantics in both places.
package query

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/okaeri/internal/common"
	"github.com/dmitrijs2005/okaeri/internal/server/models"
	"go.einride.tech/aip/filtering"
	"go.einride.tech/aip/ordering"
)

// PageSize is the fixed number of records per listing page.
const PageSize = 30

// Type is the declared type of a filterable field.
type Type int

const (
	String Type = iota
	Timestamp
)

// Field describes one filterable and sortable field.
type Field struct {
	// Name is the identifier used in filter and order_by expressions.
	Name string
	// Column is the SQL expression the field maps to.
	Column string
	Type   Type
}

// Schema is an immutable set of fields with their AIP declarations.
type Schema struct {
	fields map[string]Field
	idCol  string
	decls  *filtering.Declarations
}

// NewSchema declares fields. idColumn is the column every ordering starts
// with.
func NewSchema(idColumn string, fields ...Field) (*Schema, error) {
	opts := []filtering.DeclarationOption{filtering.DeclareStandardFunctions()}
	byName := make(map[string]Field, len(fields))
	for _, f := range fields {
		if _, dup := byName[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		byName[f.Name] = f
		switch f.Type {
		case String:
			opts = append(opts, filtering.DeclareIdent(f.Name, filtering.TypeString))
		case Timestamp:
			opts = append(opts, filtering.DeclareIdent(f.Name, filtering.TypeTimestamp))
		default:
			return nil, fmt.Errorf("unsupported type for field %s", f.Name)
		}
	}
	decls, err := filtering.NewDeclarations(opts...)
	if err != nil {
		return nil, fmt.Errorf("create declarations: %w", err)
	}
	return &Schema{fields: byName, idCol: idColumn, decls: decls}, nil
}

// AccountSchema declares the account listing fields. loginKey is the
// configured name of the login key field; profile lists the allowed profile
// fields, each filterable by its own name.
func AccountSchema(loginKey string, profile []string) (*Schema, error) {
	for _, name := range append([]string{loginKey}, profile...) {
		if !models.ValidFieldName(name) {
			return nil, fmt.Errorf("field name %q is not an identifier", name)
		}
	}
	fields := []Field{
		{Name: "id", Column: "id::text", Type: String},
		{Name: loginKey, Column: "login_key", Type: String},
		{Name: "creation", Column: "creation", Type: Timestamp},
		{Name: "last_update", Column: "last_update", Type: Timestamp},
	}
	for _, p := range profile {
		fields = append(fields, Field{Name: p, Column: "profile->>'" + p + "'", Type: String})
	}
	return NewSchema("id", fields...)
}

// GroupSchema declares the group listing fields.
func GroupSchema() (*Schema, error) {
	return NewSchema("id",
		Field{Name: "id", Column: "id::text", Type: String},
		Field{Name: "name", Column: "name", Type: String},
		Field{Name: "code", Column: "code", Type: String},
		Field{Name: "creation", Column: "creation", Type: Timestamp},
		Field{Name: "last_update", Column: "last_update", Type: Timestamp},
	)
}

// Field returns the declared field by name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Order is one resolved order_by term.
type Order struct {
	Field Field
	Desc  bool
}

// Compiled is a parsed, type-checked filter plus ordering.
type Compiled struct {
	schema *Schema
	root   node
	order  []Order
}

type orderByRequest string

func (o orderByRequest) GetOrderBy() string { return string(o) }

// Compile parses filter and orderBy. Both may be empty. Malformed input is
// reported as a validation error on the "filter" or "order_by" field.
func (s *Schema) Compile(filter, orderBy string) (*Compiled, error) {
	c := &Compiled{schema: s}

	if strings.TrimSpace(filter) != "" {
		f, err := filtering.ParseFilterString(filter, s.decls)
		if err != nil {
			return nil, common.NewValidationError("filter", "syntax", err.Error())
		}
		root, err := s.build(f.CheckedExpr.GetExpr())
		if err != nil {
			return nil, common.NewValidationError("filter", "unsupported", err.Error())
		}
		c.root = root
	}

	if strings.TrimSpace(orderBy) != "" {
		ob, err := ordering.ParseOrderBy(orderByRequest(orderBy))
		if err != nil {
			return nil, common.NewValidationError("order_by", "syntax", err.Error())
		}
		for _, of := range ob.Fields {
			f, ok := s.fields[of.Path]
			if !ok {
				return nil, common.NewValidationError("order_by", "unknown_field", of.Path)
			}
			c.order = append(c.order, Order{Field: f, Desc: of.Desc})
		}
	}

	return c, nil
}

// Schema returns the schema c was compiled against.
func (c *Compiled) Schema() *Schema {
	return c.schema
}

// Order returns the caller's ordering terms, without the id tiebreak.
func (c *Compiled) Order() []Order {
	return c.order
}

// Offset converts a 1-indexed page to a row offset. Pages below 1 mean 1.
func Offset(page int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * PageSize
}
