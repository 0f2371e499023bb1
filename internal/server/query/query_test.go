package query

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/dmitrijs2005/okaeri/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accountSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := AccountSchema("name", []string{"email"})
	require.NoError(t, err)
	return s
}

type record map[string]any

func (r record) resolve(name string) (any, bool) {
	switch name {
	case "id", "name", "email", "creation", "last_update":
		return r[name], true
	}
	return nil, false
}

func TestAccountSchema_RejectsNonIdentifiers(t *testing.T) {
	for _, tt := range []struct{ loginKey, profile string }{
		{"name", "email'; DROP TABLE accounts; --"},
		{"name", "full name"},
		{"login-key", "email"},
	} {
		_, err := AccountSchema(tt.loginKey, []string{tt.profile})
		assert.ErrorContains(t, err, "not an identifier", "%q / %q", tt.loginKey, tt.profile)
	}

	_, err := AccountSchema("login_key", []string{"_private", "email2"})
	assert.NoError(t, err)
}

func TestCompile_Empty(t *testing.T) {
	c, err := accountSchema(t).Compile("", "")
	require.NoError(t, err)

	where, args := c.Where(nil)
	assert.Equal(t, "TRUE", where)
	assert.Empty(t, args)
	assert.Equal(t, "id ASC", c.OrderBy())

	ok, err := c.Match(record{"name": "x"}.resolve)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWhere_PlaceholdersContinueNumbering(t *testing.T) {
	c, err := accountSchema(t).Compile(`name = "test-a" AND creation >= timestamp("2024-01-01T00:00:00Z")`, "")
	require.NoError(t, err)

	where, args := c.Where([]any{"preexisting"})
	assert.Equal(t, "(login_key = $2 AND creation >= $3)", where)
	require.Len(t, args, 3)
	assert.Equal(t, "test-a", args[1])
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), args[2])
}

func TestWhere_Wildcard(t *testing.T) {
	c, err := accountSchema(t).Compile(`name = "test_*"`, "")
	require.NoError(t, err)

	where, args := c.Where(nil)
	assert.Equal(t, "login_key LIKE $1", where)
	assert.Equal(t, []any{`test\_%`}, args)
}

func TestWhere_ProfileFieldAndNot(t *testing.T) {
	c, err := accountSchema(t).Compile(`NOT email = "a@example.com"`, "")
	require.NoError(t, err)

	where, _ := c.Where(nil)
	assert.Equal(t, "(NOT profile->>'email' = $1)", where)
}

func TestOrderBy(t *testing.T) {
	c, err := accountSchema(t).Compile("", "name desc, creation")
	require.NoError(t, err)

	assert.Equal(t, `id ASC, (login_key) COLLATE "C" DESC, creation ASC`, c.OrderBy())
	require.Len(t, c.Order(), 2)
	assert.True(t, c.Order()[0].Desc)
}

func TestCompile_Errors(t *testing.T) {
	s := accountSchema(t)

	tests := []struct {
		name, filter, orderBy, field string
	}{
		{"syntax", `name = `, "", "filter"},
		{"undeclared ident", `salt = "x"`, "", "filter"},
		{"wildcard with range", `name > "a*"`, "", "filter"},
		{"unknown order field", "", "hash", "order_by"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Compile(tt.filter, tt.orderBy)
			var ve *common.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Violations[0].Field)
		})
	}
}

func TestMatch(t *testing.T) {
	s := accountSchema(t)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := record{"id": "0001", "name": "test-a", "email": nil, "creation": day}

	tests := []struct {
		filter string
		want   bool
	}{
		{`name = "test-a"`, true},
		{`name = "test-*"`, true},
		{`name = "*-b"`, false},
		{`name != "test-*"`, false},
		{`name = "test-a" OR name = "x"`, true},
		{`name = "x" OR name = "y"`, false},
		{`creation > timestamp("2024-02-01T00:00:00Z")`, true},
		{`creation < timestamp("2024-02-01T00:00:00Z")`, false},
		{`email = "a"`, false},
		{`NOT email = "a"`, false},
		{`NOT name = "x"`, true},
		{`email = "a" OR name = "test-a"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			c, err := s.Compile(tt.filter, "")
			require.NoError(t, err)
			got, err := c.Match(rec.resolve)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompare_IDLeads(t *testing.T) {
	c, err := accountSchema(t).Compile("", "email")
	require.NoError(t, err)

	recs := []record{
		{"id": "0003", "email": "a"},
		{"id": "0002", "email": nil},
		{"id": "0001", "email": "b"},
		{"id": "0004", "email": "a"},
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return c.Compare(recs[i].resolve, recs[j].resolve) < 0
	})

	var ids []any
	for _, r := range recs {
		ids = append(ids, r["id"])
	}
	assert.Equal(t, []any{"0001", "0002", "0003", "0004"}, ids)
}

func TestCompare_CallerTermsAfterID(t *testing.T) {
	c, err := accountSchema(t).Compile("", "email desc")
	require.NoError(t, err)

	same := func(email any) Resolver {
		return record{"id": "0001", "email": email}.resolve
	}
	assert.Negative(t, c.Compare(same("b"), same("a")))
	assert.Positive(t, c.Compare(same("a"), same("b")))
	assert.Negative(t, c.Compare(same(nil), same("a")), "absent values come first in descending order")
	assert.Zero(t, c.Compare(same("a"), same("a")))
}

func TestJSONText(t *testing.T) {
	assert.Nil(t, JSONText(nil))
	assert.Equal(t, "x", JSONText("x"))
	assert.Equal(t, "42", JSONText(float64(42)))
	assert.Equal(t, "true", JSONText(true))
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, Offset(0))
	assert.Equal(t, 0, Offset(1))
	assert.Equal(t, 30, Offset(2))
}

func TestWildcardMatch(t *testing.T) {
	assert.True(t, wildcardMatch("a*", "abc"))
	assert.True(t, wildcardMatch("*c", "abc"))
	assert.True(t, wildcardMatch("a*c", "abc"))
	assert.True(t, wildcardMatch("*", ""))
	assert.False(t, wildcardMatch("a*a", "a"))
	assert.False(t, wildcardMatch("a*b*c", "acb"))
}
