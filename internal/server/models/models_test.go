package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAccount_PublicClearsSecretsAndCopies(t *testing.T) {
	g := uuid.New()
	a := Account{
		ID:       uuid.New(),
		LoginKey: "test-a",
		Salt:     "s",
		Hash:     "h",
		Groups:   []uuid.UUID{g},
		Profile:  map[string]any{"email": "a@example.com"},
	}

	p := a.Public()
	assert.Empty(t, p.Salt)
	assert.Empty(t, p.Hash)
	assert.Equal(t, "s", a.Salt, "original untouched")

	p.Groups[0] = uuid.Nil
	p.Profile["email"] = "changed"
	assert.Equal(t, g, a.Groups[0])
	assert.Equal(t, "a@example.com", a.Profile["email"])
}

func TestAccount_Document(t *testing.T) {
	id := uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")
	g := uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8058")
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	a := Account{
		ID:       id,
		LoginKey: "test-a",
		Salt:     "s",
		Hash:     "h",
		Groups:   []uuid.UUID{g},
		Profile:  map[string]any{"email": "a@example.com"},
		Creation: created,
	}

	assert.Equal(t, map[string]any{
		"id":       id.String(),
		"user":     "test-a",
		"groups":   []any{g.String()},
		"email":    "a@example.com",
		"creation": "2024-01-02T03:04:05Z",
	}, a.Public().Document("user"))
}

func TestGroup_ListingAndDocument(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	g := Group{ID: uuid.New(), Name: "Admins", Code: "admins", Accounts: []uuid.UUID{uuid.New(), uuid.New()}, Creation: now, LastUpdate: &now}

	l := g.Listing()
	assert.Equal(t, 2, l.Members)
	doc := l.Document()
	assert.Equal(t, 2, doc["members"])
	assert.Equal(t, "2024-01-02T03:04:05Z", doc["last_update"])
	assert.True(t, g.HasAccount(g.Accounts[1]))

	c := g.Clone()
	c.Accounts[0] = uuid.Nil
	assert.NotEqual(t, uuid.Nil, g.Accounts[0])
}

func TestValidFieldName(t *testing.T) {
	for _, name := range []string{"email", "full_name", "_x", "E2"} {
		assert.True(t, ValidFieldName(name), name)
	}
	for _, name := range []string{"", "2fa", "full name", "a-b", "a.b", "x'y", "ünicode"} {
		assert.False(t, ValidFieldName(name), name)
	}
}
