package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Group is a named set of accounts identified by a unique code.
type Group struct {
	ID         uuid.UUID
	Name       string
	Code       string
	Accounts   []uuid.UUID
	Creation   time.Time
	LastUpdate *time.Time
}

// Clone returns a deep copy of g.
func (g Group) Clone() Group {
	out := g
	out.Accounts = slices.Clone(g.Accounts)
	if g.LastUpdate != nil {
		lu := *g.LastUpdate
		out.LastUpdate = &lu
	}
	return out
}

// HasAccount reports whether id is a member of g.
func (g Group) HasAccount(id uuid.UUID) bool {
	return slices.Contains(g.Accounts, id)
}

// GroupListing is a group as it appears in listings: member ids are replaced
// by their count.
type GroupListing struct {
	ID         uuid.UUID
	Name       string
	Code       string
	Members    int
	Creation   time.Time
	LastUpdate *time.Time
}

// GroupDetails is a group with its members resolved to public accounts.
type GroupDetails struct {
	ID         uuid.UUID
	Name       string
	Code       string
	Accounts   []Account
	Creation   time.Time
	LastUpdate *time.Time
}

// Listing converts g to its listing form.
func (g Group) Listing() GroupListing {
	return GroupListing{
		ID:         g.ID,
		Name:       g.Name,
		Code:       g.Code,
		Members:    len(g.Accounts),
		Creation:   g.Creation,
		LastUpdate: g.LastUpdate,
	}
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Document renders the listing as a JSON-compatible map.
func (g GroupListing) Document() map[string]any {
	doc := map[string]any{
		"id":       g.ID.String(),
		"name":     g.Name,
		"code":     g.Code,
		"members":  g.Members,
		"creation": g.Creation.UTC().Format(time.RFC3339Nano),
	}
	if lu := formatTime(g.LastUpdate); lu != nil {
		doc["last_update"] = lu
	}
	return doc
}

// Document renders the details as a JSON-compatible map with member accounts
// rendered through Account.Document.
func (g GroupDetails) Document(loginKeyField string) map[string]any {
	accounts := make([]any, 0, len(g.Accounts))
	for _, a := range g.Accounts {
		accounts = append(accounts, a.Document(loginKeyField))
	}
	doc := map[string]any{
		"id":       g.ID.String(),
		"name":     g.Name,
		"code":     g.Code,
		"accounts": accounts,
		"creation": g.Creation.UTC().Format(time.RFC3339Nano),
	}
	if lu := formatTime(g.LastUpdate); lu != nil {
		doc["last_update"] = lu
	}
	return doc
}
