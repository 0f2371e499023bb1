// Package models holds the records persisted by the identity store.
package models

import (
	"maps"
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Account is a stored identity. Salt and Hash are secrets and never leave the
// store on read paths; use Public to obtain a shareable copy.
type Account struct {
	ID         uuid.UUID
	LoginKey   string
	Salt       string
	Hash       string
	Groups     []uuid.UUID
	Profile    map[string]any
	Creation   time.Time
	LastUpdate *time.Time
}

// Public returns a deep copy of a with the credential fields cleared.
func (a Account) Public() Account {
	out := a.Clone()
	out.Salt, out.Hash = "", ""
	return out
}

// Clone returns a deep copy of a.
func (a Account) Clone() Account {
	out := a
	out.Groups = slices.Clone(a.Groups)
	if a.Profile != nil {
		out.Profile = maps.Clone(a.Profile)
	}
	if a.LastUpdate != nil {
		lu := *a.LastUpdate
		out.LastUpdate = &lu
	}
	return out
}

// HasGroup reports whether id is among the account's groups.
func (a Account) HasGroup(id uuid.UUID) bool {
	return slices.Contains(a.Groups, id)
}

// Document renders the public account as a flat JSON-compatible map: profile
// fields at the top level next to id, the login key under loginKeyField,
// groups, creation and last_update.
func (a Account) Document(loginKeyField string) map[string]any {
	doc := make(map[string]any, len(a.Profile)+5)
	for k, v := range a.Profile {
		doc[k] = v
	}
	groups := make([]any, 0, len(a.Groups))
	for _, g := range a.Groups {
		groups = append(groups, g.String())
	}
	doc["id"] = a.ID.String()
	doc[loginKeyField] = a.LoginKey
	doc["groups"] = groups
	doc["creation"] = a.Creation.UTC().Format(time.RFC3339Nano)
	if a.LastUpdate != nil {
		doc["last_update"] = a.LastUpdate.UTC().Format(time.RFC3339Nano)
	}
	return doc
}

// ReservedFields are the document keys that profile fields may not use.
var ReservedFields = []string{"id", "groups", "creation", "last_update", "salt", "hash", "password"}

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidFieldName reports whether name can be used as a login key or profile
// field: an identifier, so it is addressable in filters and safe in SQL.
func ValidFieldName(name string) bool {
	return fieldName.MatchString(name)
}
