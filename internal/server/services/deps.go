// Package services implements the identity store operations: the account
// store, the group store and the membership coordinator that keeps both sides
// of a membership consistent.
package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/okaeri/internal/server/models"
)

// PasswordHasher is the credential codec as seen by the account store.
type PasswordHasher interface {
	Hash(ctx context.Context, password, salt string) (string, error)
	Verify(ctx context.Context, password, salt, hash string) (bool, error)
}

// AccountNotifier is told about every account created. Implementations must
// not block the caller.
type AccountNotifier interface {
	AccountCreated(ctx context.Context, a models.Account)
}

// Metrics receives business events.
type Metrics interface {
	AccountCreated()
	CredentialCheck(ok bool)
	MembershipChanged(op string)
	GroupRemoved(cleanedAccounts int64)
}

type nopNotifier struct{}

func (nopNotifier) AccountCreated(context.Context, models.Account) {}

type nopMetrics struct{}

func (nopMetrics) AccountCreated()          {}
func (nopMetrics) CredentialCheck(bool)     {}
func (nopMetrics) MembershipChanged(string) {}
func (nopMetrics) GroupRemoved(int64)       {}

// Query selects one page of a listing.
type Query struct {
	Filter  string
	OrderBy string
	// Page is 1-indexed; values below 1 mean the first page.
	Page int
}

// now is the store clock. Postgres keeps microseconds, so the in-memory
// backend sees the same precision.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
