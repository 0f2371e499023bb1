// Package accounts persists account records. The Postgres implementation is
// used in production; the memory implementation backs tests and the
// single-process mode.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/okaeri/internal/server/models"
	"github.com/dmitrijs2005/okaeri/internal/server/query"
	"github.com/google/uuid"
)

// Repository is the account collection. Methods addressing a single account
// return common.ErrUnknown when no record matched. Read methods other than
// GetCredentials return public records.
type Repository interface {
	// Create inserts a; a login key collision yields common.ErrConflict.
	Create(ctx context.Context, a *models.Account) error
	ExistsByLoginKey(ctx context.Context, loginKey string) (bool, error)
	// GetCredentials returns only ID, Salt and Hash.
	GetCredentials(ctx context.Context, loginKey string) (*models.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	// GetByIDs returns the existing accounts among ids, in no particular order.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Account, error)

	// UpdateProfile merges set into the profile and drops the unset keys.
	UpdateProfile(ctx context.Context, id uuid.UUID, set map[string]any, unset []string, now time.Time) error
	SetCredentials(ctx context.Context, id uuid.UUID, salt, hash string, now time.Time) error
	SetLoginKey(ctx context.Context, id uuid.UUID, loginKey string, now time.Time) error

	// AddGroup and RemoveGroup have set semantics and always touch last_update.
	AddGroup(ctx context.Context, id, groupID uuid.UUID, now time.Time) error
	RemoveGroup(ctx context.Context, id, groupID uuid.UUID, now time.Time) error
	// RemoveGroupEverywhere drops groupID from every account and returns how
	// many accounts changed.
	RemoveGroupEverywhere(ctx context.Context, groupID uuid.UUID, now time.Time) (int64, error)
	SetGroups(ctx context.Context, id uuid.UUID, groups []uuid.UUID, now time.Time) error
	// GroupRefs returns the group list of every account.
	GroupRefs(ctx context.Context) (map[uuid.UUID][]uuid.UUID, error)

	Query(ctx context.Context, q *query.Compiled, limit, offset int) ([]models.Account, error)
	// Iterate streams the accounts matching q in id order.
	Iterate(ctx context.Context, q *query.Compiled) (Cursor, error)
}

// Cursor is a forward-only stream of public accounts. Close must be called
// once the caller is done, even after Next returned false.
type Cursor interface {
	Next() bool
	Account() models.Account
	Err() error
	Close() error
}
