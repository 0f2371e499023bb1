// Package groups persists group records and the group side of membership.
package groups

import (
	"context"
	"time"

	"github.com/dmitrijs2005/okaeri/internal/server/models"
	"github.com/dmitrijs2005/okaeri/internal/server/query"
	"github.com/google/uuid"
)

// Repository is the group collection. Methods addressing a single group
// return common.ErrUnknown when no record matched; code collisions yield
// common.ErrConflict.
type Repository interface {
	Create(ctx context.Context, g *models.Group) error
	ExistsByCode(ctx context.Context, code string) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Group, error)
	// Update sets the non-nil fields and last_update.
	Update(ctx context.Context, id uuid.UUID, name, code *string, now time.Time) error
	// Delete removes the group and returns its code.
	Delete(ctx context.Context, id uuid.UUID) (string, error)
	Query(ctx context.Context, q *query.Compiled, limit, offset int) ([]models.GroupListing, error)

	AddAccount(ctx context.Context, id, accountID uuid.UUID, now time.Time) error
	RemoveAccount(ctx context.Context, id, accountID uuid.UUID, now time.Time) error
	SetAccounts(ctx context.Context, id uuid.UUID, accounts []uuid.UUID, now time.Time) error
	// HasMember reports whether any group with one of codes lists accountID.
	HasMember(ctx context.Context, codes []string, accountID uuid.UUID) (bool, error)
	// AccountRefs returns the member list of every group.
	AccountRefs(ctx context.Context) (map[uuid.UUID][]uuid.UUID, error)
}
