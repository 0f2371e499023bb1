package repomanager

import (
	"context"

	"github.com/dmitrijs2005/okaeri/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/okaeri/internal/server/repositories/groups"
)

// Repositories are the repositories bound to one transaction.
type Repositories struct {
	Accounts accounts.Repository
	Groups   groups.Repository
}

// RepositoryManager vends repositories and runs multi-document writes in a
// single transaction: either every write made through the Repositories passed
// to fn is persisted, or none is.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Accounts() accounts.Repository
	Groups() groups.Repository
	InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
	Close() error
}
