package repomanager

import (
	"context"

	"github.com/dmitrijs2005/okaeri/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/okaeri/internal/server/repositories/groups"
	"github.com/dmitrijs2005/okaeri/internal/server/repositories/memstore"
)

// InMemoryRepositoryManager keeps everything in process memory. Transactions
// are serialised through the store lock and rolled back from a snapshot.
type InMemoryRepositoryManager struct {
	store *memstore.Store
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{store: memstore.New()}
}

var _ RepositoryManager = (*InMemoryRepositoryManager)(nil)

func (m *InMemoryRepositoryManager) RunMigrations(context.Context) error { return nil }
func (m *InMemoryRepositoryManager) Close() error                        { return nil }

func (m *InMemoryRepositoryManager) Accounts() accounts.Repository {
	return accounts.NewMemoryRepository(m.store, false)
}

func (m *InMemoryRepositoryManager) Groups() groups.Repository {
	return groups.NewMemoryRepository(m.store, false)
}

func (m *InMemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.store.Tx(func() error {
		return fn(ctx, Repositories{
			Accounts: accounts.NewMemoryRepository(m.store, true),
			Groups:   groups.NewMemoryRepository(m.store, true),
		})
	})
}
