package groups

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/okaeri/internal/common"
	"github.com/dmitrijs2005/okaeri/internal/server/models"
	"github.com/dmitrijs2005/okaeri/internal/server/query"
	"github.com/dmitrijs2005/okaeri/internal/server/repositories/memstore"
	"github.com/google/uuid"
)

type MemoryRepository struct {
	store *memstore.Store
	held  bool
}

// NewMemoryRepository returns a repository over store. held marks a
// repository bound to a running store transaction.
func NewMemoryRepository(store *memstore.Store, held bool) *MemoryRepository {
	return &MemoryRepository{store: store, held: held}
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) view(fn func(d *memstore.Data) error) error {
	return r.store.View(r.held, fn)
}

func codeTaken(d *memstore.Data, code string, except uuid.UUID) bool {
	for id, g := range d.Groups {
		if id != except && g.Code == code {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) update(id uuid.UUID, now time.Time, fn func(g *models.Group) error) error {
	return r.view(func(d *memstore.Data) error {
		g, ok := d.Groups[id]
		if !ok {
			return common.ErrUnknown
		}
		if err := fn(&g); err != nil {
			return err
		}
		g.LastUpdate = &now
		d.Groups[id] = g
		return nil
	})
}

func (r *MemoryRepository) Create(_ context.Context, g *models.Group) error {
	return r.view(func(d *memstore.Data) error {
		if codeTaken(d, g.Code, uuid.Nil) {
			return fmt.Errorf("code %q: %w", g.Code, common.ErrConflict)
		}
		rec := g.Clone()
		if rec.Accounts == nil {
			rec.Accounts = []uuid.UUID{}
		}
		d.Groups[g.ID] = rec
		return nil
	})
}

func (r *MemoryRepository) ExistsByCode(_ context.Context, code string) (bool, error) {
	var exists bool
	err := r.view(func(d *memstore.Data) error {
		exists = codeTaken(d, code, uuid.Nil)
		return nil
	})
	return exists, err
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Group, error) {
	var out models.Group
	err := r.view(func(d *memstore.Data) error {
		g, ok := d.Groups[id]
		if !ok {
			return common.ErrUnknown
		}
		out = g.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *MemoryRepository) Update(_ context.Context, id uuid.UUID, name, code *string, now time.Time) error {
	return r.view(func(d *memstore.Data) error {
		g, ok := d.Groups[id]
		if !ok {
			return common.ErrUnknown
		}
		if code != nil && codeTaken(d, *code, id) {
			return fmt.Errorf("code %q: %w", *code, common.ErrConflict)
		}
		if name != nil {
			g.Name = *name
		}
		if code != nil {
			g.Code = *code
		}
		g.LastUpdate = &now
		d.Groups[id] = g
		return nil
	})
}

func (r *MemoryRepository) Delete(_ context.Context, id uuid.UUID) (string, error) {
	var code string
	err := r.view(func(d *memstore.Data) error {
		g, ok := d.Groups[id]
		if !ok {
			return common.ErrUnknown
		}
		code = g.Code
		delete(d.Groups, id)
		return nil
	})
	return code, err
}

func (r *MemoryRepository) Query(_ context.Context, q *query.Compiled, limit, offset int) ([]models.GroupListing, error) {
	var all []models.Group
	err := r.view(func(d *memstore.Data) error {
		for _, g := range d.Groups {
			ok, err := q.Match(Resolver(q.Schema(), g))
			if err != nil {
				return err
			}
			if ok {
				all = append(all, g.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s := q.Schema()
	slices.SortFunc(all, func(a, b models.Group) int {
		return q.Compare(Resolver(s, a), Resolver(s, b))
	})

	out := []models.GroupListing{}
	for i := offset; i < len(all) && len(out) < limit; i++ {
		out = append(out, all[i].Listing())
	}
	return out, nil
}

func (r *MemoryRepository) AddAccount(_ context.Context, id, accountID uuid.UUID, now time.Time) error {
	return r.update(id, now, func(g *models.Group) error {
		if !g.HasAccount(accountID) {
			g.Accounts = append(slices.Clone(g.Accounts), accountID)
		}
		return nil
	})
}

func (r *MemoryRepository) RemoveAccount(_ context.Context, id, accountID uuid.UUID, now time.Time) error {
	return r.update(id, now, func(g *models.Group) error {
		g.Accounts = slices.DeleteFunc(slices.Clone(g.Accounts), func(a uuid.UUID) bool { return a == accountID })
		return nil
	})
}

func (r *MemoryRepository) SetAccounts(_ context.Context, id uuid.UUID, accounts []uuid.UUID, now time.Time) error {
	return r.update(id, now, func(g *models.Group) error {
		g.Accounts = slices.Clone(accounts)
		if g.Accounts == nil {
			g.Accounts = []uuid.UUID{}
		}
		return nil
	})
}

func (r *MemoryRepository) HasMember(_ context.Context, codes []string, accountID uuid.UUID) (bool, error) {
	var found bool
	err := r.view(func(d *memstore.Data) error {
		for _, g := range d.Groups {
			if slices.Contains(codes, g.Code) && g.HasAccount(accountID) {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *MemoryRepository) AccountRefs(_ context.Context) (map[uuid.UUID][]uuid.UUID, error) {
	out := map[uuid.UUID][]uuid.UUID{}
	err := r.view(func(d *memstore.Data) error {
		for id, g := range d.Groups {
			out[id] = slices.Clone(g.Accounts)
		}
		return nil
	})
	return out, err
}

// Resolver exposes g's fields under the names declared in s.
func Resolver(s *query.Schema, g models.Group) query.Resolver {
	return func(name string) (any, bool) {
		f, ok := s.Field(name)
		if !ok {
			return nil, false
		}
		switch f.Column {
		case "id::text":
			return g.ID.String(), true
		case "name":
			return g.Name, true
		case "code":
			return g.Code, true
		case "creation":
			return g.Creation, true
		case "last_update":
			if g.LastUpdate == nil {
				return nil, true
			}
			return *g.LastUpdate, true
		}
		return nil, false
	}
}
