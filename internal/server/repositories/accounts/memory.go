package accounts

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
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

func (r *MemoryRepository) update(id uuid.UUID, now time.Time, fn func(a *models.Account) error) error {
	return r.view(func(d *memstore.Data) error {
		a, ok := d.Accounts[id]
		if !ok {
			return common.ErrUnknown
		}
		if err := fn(&a); err != nil {
			return err
		}
		a.LastUpdate = &now
		d.Accounts[id] = a
		return nil
	})
}

func loginKeyTaken(d *memstore.Data, loginKey string, except uuid.UUID) bool {
	for id, a := range d.Accounts {
		if id != except && a.LoginKey == loginKey {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) Create(_ context.Context, a *models.Account) error {
	return r.view(func(d *memstore.Data) error {
		if loginKeyTaken(d, a.LoginKey, uuid.Nil) {
			return fmt.Errorf("login key %q: %w", a.LoginKey, common.ErrConflict)
		}
		rec := a.Clone()
		if rec.Groups == nil {
			rec.Groups = []uuid.UUID{}
		}
		if rec.Profile == nil {
			rec.Profile = map[string]any{}
		}
		d.Accounts[a.ID] = rec
		return nil
	})
}

func (r *MemoryRepository) ExistsByLoginKey(_ context.Context, loginKey string) (bool, error) {
	var exists bool
	err := r.view(func(d *memstore.Data) error {
		exists = loginKeyTaken(d, loginKey, uuid.Nil)
		return nil
	})
	return exists, err
}

func (r *MemoryRepository) GetCredentials(_ context.Context, loginKey string) (*models.Account, error) {
	var out *models.Account
	err := r.view(func(d *memstore.Data) error {
		for _, a := range d.Accounts {
			if a.LoginKey == loginKey {
				out = &models.Account{ID: a.ID, LoginKey: a.LoginKey, Salt: a.Salt, Hash: a.Hash}
				return nil
			}
		}
		return common.ErrUnknown
	})
	return out, err
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	var out models.Account
	err := r.view(func(d *memstore.Data) error {
		a, ok := d.Accounts[id]
		if !ok {
			return common.ErrUnknown
		}
		out = a.Public()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *MemoryRepository) GetByIDs(_ context.Context, ids []uuid.UUID) ([]models.Account, error) {
	out := []models.Account{}
	err := r.view(func(d *memstore.Data) error {
		seen := map[uuid.UUID]bool{}
		for _, id := range ids {
			if a, ok := d.Accounts[id]; ok && !seen[id] {
				seen[id] = true
				out = append(out, a.Public())
			}
		}
		return nil
	})
	return out, err
}

func (r *MemoryRepository) UpdateProfile(_ context.Context, id uuid.UUID, set map[string]any, unset []string, now time.Time) error {
	return r.update(id, now, func(a *models.Account) error {
		p := maps.Clone(a.Profile)
		if p == nil {
			p = map[string]any{}
		}
		maps.Copy(p, set)
		for _, k := range unset {
			delete(p, k)
		}
		a.Profile = p
		return nil
	})
}

func (r *MemoryRepository) SetCredentials(_ context.Context, id uuid.UUID, salt, hash string, now time.Time) error {
	return r.update(id, now, func(a *models.Account) error {
		a.Salt, a.Hash = salt, hash
		return nil
	})
}

func (r *MemoryRepository) SetLoginKey(_ context.Context, id uuid.UUID, loginKey string, now time.Time) error {
	return r.view(func(d *memstore.Data) error {
		a, ok := d.Accounts[id]
		if !ok {
			return common.ErrUnknown
		}
		if loginKeyTaken(d, loginKey, id) {
			return fmt.Errorf("login key %q: %w", loginKey, common.ErrConflict)
		}
		a.LoginKey = loginKey
		a.LastUpdate = &now
		d.Accounts[id] = a
		return nil
	})
}

func (r *MemoryRepository) AddGroup(_ context.Context, id, groupID uuid.UUID, now time.Time) error {
	return r.update(id, now, func(a *models.Account) error {
		if !a.HasGroup(groupID) {
			a.Groups = append(slices.Clone(a.Groups), groupID)
		}
		return nil
	})
}

func (r *MemoryRepository) RemoveGroup(_ context.Context, id, groupID uuid.UUID, now time.Time) error {
	return r.update(id, now, func(a *models.Account) error {
		a.Groups = slices.DeleteFunc(slices.Clone(a.Groups), func(g uuid.UUID) bool { return g == groupID })
		return nil
	})
}

func (r *MemoryRepository) RemoveGroupEverywhere(_ context.Context, groupID uuid.UUID, now time.Time) (int64, error) {
	var n int64
	err := r.view(func(d *memstore.Data) error {
		for id, a := range d.Accounts {
			if !a.HasGroup(groupID) {
				continue
			}
			a.Groups = slices.DeleteFunc(slices.Clone(a.Groups), func(g uuid.UUID) bool { return g == groupID })
			a.LastUpdate = &now
			d.Accounts[id] = a
			n++
		}
		return nil
	})
	return n, err
}

func (r *MemoryRepository) SetGroups(_ context.Context, id uuid.UUID, groups []uuid.UUID, now time.Time) error {
	return r.update(id, now, func(a *models.Account) error {
		a.Groups = slices.Clone(groups)
		if a.Groups == nil {
			a.Groups = []uuid.UUID{}
		}
		return nil
	})
}

func (r *MemoryRepository) GroupRefs(_ context.Context) (map[uuid.UUID][]uuid.UUID, error) {
	out := map[uuid.UUID][]uuid.UUID{}
	err := r.view(func(d *memstore.Data) error {
		for id, a := range d.Accounts {
			out[id] = slices.Clone(a.Groups)
		}
		return nil
	})
	return out, err
}

func (r *MemoryRepository) matching(q *query.Compiled) ([]models.Account, error) {
	var out []models.Account
	err := r.view(func(d *memstore.Data) error {
		for _, a := range d.Accounts {
			ok, err := q.Match(Resolver(q.Schema(), a))
			if err != nil {
				return err
			}
			if ok {
				out = append(out, a.Public())
			}
		}
		return nil
	})
	return out, err
}

func (r *MemoryRepository) Query(_ context.Context, q *query.Compiled, limit, offset int) ([]models.Account, error) {
	all, err := r.matching(q)
	if err != nil {
		return nil, err
	}
	s := q.Schema()
	slices.SortFunc(all, func(a, b models.Account) int {
		return q.Compare(Resolver(s, a), Resolver(s, b))
	})
	if offset >= len(all) {
		return []models.Account{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepository) Iterate(_ context.Context, q *query.Compiled) (Cursor, error) {
	all, err := r.matching(q)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(all, func(a, b models.Account) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return &sliceCursor{items: all, pos: -1}, nil
}

// Resolver exposes a's fields under the names declared in s.
func Resolver(s *query.Schema, a models.Account) query.Resolver {
	return func(name string) (any, bool) {
		f, ok := s.Field(name)
		if !ok {
			return nil, false
		}
		switch f.Column {
		case "id::text":
			return a.ID.String(), true
		case "login_key":
			return a.LoginKey, true
		case "creation":
			return a.Creation, true
		case "last_update":
			if a.LastUpdate == nil {
				return nil, true
			}
			return *a.LastUpdate, true
		}
		if strings.HasPrefix(f.Column, "profile->>") {
			return query.JSONText(a.Profile[f.Name]), true
		}
		return nil, false
	}
}

type sliceCursor struct {
	items []models.Account
	pos   int
}

func (c *sliceCursor) Next() bool {
	if c.pos+1 >= len(c.items) {
		c.pos = len(c.items)
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Account() models.Account { return c.items[c.pos] }
func (c *sliceCursor) Err() error              { return nil }
func (c *sliceCursor) Close() error            { return nil }
