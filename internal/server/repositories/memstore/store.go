// Package memstore is the shared state behind the in-memory repositories. A
// single mutex guards accounts and groups together, so a store-wide
// transaction sees and writes both collections atomically.
package memstore

import (
	"sync"

	"github.com/dmitrijs2005/okaeri/internal/server/models"
	"github.com/google/uuid"
)

// Data is the content of the store. It is only touched under the store lock.
type Data struct {
	Accounts map[uuid.UUID]models.Account
	Groups   map[uuid.UUID]models.Group
}

func (d *Data) clone() Data {
	out := Data{
		Accounts: make(map[uuid.UUID]models.Account, len(d.Accounts)),
		Groups:   make(map[uuid.UUID]models.Group, len(d.Groups)),
	}
	for id, a := range d.Accounts {
		out.Accounts[id] = a.Clone()
	}
	for id, g := range d.Groups {
		out.Groups[id] = g.Clone()
	}
	return out
}

type Store struct {
	mu   sync.Mutex
	data Data
}

func New() *Store {
	return &Store{data: Data{
		Accounts: map[uuid.UUID]models.Account{},
		Groups:   map[uuid.UUID]models.Group{},
	}}
}

// View runs fn with the data. held means the caller already owns the lock
// through Tx.
func (s *Store) View(held bool, fn func(d *Data) error) error {
	if !held {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(&s.data)
}

// Tx runs fn holding the store lock. When fn fails or panics the data is
// restored to what it was before fn started.
func (s *Store) Tx(fn func() error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	return fn()
}
