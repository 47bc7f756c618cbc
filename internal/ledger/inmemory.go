package ledger

import (
	"context"
	"fmt"
	"sync"
)

type inMemoryStore struct {
	mu        sync.RWMutex
	versions  map[string]int64
	movements map[string]Movement
	byAccount map[string]map[string]struct{}
}

// NewInMemory creates a concurrency-safe in-memory movement store useful for
// unit tests and development.
func NewInMemory() Store {
	return &inMemoryStore{
		versions:  make(map[string]int64),
		movements: make(map[string]Movement),
		byAccount: make(map[string]map[string]struct{}),
	}
}

func (s *inMemoryStore) Head(_ context.Context, accountNumber string) (Head, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	head := Head{AccountNumber: accountNumber, Version: s.versions[accountNumber]}
	for id := range s.byAccount[accountNumber] {
		m := s.movements[id]
		if head.Last == nil || before(*head.Last, m) {
			last := m
			head.Last = &last
		}
	}
	return head, nil
}

func (s *inMemoryStore) Append(_ context.Context, m Movement, expected Head) (Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHead(expected); err != nil {
		return Movement{}, err
	}
	if _, exists := s.movements[m.ID]; exists {
		return Movement{}, fmt.Errorf("movement %s already stored: %w", m.ID, ErrWriteConflict)
	}

	m.Seq = expected.Version + 1
	s.versions[m.AccountNumber] = m.Seq
	s.put(m)
	return m, nil
}

func (s *inMemoryStore) Rewrite(_ context.Context, expected []Head, revisions []Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range expected {
		if err := s.checkHead(h); err != nil {
			return err
		}
	}
	for _, r := range revisions {
		if _, ok := s.movements[r.After.ID]; !ok {
			return fmt.Errorf("rewrite %s: %w", r.After.ID, ErrNotFound)
		}
	}

	for _, h := range expected {
		s.versions[h.AccountNumber] = h.Version + 1
	}
	for _, r := range revisions {
		s.drop(s.movements[r.After.ID])
		s.put(r.After)
	}
	return nil
}

func (s *inMemoryStore) Remove(_ context.Context, m Movement, expected Head) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHead(expected); err != nil {
		return err
	}
	stored, ok := s.movements[m.ID]
	if !ok {
		return ErrNotFound
	}
	s.versions[expected.AccountNumber] = expected.Version + 1
	s.drop(stored)
	return nil
}

func (s *inMemoryStore) Get(_ context.Context, id string) (Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.movements[id]
	if !ok {
		return Movement{}, ErrNotFound
	}
	return m, nil
}

func (s *inMemoryStore) Find(_ context.Context, q Query) ([]Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	if len(q.AccountNumbers) == 0 {
		ids = make([]string, 0, len(s.movements))
		for id := range s.movements {
			ids = append(ids, id)
		}
	} else {
		for _, number := range q.AccountNumbers {
			for id := range s.byAccount[number] {
				ids = append(ids, id)
			}
		}
	}

	out := make([]Movement, 0, len(ids))
	for _, id := range ids {
		m := s.movements[id]
		if !q.From.IsZero() && m.Date.Before(DateOf(q.From)) {
			continue
		}
		if !q.To.IsZero() && m.Date.After(DateOf(q.To)) {
			continue
		}
		out = append(out, m)
	}
	SortNewestFirst(out)
	return out, nil
}

func (s *inMemoryStore) checkHead(h Head) error {
	if s.versions[h.AccountNumber] != h.Version {
		return fmt.Errorf("account %s at version %d, expected %d: %w",
			h.AccountNumber, s.versions[h.AccountNumber], h.Version, ErrWriteConflict)
	}
	return nil
}

func (s *inMemoryStore) put(m Movement) {
	s.movements[m.ID] = m
	ids, ok := s.byAccount[m.AccountNumber]
	if !ok {
		ids = make(map[string]struct{})
		s.byAccount[m.AccountNumber] = ids
	}
	ids[m.ID] = struct{}{}
}

func (s *inMemoryStore) drop(m Movement) {
	delete(s.movements, m.ID)
	delete(s.byAccount[m.AccountNumber], m.ID)
}
