// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package memory implements store.Store with a mutex-guarded map.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/pdiddy/pdf-magic/internal/store"
	"github.com/pdiddy/pdf-magic/pkg/types"
)

// Store keeps task snapshots in process memory.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]types.Task
}

// New returns an empty Store.
func New() *Store {
	return &Store{tasks: make(map[string]types.Task)}
}

func (s *Store) Save(_ context.Context, t types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// log entries only arrive through AppendLog
	c := t.Clone()
	if prev, ok := s.tasks[t.ID]; ok {
		c.Log = prev.Log
	} else {
		c.Log = nil
	}
	s.tasks[t.ID] = c
	return nil
}

func (s *Store) AppendLog(_ context.Context, id string, e types.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return store.ErrNotFound
	}
	t.Log = append(t.Log, e)
	s.tasks[id] = t
	return nil
}

func (s *Store) Get(_ context.Context, id string) (types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return types.Task{}, store.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *Store) List(_ context.Context) ([]types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]types.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t.Clone())
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}
