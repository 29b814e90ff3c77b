package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"partybot-server-go/internal/domain/auth/model"
)

type memoryStore struct {
	items       map[string]model.Token
	mutex       sync.RWMutex
	cleanupFreq time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemory builds an in-memory token store with a background sweeper.
func NewMemory(cfg Config) Store {
	cleanup := time.Minute
	if cfg.Memory != nil && cfg.Memory.GCInterval > 0 {
		cleanup = cfg.Memory.GCInterval
	}
	s := &memoryStore{
		items:       make(map[string]model.Token),
		cleanupFreq: cleanup,
		stop:        make(chan struct{}),
	}
	go s.gcLoop()
	return s
}

func (s *memoryStore) gcLoop() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *memoryStore) Save(_ context.Context, token model.Token) error {
	if token.AccountID == "" {
		return fmt.Errorf("account id required")
	}
	if token.IssuedAt.IsZero() {
		token.IssuedAt = time.Now()
	}

	s.mutex.Lock()
	s.items[token.Key()] = token
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Get(_ context.Context, accountID, scope string) (model.Token, error) {
	s.mutex.RLock()
	token, ok := s.items[model.Key(accountID, scope)]
	s.mutex.RUnlock()
	if !ok || !token.Valid(time.Now()) {
		return model.Token{}, ErrNotFound
	}
	return token, nil
}

func (s *memoryStore) Remove(_ context.Context, accountID, scope string) error {
	s.mutex.Lock()
	delete(s.items, model.Key(accountID, scope))
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) RemoveAccount(_ context.Context, accountID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for key, token := range s.items {
		if token.AccountID == accountID || strings.HasPrefix(key, accountID+":") {
			delete(s.items, key)
		}
	}
	return nil
}

func (s *memoryStore) cleanupExpired() {
	now := time.Now()
	s.mutex.Lock()
	for key, token := range s.items {
		if !token.Valid(now) {
			delete(s.items, key)
		}
	}
	s.mutex.Unlock()
}

func (s *memoryStore) Stats(_ context.Context) (Stats, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	active := 0
	for _, token := range s.items {
		if token.Valid(now) {
			active++
		}
	}
	return Stats{Driver: DriverMemory, Total: len(s.items), Active: active}, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}
