package account

import (
	"context"
	"sync"
)

// MemoryRepository keeps accounts in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[string]Account)}
}

func (m *MemoryRepository) Save(_ context.Context, acc *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[acc.AccountID] = *acc
	return nil
}

func (m *MemoryRepository) FindByID(_ context.Context, accountID string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	return &acc, nil
}

func (m *MemoryRepository) List(_ context.Context) ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Account, 0, len(m.accounts))
	for _, acc := range m.accounts {
		acc := acc
		out = append(out, &acc)
	}
	return out, nil
}

func (m *MemoryRepository) Delete(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, accountID)
	return nil
}

func (m *MemoryRepository) SetNeedsAction(_ context.Context, accountID string, needsAction bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	acc.NeedsAction = needsAction
	m.accounts[accountID] = acc
	return nil
}
