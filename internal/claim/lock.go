package claim

import (
	"context"
	"sync"
)

// TokenLocker hands out exclusive claims on custodial tokens so that two
// attendees are never offered the same token.
type TokenLocker interface {
	LockToken(ctx context.Context, tokenID, holder string) (bool, error)
	UnlockToken(ctx context.Context, tokenID, holder string) error
}

// MemoryLocker keeps locks for the lifetime of the process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]string
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]string)}
}

func (m *MemoryLocker) LockToken(_ context.Context, tokenID, holder string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[tokenID]; held {
		return false, nil
	}
	m.locks[tokenID] = holder
	return true, nil
}

// UnlockToken releases tokenID if holder owns the lock.
func (m *MemoryLocker) UnlockToken(_ context.Context, tokenID, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[tokenID] == holder {
		delete(m.locks, tokenID)
	}
	return nil
}
