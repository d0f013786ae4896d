package ai

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBudgetExceeded is returned when a user has no token budget left.
var ErrBudgetExceeded = errors.New("ai: token budget exceeded")

// BudgetChecker checks and records generation token usage per user.
type BudgetChecker interface {
	// Check returns true if the user has budget remaining.
	Check(userID string) (bool, error)
	// Record adds token usage for the user.
	Record(userID string, tokens int) error
	// Usage returns current usage and limit for the user (limit 0 = unlimited).
	Usage(userID string) (used int64, budget int64, err error)
}

// InMemoryBudget tracks token usage in memory for the life of the process.
type InMemoryBudget struct {
	mu            sync.RWMutex
	defaultBudget int64
	budgets       map[string]int64 // user -> budget limit
	usage         map[string]int64 // user -> tokens used
}

// NewInMemoryBudget creates a tracker where users without an explicit
// budget get defaultBudget tokens. Zero means unlimited.
func NewInMemoryBudget(defaultBudget int64) *InMemoryBudget {
	return &InMemoryBudget{
		defaultBudget: defaultBudget,
		budgets:       make(map[string]int64),
		usage:         make(map[string]int64),
	}
}

// SetBudget sets the token budget for a user.
func (b *InMemoryBudget) SetBudget(userID string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.budgets[userID] = tokens
}

func (b *InMemoryBudget) Check(userID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	budget := b.limitLocked(userID)
	if budget == 0 {
		return true, nil
	}
	return b.usage[userID] < budget, nil
}

func (b *InMemoryBudget) Record(userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[userID] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(userID string) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[userID], b.limitLocked(userID), nil
}

func (b *InMemoryBudget) limitLocked(userID string) int64 {
	if budget, ok := b.budgets[userID]; ok {
		return budget
	}
	return b.defaultBudget
}
