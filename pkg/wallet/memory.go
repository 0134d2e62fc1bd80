package wallet

import (
	"context"
	"sync"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/apperror"
)

// Memory is an in-process Wallet for tests and standalone runs
type Memory struct {
	mu       sync.Mutex
	balances map[string]int64

	// DefaultBalance seeds unknown players on first touch
	DefaultBalance int64
}

// NewMemory returns an in-memory wallet seeding every player with defaultBalance
func NewMemory(defaultBalance int64) *Memory {
	return &Memory{
		balances:       make(map[string]int64),
		DefaultBalance: defaultBalance,
	}
}

// Debit removes amount from the player's bankroll
func (m *Memory) Debit(_ context.Context, playerID string, amount int64) error {
	if amount < 0 {
		return apperror.Validation("amount cannot be negative")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	balance := m.balance(playerID)
	if balance < amount {
		return ErrInsufficientFunds
	}

	m.balances[playerID] = balance - amount
	return nil
}

// Credit adds amount to the player's bankroll
func (m *Memory) Credit(_ context.Context, playerID string, amount int64) error {
	if amount < 0 {
		return apperror.Validation("amount cannot be negative")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances[playerID] = m.balance(playerID) + amount
	return nil
}

// Balance returns the player's current bankroll
func (m *Memory) Balance(_ context.Context, playerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.balance(playerID), nil
}

func (m *Memory) balance(playerID string) int64 {
	balance, ok := m.balances[playerID]
	if !ok {
		balance = m.DefaultBalance
		m.balances[playerID] = balance
	}

	return balance
}
