package economy

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// txState is the stage a transaction reached in a Memory provider.
type txState uint8

const (
	txCharged txState = iota + 1
	txRefunded
)

// Memory is an in-process Provider. Balances are lost when the process exits.
type Memory struct {
	mu       sync.Mutex
	balances map[uuid.UUID]decimal.Decimal
	txs      map[string]txState
}

// NewMemory ...
func NewMemory() *Memory {
	return &Memory{
		balances: make(map[uuid.UUID]decimal.Decimal),
		txs:      make(map[string]txState),
	}
}

// Deposit adds an amount to the balance of a player.
func (m *Memory) Deposit(player uuid.UUID, amount decimal.Decimal) {
	m.mu.Lock()
	m.balances[player] = m.balances[player].Add(amount)
	m.mu.Unlock()
}

// SetBalance ...
func (m *Memory) SetBalance(player uuid.UUID, amount decimal.Decimal) {
	m.mu.Lock()
	m.balances[player] = amount
	m.mu.Unlock()
}

// Charge ...
func (m *Memory) Charge(ctx context.Context, txID string, player uuid.UUID, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return ErrUnavailable
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.txs[txID]; ok {
		return nil
	}
	if m.balances[player].LessThan(amount) {
		return ErrInsufficientFunds
	}
	m.balances[player] = m.balances[player].Sub(amount)
	m.txs[txID] = txCharged
	return nil
}

// Refund ...
func (m *Memory) Refund(ctx context.Context, txID string, player uuid.UUID, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return ErrUnavailable
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.txs[txID] != txCharged {
		return nil
	}
	m.balances[player] = m.balances[player].Add(amount)
	m.txs[txID] = txRefunded
	return nil
}

// Balance ...
func (m *Memory) Balance(ctx context.Context, player uuid.UUID) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, ErrUnavailable
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[player], nil
}
