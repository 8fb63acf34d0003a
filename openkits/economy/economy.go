// Package economy bridges kit costs to a currency provider.
package economy

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds is returned by Charge if the balance of the player is lower than the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnavailable is returned if the provider cannot be reached or has no economy configured.
	ErrUnavailable = errors.New("economy unavailable")
)

// Provider moves currency in and out of player balances. Charge and Refund take the id of the kit
// transaction they belong to: a repeated call with the same id has no further effect, and a Refund for
// a transaction that was never charged does nothing.
type Provider interface {
	Charge(ctx context.Context, txID string, player uuid.UUID, amount decimal.Decimal) error
	Refund(ctx context.Context, txID string, player uuid.UUID, amount decimal.Decimal) error
	Balance(ctx context.Context, player uuid.UUID) (decimal.Decimal, error)
}

// None is a Provider for servers without an economy. Every positive charge fails as unavailable.
type None struct{}

// Charge ...
func (None) Charge(_ context.Context, _ string, _ uuid.UUID, amount decimal.Decimal) error {
	if amount.IsPositive() {
		return ErrUnavailable
	}
	return nil
}

// Refund ...
func (None) Refund(context.Context, string, uuid.UUID, decimal.Decimal) error {
	return nil
}

// Balance ...
func (None) Balance(context.Context, uuid.UUID) (decimal.Decimal, error) {
	return decimal.Zero, ErrUnavailable
}
