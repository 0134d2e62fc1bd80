package wallet

import (
	"context"

	"github.com/AlabamaMike/primoPokerServerlessCF-sub000/pkg/apperror"
)

// ErrInsufficientFunds is returned when a debit exceeds the player's balance
var ErrInsufficientFunds = apperror.Validation("insufficient funds")

// Wallet is the external bankroll collaborator. The table actor debits a
// buy-in when a player sits and credits the remaining stack when they leave.
type Wallet interface {
	// Debit removes amount from the player's bankroll
	Debit(ctx context.Context, playerID string, amount int64) error

	// Credit adds amount to the player's bankroll
	Credit(ctx context.Context, playerID string, amount int64) error

	// Balance returns the player's current bankroll
	Balance(ctx context.Context, playerID string) (int64, error)
}
