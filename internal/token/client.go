// Package token defines the boundary to the external fungible-token contract.
// This module only ever asks the token to move funds and to prove it is a
// token at all; transfer semantics belong to the token contract itself.
package token

import (
	"context"

	id "attestry/pkg/domain"
)

// Client is the contract surface consumed by the ledger. Implementations must
// fail atomically: a returned error means no funds moved.
type Client interface {
	// Transfer moves amount from one account to another.
	Transfer(ctx context.Context, from, to id.Address, amount int64) error

	// Decimals queries the token's decimal places. Used at initialize time to
	// validate that the configured contract actually implements the token
	// interface.
	Decimals(ctx context.Context) (uint32, error)
}
