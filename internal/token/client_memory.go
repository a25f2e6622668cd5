package token

import (
	"context"
	"sync"

	id "attestry/pkg/domain"
	"attestry/pkg/platform/sentinel"
)

// MemoryClient is an in-process token ledger for development and tests. It
// enforces balance checks so transfer failures behave like the real contract:
// an error leaves both balances untouched.
type MemoryClient struct {
	mu       sync.Mutex
	balances map[id.Address]int64
	decimals uint32

	// FailNext forces the next transfer to fail, for exercising the
	// compensation paths in services.
	FailNext bool
}

// NewMemoryClient constructs an empty in-memory token with 7 decimals.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		balances: make(map[id.Address]int64),
		decimals: 7,
	}
}

// Mint credits an account directly. Test setup only.
func (c *MemoryClient) Mint(addr id.Address, amount int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] += amount
}

// Balance reads an account balance.
func (c *MemoryClient) Balance(addr id.Address) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[addr]
}

func (c *MemoryClient) Transfer(_ context.Context, from, to id.Address, amount int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailNext {
		c.FailNext = false
		return sentinel.ErrUnavailable
	}
	if c.balances[from] < amount {
		return sentinel.ErrInsufficient
	}
	c.balances[from] -= amount
	c.balances[to] += amount
	return nil
}

func (c *MemoryClient) Decimals(_ context.Context) (uint32, error) {
	return c.decimals, nil
}
