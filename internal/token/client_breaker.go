package token

import (
	"context"
	"log/slog"
	"time"

	id "attestry/pkg/domain"
	"attestry/pkg/platform/circuit"
	"attestry/pkg/platform/sentinel"
)

// BreakerClient wraps a Client with a circuit breaker so repeated token
// service failures fail fast instead of stalling ledger operations. A fast
// failure surfaces as ErrUnavailable, which services map like any other
// failed transfer: abort with no ledger mutation. Once the cooldown elapses
// the breaker lets probe calls through, so a recovered token service closes
// the circuit without a restart.
type BreakerClient struct {
	inner   Client
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewBreakerClient(inner Client, logger *slog.Logger, opts ...circuit.Option) *BreakerClient {
	defaults := []circuit.Option{
		circuit.WithFailureThreshold(5),
		circuit.WithSuccessThreshold(2),
		circuit.WithCooldown(30 * time.Second),
	}
	return &BreakerClient{
		inner:   inner,
		breaker: circuit.New("token-service", append(defaults, opts...)...),
		logger:  logger,
	}
}

func (c *BreakerClient) Transfer(ctx context.Context, from, to id.Address, amount int64) error {
	if !c.breaker.Allow() {
		return sentinel.ErrUnavailable
	}
	err := c.inner.Transfer(ctx, from, to, amount)
	c.record(ctx, err)
	return err
}

func (c *BreakerClient) Decimals(ctx context.Context) (uint32, error) {
	if !c.breaker.Allow() {
		return 0, sentinel.ErrUnavailable
	}
	decimals, err := c.inner.Decimals(ctx)
	c.record(ctx, err)
	return decimals, err
}

func (c *BreakerClient) record(ctx context.Context, err error) {
	if err != nil {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "token service circuit opened", "breaker", c.breaker.Name())
		}
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "token service circuit closed", "breaker", c.breaker.Name())
	}
}
