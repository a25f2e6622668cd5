package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"attestry/internal/domain"
	id "attestry/pkg/domain"
)

// Key prefixes for the payment ledger key space.
const (
	paymentKeyPrefix = "ledger:payment:"
	feesKeyPrefix    = "ledger:fees:"
	leviesKeyPrefix  = "ledger:levies:"
	poolKey          = "ledger:pool"
)

// creditScript adds amount to a balance key, rejecting credits that would
// leave the int64 range. KEYS[1] = balance key, ARGV[1] = amount.
var creditScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local amt = tonumber(ARGV[1])
if cur + amt > 9007199254740992 then
  return redis.error_reply('overflow')
end
redis.call('SET', KEYS[1], cur + amt)
return cur + amt
`)

// debitScript subtracts amount when the balance covers it.
// KEYS[1] = balance key, ARGV[1] = amount.
var debitScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local amt = tonumber(ARGV[1])
if cur < amt then
  return redis.error_reply('insufficient')
end
redis.call('SET', KEYS[1], cur - amt)
return cur - amt
`)

// RedisPaymentLedger implements PaymentStore on Redis. SETNX makes the
// payment-record claim a single atomic step, GETDEL makes balance sweeps
// read-and-zero in one round trip, and the credit/debit scripts keep the
// check inside the server where no interleaving is possible.
//
// Lua numbers lose integer precision above 2^53, so credits are capped there
// rather than at MaxInt64. Fee and levy totals sit far below either bound.
type RedisPaymentLedger struct {
	client *redis.Client
}

// NewRedisPaymentLedger constructs a Redis-backed payment ledger.
func NewRedisPaymentLedger(client *redis.Client) *RedisPaymentLedger {
	return &RedisPaymentLedger{client: client}
}

func (l *RedisPaymentLedger) CreatePaymentRecord(ctx context.Context, rec domain.PaymentRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal payment record: %w", err)
	}
	ok, err := l.client.SetNX(ctx, paymentKeyPrefix+rec.Payer.String(), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("claim payment record: %w", err)
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (l *RedisPaymentLedger) DeletePaymentRecord(ctx context.Context, payer id.Address) error {
	n, err := l.client.Del(ctx, paymentKeyPrefix+payer.String()).Result()
	if err != nil {
		return fmt.Errorf("delete payment record: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (l *RedisPaymentLedger) GetPaymentRecord(ctx context.Context, payer id.Address) (domain.PaymentRecord, error) {
	payload, err := l.client.Get(ctx, paymentKeyPrefix+payer.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PaymentRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("get payment record: %w", err)
	}
	var rec domain.PaymentRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("unmarshal payment record: %w", err)
	}
	return rec, nil
}

// ConsumePaymentRecord atomically removes and returns the payer's record.
// Used by callers that pair this store with a non-shared authority store.
func (l *RedisPaymentLedger) ConsumePaymentRecord(ctx context.Context, payer id.Address) (domain.PaymentRecord, error) {
	payload, err := l.client.GetDel(ctx, paymentKeyPrefix+payer.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PaymentRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("consume payment record: %w", err)
	}
	var rec domain.PaymentRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("unmarshal payment record: %w", err)
	}
	return rec, nil
}

func (l *RedisPaymentLedger) credit(ctx context.Context, key string, amount int64) error {
	err := creditScript.Run(ctx, l.client, []string{key}, amount).Err()
	if err != nil && err.Error() == "overflow" {
		return ErrOverflow
	}
	if err != nil {
		return fmt.Errorf("credit %s: %w", key, err)
	}
	return nil
}

func (l *RedisPaymentLedger) CreditFees(ctx context.Context, authority id.Address, amount int64) error {
	return l.credit(ctx, feesKeyPrefix+authority.String(), amount)
}

func (l *RedisPaymentLedger) CreditLevies(ctx context.Context, authority id.Address, amount int64) error {
	return l.credit(ctx, leviesKeyPrefix+authority.String(), amount)
}

func (l *RedisPaymentLedger) sweep(ctx context.Context, key string) (int64, error) {
	val, err := l.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", key, err)
	}
	amount, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sweep %s: parse balance: %w", key, err)
	}
	return amount, nil
}

func (l *RedisPaymentLedger) SweepFees(ctx context.Context, authority id.Address) (int64, error) {
	return l.sweep(ctx, feesKeyPrefix+authority.String())
}

func (l *RedisPaymentLedger) SweepLevies(ctx context.Context, authority id.Address) (int64, error) {
	return l.sweep(ctx, leviesKeyPrefix+authority.String())
}

func (l *RedisPaymentLedger) getBalance(ctx context.Context, key string) (int64, error) {
	val, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return strconv.ParseInt(val, 10, 64)
}

func (l *RedisPaymentLedger) GetCollectedFees(ctx context.Context, authority id.Address) (int64, error) {
	return l.getBalance(ctx, feesKeyPrefix+authority.String())
}

func (l *RedisPaymentLedger) GetCollectedLevies(ctx context.Context, authority id.Address) (int64, error) {
	return l.getBalance(ctx, leviesKeyPrefix+authority.String())
}

func (l *RedisPaymentLedger) CreditPool(ctx context.Context, amount int64) error {
	return l.credit(ctx, poolKey, amount)
}

func (l *RedisPaymentLedger) DebitPool(ctx context.Context, amount int64) error {
	err := debitScript.Run(ctx, l.client, []string{poolKey}, amount).Err()
	if err != nil && err.Error() == "insufficient" {
		return ErrInsufficient
	}
	if err != nil {
		return fmt.Errorf("debit pool: %w", err)
	}
	return nil
}

func (l *RedisPaymentLedger) PoolBalance(ctx context.Context) (int64, error) {
	return l.getBalance(ctx, poolKey)
}
