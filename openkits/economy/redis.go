package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// chargeScript debits a balance once per transaction id. It returns 1 if the transaction is charged,
// either now or by an earlier call, and 0 if the balance is too low.
var chargeScript = redis.NewScript(`
local state = redis.call('GET', KEYS[2])
if state then
	return 1
end
local balance = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
if balance < amount then
	return 0
end
redis.call('DECRBY', KEYS[1], amount)
redis.call('SET', KEYS[2], 'charged', 'EX', ARGV[2])
return 1
`)

// refundScript credits a balance back once for a charged transaction id. It returns 1 if the refund
// happened now and 0 if there was nothing to refund.
var refundScript = redis.NewScript(`
if redis.call('GET', KEYS[2]) ~= 'charged' then
	return 0
end
redis.call('INCRBY', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], 'refunded', 'EX', ARGV[2])
return 1
`)

// RedisConfig configures a Redis provider.
type RedisConfig struct {
	// Prefix is prepended to every key. It defaults to "openkits".
	Prefix string
	// Scale is the number of decimal places balances are stored with, as integer minor units.
	Scale int32
	// MarkerTTL is how long transaction markers are kept.
	MarkerTTL time.Duration
}

// Redis is a Provider keeping balances in Redis. Balances are integers of minor units so that the
// scripts can use INCRBY and DECRBY.
type Redis struct {
	log    *slog.Logger
	client redis.UniversalClient
	conf   RedisConfig
}

// NewRedis ...
func NewRedis(log *slog.Logger, client redis.UniversalClient, conf RedisConfig) *Redis {
	if conf.Prefix == "" {
		conf.Prefix = "openkits"
	}
	if conf.Scale < 0 {
		conf.Scale = 0
	}
	if conf.MarkerTTL <= 0 {
		conf.MarkerTTL = 24 * time.Hour
	}
	return &Redis{log: log, client: client, conf: conf}
}

// Charge ...
func (r *Redis) Charge(ctx context.Context, txID string, player uuid.UUID, amount decimal.Decimal) error {
	units, err := r.units(amount)
	if err != nil {
		return err
	}
	if units == 0 {
		return nil
	}
	ok, err := chargeScript.Run(ctx, r.client, r.keys(txID, player), units, r.ttl()).Int()
	if err != nil {
		return r.unavailable("charge", err)
	}
	if ok == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// Refund ...
func (r *Redis) Refund(ctx context.Context, txID string, player uuid.UUID, amount decimal.Decimal) error {
	units, err := r.units(amount)
	if err != nil {
		return err
	}
	if units == 0 {
		return nil
	}
	refunded, err := refundScript.Run(ctx, r.client, r.keys(txID, player), units, r.ttl()).Int()
	if err != nil {
		return r.unavailable("refund", err)
	}
	if refunded == 0 {
		r.log.Debug("refund skipped, transaction was not charged", "tx", txID, "player", player)
	}
	return nil
}

// Balance ...
func (r *Redis) Balance(ctx context.Context, player uuid.UUID) (decimal.Decimal, error) {
	units, err := r.client.Get(ctx, r.balanceKey(player)).Int64()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, r.unavailable("balance", err)
	}
	return decimal.New(units, -r.conf.Scale), nil
}

// Deposit adds an amount to the balance of a player.
func (r *Redis) Deposit(ctx context.Context, player uuid.UUID, amount decimal.Decimal) error {
	units, err := r.units(amount)
	if err != nil {
		return err
	}
	if err := r.client.IncrBy(ctx, r.balanceKey(player), units).Err(); err != nil {
		return r.unavailable("deposit", err)
	}
	return nil
}

// units converts an amount to minor units. Amounts with more precision than the configured scale are
// rejected rather than rounded.
func (r *Redis) units(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("negative amount %s", amount)
	}
	shifted := amount.Shift(r.conf.Scale)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", amount, r.conf.Scale)
	}
	return shifted.IntPart(), nil
}

// keys returns the balance and transaction marker keys passed to the scripts.
func (r *Redis) keys(txID string, player uuid.UUID) []string {
	return []string{r.balanceKey(player), fmt.Sprintf("%s:tx:%s", r.conf.Prefix, txID)}
}

// balanceKey ...
func (r *Redis) balanceKey(player uuid.UUID) string {
	return fmt.Sprintf("%s:balance:%s", r.conf.Prefix, player)
}

// ttl returns the marker TTL in whole seconds.
func (r *Redis) ttl() int64 {
	return max(int64(r.conf.MarkerTTL/time.Second), 1)
}

// unavailable logs a failed Redis call and wraps the error as ErrUnavailable.
func (r *Redis) unavailable(op string, err error) error {
	r.log.Warn("economy call failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
