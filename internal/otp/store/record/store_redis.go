package record

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"otpguard/internal/otp/models"
	"otpguard/pkg/platform/sentinel"
)

const recordKeyPrefix = "otp:rec:"

// Lua scripts keep check-then-mutate sequences single-step on the Redis side;
// plain command pipelines would reopen the races the store contract forbids.
var (
	// incrementScript bumps attempts_used only if the record exists.
	// Returns -1 for absent records.
	incrementScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
return redis.call("HINCRBY", KEYS[1], "attempts_used", 1)
`)

	// consumeScript is the compare-and-set on the consumed flag.
	// Returns 1 for the single winner, 0 otherwise.
	consumeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "consumed") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "consumed", "1")
return 1
`)

	// putScript replaces the pair's record and aligns the key TTL with the
	// record expiry in one atomic step.
	putScript = redis.NewScript(`
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1],
  "identity", ARGV[1],
  "purpose", ARGV[2],
  "code_hash", ARGV[3],
  "otp_id", ARGV[4],
  "issued_at", ARGV[5],
  "expires_at", ARGV[6],
  "attempts_used", "0",
  "max_attempts", ARGV[7],
  "consumed", "0",
  "requesting_ip", ARGV[8])
redis.call("PEXPIREAT", KEYS[1], ARGV[9])
return 1
`)
)

// RedisRecordStore is the production implementation for distributed
// deployments. Redis-native TTL provides active expiry; Get additionally
// applies the logical expiry check so the contract holds even when a key
// lingers past its deadline.
type RedisRecordStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed record store.
func NewRedis(client *redis.Client) *RedisRecordStore {
	return &RedisRecordStore{client: client}
}

func (s *RedisRecordStore) key(identity string, purpose models.Purpose) string {
	return recordKeyPrefix + identity + ":" + string(purpose)
}

func (s *RedisRecordStore) Put(ctx context.Context, record *models.Record) error {
	err := putScript.Run(ctx, s.client, []string{s.key(record.Identity, record.Purpose)},
		record.Identity,
		string(record.Purpose),
		record.CodeHash,
		record.OTPID,
		strconv.FormatInt(record.IssuedAt.UnixMilli(), 10),
		strconv.FormatInt(record.ExpiresAt.UnixMilli(), 10),
		strconv.Itoa(record.MaxAttempts),
		record.RequestingIP,
		strconv.FormatInt(record.ExpiresAt.UnixMilli(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("put otp record: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisRecordStore) Get(ctx context.Context, identity string, purpose models.Purpose, now time.Time) (*models.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key(identity, purpose)).Result()
	if err != nil {
		return nil, fmt.Errorf("get otp record: %w: %w", sentinel.ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("otp record not found: %w", sentinel.ErrNotFound)
	}

	record, err := recordFromFields(fields)
	if err != nil {
		return nil, fmt.Errorf("decode otp record: %w", err)
	}
	if record.IsExpired(now) {
		return nil, fmt.Errorf("otp record expired: %w", sentinel.ErrNotFound)
	}
	return record, nil
}

func (s *RedisRecordStore) IncrementAttempt(ctx context.Context, identity string, purpose models.Purpose) (int, error) {
	n, err := incrementScript.Run(ctx, s.client, []string{s.key(identity, purpose)}).Int()
	if err != nil {
		return 0, fmt.Errorf("increment otp attempt: %w: %w", sentinel.ErrUnavailable, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("otp record not found: %w", sentinel.ErrNotFound)
	}
	return n, nil
}

func (s *RedisRecordStore) MarkConsumed(ctx context.Context, identity string, purpose models.Purpose) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{s.key(identity, purpose)}).Int()
	if err != nil {
		return false, fmt.Errorf("mark otp consumed: %w: %w", sentinel.ErrUnavailable, err)
	}
	return n == 1, nil
}

func (s *RedisRecordStore) Delete(ctx context.Context, identity string, purpose models.Purpose) error {
	if err := s.client.Del(ctx, s.key(identity, purpose)).Err(); err != nil {
		return fmt.Errorf("delete otp record: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

// DeleteExpired is a no-op for the Redis store: PEXPIREAT set at Put time
// makes Redis reclaim keys itself.
func (s *RedisRecordStore) DeleteExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

func recordFromFields(fields map[string]string) (*models.Record, error) {
	issuedMs, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("issued_at: %w", err)
	}
	expiresMs, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("expires_at: %w", err)
	}
	attempts, err := strconv.Atoi(fields["attempts_used"])
	if err != nil {
		return nil, fmt.Errorf("attempts_used: %w", err)
	}
	maxAttempts, err := strconv.Atoi(fields["max_attempts"])
	if err != nil {
		return nil, fmt.Errorf("max_attempts: %w", err)
	}

	return &models.Record{
		Identity:     fields["identity"],
		Purpose:      models.Purpose(fields["purpose"]),
		CodeHash:     fields["code_hash"],
		OTPID:        fields["otp_id"],
		IssuedAt:     time.UnixMilli(issuedMs),
		ExpiresAt:    time.UnixMilli(expiresMs),
		AttemptsUsed: attempts,
		MaxAttempts:  maxAttempts,
		Consumed:     fields["consumed"] == "1",
		RequestingIP: fields["requesting_ip"],
	}, nil
}
