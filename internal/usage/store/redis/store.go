package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"transferai/internal/usage/models"
	"transferai/pkg/platform/sentinel"
)

const keyPrefix = "usage:"

// Times are stored as unix milliseconds so the scripts can compare them.
const (
	fieldEmail        = "email"
	fieldName         = "name"
	fieldTier         = "tier"
	fieldRequestsUsed = "requests_used"
	fieldPeriodStart  = "period_start"
	fieldLastRequest  = "last_request_at"
	fieldCreatedAt    = "created_at"
)

// consumeScript returns {allowed, requests_used, period_start, tier, last_request_at}
// or {-1} when the account does not exist.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
  return {-1}
end
local tier = redis.call('HGET', key, 'tier')
local limit = tonumber(ARGV[1])
if tier == 'premium' then
  limit = tonumber(ARGV[2])
end
local day_start = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local used = tonumber(redis.call('HGET', key, 'requests_used') or '0')
local period = tonumber(redis.call('HGET', key, 'period_start') or '0')
local last = tonumber(redis.call('HGET', key, 'last_request_at') or '0')
local stale = period < day_start
local effective = used
if stale then
  effective = 0
end
if effective >= limit then
  return {0, used, period, tier, last}
end
if stale then
  period = now
end
used = effective + 1
redis.call('HSET', key, 'requests_used', used, 'period_start', period, 'last_request_at', now)
return {1, used, period, tier, now}
`)

// ensureScript writes the record only if the key is absent.
var ensureScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// setTierScript refuses to create a record for an unknown account.
var setTierScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'tier', ARGV[1])
return 1
`)

// RedisStore keeps usage records in hashes. Every mutation is a Lua script so
// it runs atomically on the server.
type RedisStore struct {
	client *redis.Client
}

func New(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(accountID string) string {
	return keyPrefix + accountID
}

func (s *RedisStore) Get(ctx context.Context, accountID string) (*models.Record, error) {
	fields, err := s.client.HGetAll(ctx, key(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get usage record: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return decode(accountID, fields)
}

func (s *RedisStore) Ensure(ctx context.Context, rec *models.Record) (*models.Record, error) {
	if rec == nil || rec.AccountID == "" {
		return nil, fmt.Errorf("account id is required")
	}
	tier := rec.Tier
	if tier == "" {
		tier = models.TierFree
	}
	args := []any{
		fieldEmail, rec.Email,
		fieldName, rec.Name,
		fieldTier, string(tier),
		fieldRequestsUsed, rec.RequestsUsed,
		fieldPeriodStart, rec.PeriodStart.UnixMilli(),
		fieldCreatedAt, rec.CreatedAt.UnixMilli(),
	}
	if err := ensureScript.Run(ctx, s.client, []string{key(rec.AccountID)}, args...).Err(); err != nil {
		return nil, fmt.Errorf("ensure usage record: %w", err)
	}
	return s.Get(ctx, rec.AccountID)
}

func (s *RedisStore) Consume(ctx context.Context, accountID string, limits models.Limits, dayStart, now time.Time) (*models.Record, bool, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{key(accountID)},
		limits.Free, limits.Premium, dayStart.UnixMilli(), now.UnixMilli()).Slice()
	if err != nil {
		return nil, false, fmt.Errorf("consume usage: %w", err)
	}
	if len(res) == 0 {
		return nil, false, fmt.Errorf("consume usage: empty script result")
	}
	status, _ := res[0].(int64)
	if status < 0 {
		return nil, false, sentinel.ErrNotFound
	}
	if len(res) < 5 {
		return nil, false, fmt.Errorf("consume usage: unexpected script result %v", res)
	}

	used, _ := res[1].(int64)
	period, _ := res[2].(int64)
	tier, _ := res[3].(string)
	last, _ := res[4].(int64)
	rec := &models.Record{
		AccountID:    accountID,
		Tier:         models.Tier(tier),
		RequestsUsed: int(used),
		PeriodStart:  time.UnixMilli(period).UTC(),
	}
	if last > 0 {
		at := time.UnixMilli(last).UTC()
		rec.LastRequestAt = &at
	}
	return rec, status == 1, nil
}

func (s *RedisStore) SetTier(ctx context.Context, accountID string, tier models.Tier) error {
	if !tier.IsValid() {
		return fmt.Errorf("set tier %q: %w", tier, sentinel.ErrInvalidState)
	}
	n, err := setTierScript.Run(ctx, s.client, []string{key(accountID)}, string(tier)).Int()
	if err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func decode(accountID string, fields map[string]string) (*models.Record, error) {
	rec := &models.Record{
		AccountID: accountID,
		Email:     fields[fieldEmail],
		Name:      fields[fieldName],
		Tier:      models.Tier(fields[fieldTier]),
	}
	var err error
	if rec.RequestsUsed, err = strconv.Atoi(fields[fieldRequestsUsed]); err != nil {
		return nil, fmt.Errorf("decode requests_used: %w", err)
	}
	if rec.PeriodStart, err = millis(fields[fieldPeriodStart]); err != nil {
		return nil, fmt.Errorf("decode period_start: %w", err)
	}
	if rec.CreatedAt, err = millis(fields[fieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if raw, ok := fields[fieldLastRequest]; ok {
		at, err := millis(raw)
		if err != nil {
			return nil, fmt.Errorf("decode last_request_at: %w", err)
		}
		rec.LastRequestAt = &at
	}
	return rec, nil
}

func millis(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(v).UTC(), nil
}
