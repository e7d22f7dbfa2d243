package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "lockbox:"
	maxLockTxRetries = 5
	lockoutKeyGrace  = time.Minute
)

// RedisAttemptStore keeps attempts in a per-email sorted set scored by
// attempt time in milliseconds, the active lockout as a JSON string with a
// TTL, and the escalation ledger as a plain counter without one.
type RedisAttemptStore struct {
	client *redis.Client
}

// NewRedisAttemptStore creates a store on an existing client
func NewRedisAttemptStore(client *redis.Client) *RedisAttemptStore {
	return &RedisAttemptStore{client: client}
}

func attemptsKey(email string) string { return redisKeyPrefix + "attempts:" + email }
func lockoutKey(email string) string  { return redisKeyPrefix + "lockout:" + email }
func counterKey(email string) string  { return redisKeyPrefix + "lockout_count:" + email }

// exclusive lower score bound for "attempted_at > since"
func afterScore(since time.Time) string {
	return "(" + strconv.FormatInt(since.UnixMilli(), 10)
}

// RecordAttempt adds the attempt and prunes members past their retention
func (s *RedisAttemptStore) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}

	member, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("failed to encode attempt: %w", err)
	}

	key := attemptsKey(attempt.Email)
	retention := attempt.ExpiresAt.Sub(attempt.AttemptedAt)
	pruneBefore := attempt.AttemptedAt.Add(-retention).UnixMilli()

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(attempt.AttemptedAt.UnixMilli()), Member: member})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(pruneBefore, 10))
		pipe.ExpireAt(ctx, key, attempt.ExpiresAt)
		return nil
	})
	return err
}

// CountAttemptsSince returns the number of attempts strictly after since
func (s *RedisAttemptStore) CountAttemptsSince(ctx context.Context, email string, since time.Time) (int, error) {
	n, err := s.client.ZCount(ctx, attemptsKey(email), afterScore(since), "+inf").Result()
	return int(n), err
}

// GetAttemptsSince returns attempts strictly after since, newest first
func (s *RedisAttemptStore) GetAttemptsSince(ctx context.Context, email string, since time.Time) ([]*models.LoginAttempt, error) {
	members, err := s.client.ZRevRangeByScore(ctx, attemptsKey(email), &redis.ZRangeBy{
		Min: afterScore(since),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	attempts := make([]*models.LoginAttempt, 0, len(members))
	for _, m := range members {
		var a models.LoginAttempt
		if err := json.Unmarshal([]byte(m), &a); err != nil {
			return nil, fmt.Errorf("failed to decode attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}
	return attempts, nil
}

// DeleteAttempts removes every attempt for an email
func (s *RedisAttemptStore) DeleteAttempts(ctx context.Context, email string) error {
	return s.client.Del(ctx, attemptsKey(email)).Err()
}

// DeleteExpiredAttempts is a no-op: attempt sets carry their own TTL
func (s *RedisAttemptStore) DeleteExpiredAttempts(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// GetLockout returns the active lockout or models.ErrNotFound
func (s *RedisAttemptStore) GetLockout(ctx context.Context, email string) (*models.AccountLockout, error) {
	raw, err := s.client.Get(ctx, lockoutKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var l models.AccountLockout
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("failed to decode lockout: %w", err)
	}
	return &l, nil
}

// LockIfThresholdReached is an optimistic WATCH/MULTI transaction over the
// attempt set, the ledger and the lockout; it retries when another writer
// touches any of them first.
func (s *RedisAttemptStore) LockIfThresholdReached(ctx context.Context, email string, since time.Time, threshold int, next models.LockoutFunc) (*models.AccountLockout, error) {
	aKey, cKey, lKey := attemptsKey(email), counterKey(email), lockoutKey(email)

	for i := 0; i < maxLockTxRetries; i++ {
		var lockout *models.AccountLockout

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			count, err := tx.ZCount(ctx, aKey, afterScore(since), "+inf").Result()
			if err != nil {
				return err
			}
			if int(count) < threshold {
				return nil
			}

			previous, err := tx.Get(ctx, cKey).Int()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			candidate := next(previous, int(count))
			candidate.Email = email

			running, err := activeAt(ctx, tx, lKey, candidate.LockedAt)
			if err != nil {
				return err
			}
			if running {
				// absorbed by the lockout already in force
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, aKey)
					return nil
				})
				return err
			}

			payload, err := json.Marshal(candidate)
			if err != nil {
				return fmt.Errorf("failed to encode lockout: %w", err)
			}
			lockout = candidate

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, lKey, payload, 0)
				pipe.ExpireAt(ctx, lKey, candidate.UnlockAt.Add(lockoutKeyGrace))
				pipe.Set(ctx, cKey, candidate.LockoutCount, 0)
				pipe.Del(ctx, aKey)
				return nil
			})
			return err
		}, aKey, cKey, lKey)

		if err == nil {
			return lockout, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("lockout transaction for %s did not settle after %d attempts", email, maxLockTxRetries)
}

// activeAt reports whether the stored lockout is still running at instant
func activeAt(ctx context.Context, tx *redis.Tx, key string, instant time.Time) (bool, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var l models.AccountLockout
	if err := json.Unmarshal(raw, &l); err != nil {
		return false, fmt.Errorf("failed to decode lockout: %w", err)
	}
	return !l.IsExpired(instant), nil
}

// DeleteLockout removes the active lockout; the ledger is kept
func (s *RedisAttemptStore) DeleteLockout(ctx context.Context, email string) error {
	return s.client.Del(ctx, lockoutKey(email)).Err()
}

// DeleteLockoutIfExpired removes the lockout only if it has run out at now
func (s *RedisAttemptStore) DeleteLockoutIfExpired(ctx context.Context, email string, now time.Time) (bool, error) {
	key := lockoutKey(email)
	deleted := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var l models.AccountLockout
		if err := json.Unmarshal(raw, &l); err != nil {
			return fmt.Errorf("failed to decode lockout: %w", err)
		}
		if !l.IsExpired(now) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}, key)

	// A concurrent write means the lock changed under us; leave it alone
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return deleted, err
}

// DeleteExpiredLockouts is a no-op: lockout keys carry their own TTL
func (s *RedisAttemptStore) DeleteExpiredLockouts(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// Ping checks connectivity
func (s *RedisAttemptStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
