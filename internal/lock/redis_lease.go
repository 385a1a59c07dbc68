package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisLease is a per-user run lock backed by a Redis key with a TTL.
// The outer trigger loop acquires the lease before starting a run and
// heartbeats it while the run is in flight; the orchestration core only
// asserts liveness through Guard.
type RedisLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
	log    zerolog.Logger
}

// acquireScript sets the lease only when free; renewScript and releaseScript
// only touch a lease this process still owns.
var (
	renewScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		end
		return 0
	`)
	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
)

// AcquireRedisLease attempts to take the per-user run lease. Returns nil
// without error when the lease is already held by another run.
func AcquireRedisLease(ctx context.Context, client *redis.Client, user string, ttl time.Duration, log zerolog.Logger) (*RedisLease, error) {
	lease := &RedisLease{
		client: client,
		key:    "coinpilot:run-lock:" + user,
		token:  uuid.NewString(),
		ttl:    ttl,
		log:    log.With().Str("component", "run_lock").Str("user", user).Logger(),
	}

	ok, err := client.SetNX(ctx, lease.key, lease.token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lease: %w", err)
	}
	if !ok {
		lease.log.Info().Msg("Run lease already held, skipping run")
		return nil, nil
	}

	lease.log.Debug().Dur("ttl", ttl).Msg("Run lease acquired")
	return lease, nil
}

// Renew extends the lease TTL. Returns ErrLockLost when the lease is gone
// or owned by someone else.
func (l *RedisLease) Renew(ctx context.Context) error {
	n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to renew run lease: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Release frees the lease if this process still owns it
func (l *RedisLease) Release(ctx context.Context) {
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result(); err != nil {
		l.log.Warn().Err(err).Msg("Failed to release run lease")
	}
}

// Guard returns the liveness assertion the orchestrator invokes between
// network-bound steps. It checks that the lease key still carries this
// run's token.
func (l *RedisLease) Guard() Guard {
	return func(ctx context.Context) error {
		val, err := l.client.Get(ctx, l.key).Result()
		if err == redis.Nil {
			return ErrLockLost
		}
		if err != nil {
			// Transient Redis failure: treat as lost rather than risk a
			// concurrent run mutating the same account.
			return fmt.Errorf("run lease check failed: %w", ErrLockLost)
		}
		if val != l.token {
			return ErrLockLost
		}
		return nil
	}
}
