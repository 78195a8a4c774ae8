package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Values are compared before touching the key so one holder can never
// extend or drop another holder's lease.
var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Lease is a single-holder lock with a TTL, used to keep one reminder
// poller active across worker replicas.
type Lease struct {
	store *Store
	key   string
	owner string
	ttl   time.Duration
}

func (s *Store) NewLease(key, owner string, ttl time.Duration) *Lease {
	return &Lease{store: s, key: key, owner: owner, ttl: ttl}
}

// Acquire takes the lease if it is free, or renews it if already ours.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.store.rdb.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil || ok {
		return ok, err
	}
	return l.Renew(ctx)
}

func (l *Lease) Renew(ctx context.Context) (bool, error) {
	n, err := renewScript.Run(ctx, l.store.rdb, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *Lease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.store.rdb, []string{l.key}, l.owner).Err()
}
