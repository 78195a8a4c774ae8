package redisstore

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func resetCooldownKey(email string) string {
	return "pwreset:cooldown:" + strings.ToLower(strings.TrimSpace(email))
}

// TryResetCooldown claims the reset slot for email. It returns false while
// a previous claim is still inside ttl.
func (s *Store) TryResetCooldown(ctx context.Context, email string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, resetCooldownKey(email), time.Now().Unix(), ttl).Result()
}
