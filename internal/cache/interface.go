package cache

import (
	"context"
	"time"

	"github.com/nebulo-im/nebulo/internal/domain"
)

type UserCacheResult struct {
	User domain.User `json:"user"`
}

// UserCache is a read-through cache for user profiles. Lookups that
// miss fall back to the repository; a cache failure is never fatal.
type UserCache interface {
	Get(ctx context.Context, key string) (*UserCacheResult, error)
	Set(ctx context.Context, key string, result *UserCacheResult, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	BuildKeyByID(userID string) string
	BuildKeyByUsername(username string) string
	Close() error
}
