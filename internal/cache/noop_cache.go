package cache

import (
	"context"
	"fmt"
	"time"
)

// NoopUserCache satisfies UserCache when Redis is disabled. Every read
// misses and every write succeeds.
type NoopUserCache struct{}

func NewNoopUserCache() *NoopUserCache {
	return &NoopUserCache{}
}

func (NoopUserCache) Get(context.Context, string) (*UserCacheResult, error) {
	return nil, ErrCacheMiss
}

func (NoopUserCache) Set(context.Context, string, *UserCacheResult, time.Duration) error {
	return nil
}

func (NoopUserCache) Delete(context.Context, ...string) error {
	return nil
}

func (NoopUserCache) BuildKeyByID(userID string) string {
	return fmt.Sprintf("user:id:%s", userID)
}

func (NoopUserCache) BuildKeyByUsername(username string) string {
	return fmt.Sprintf("user:username:%s", username)
}

func (NoopUserCache) Close() error {
	return nil
}
