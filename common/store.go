package common

import (
	"context"
	"time"
)

const (
	// AccessTokenKey is the conventional store entry for the bearer credential.
	AccessTokenKey = "accessToken"
	// DefaultTokenTTL is how long a stored credential lives after each write.
	DefaultTokenTTL = 24 * time.Hour
)

// SessionStore holds the current bearer credential.
//
// It is shared, mutable, session-wide state. Writes are last-write-wins and
// readers must tolerate a missing or stale value, so implementations need no
// cross-call locking beyond what their backend already provides.
//
// For example, you could back this with:
//   - an in-memory map with expiry (MemoryStore)
//   - a JSON file on disk (FileStore)
//   - Redis (RedisStore)
type SessionStore interface {
	Get(ctx context.Context) (token string, found bool, err error)
	Set(ctx context.Context, token string, ttl time.Duration) error
	Clear(ctx context.Context) error
}
