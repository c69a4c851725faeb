package cache

import (
	"context"
	"time"
)

// BytesCache is a best-effort byte cache; a miss or a failure never blocks
// the caller from going to the database.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
