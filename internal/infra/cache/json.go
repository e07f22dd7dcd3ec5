package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/boddenberg/fleetpay-go/internal/port"
)

// GetJSON decodes the value at key into a T. A value that no longer decodes
// (shape changed between releases) counts as a miss.
func GetJSON[T any](ctx context.Context, c port.Cache, key string) (T, bool) {
	var out T
	b, ok := c.Get(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(b, &out); err != nil {
		c.Delete(ctx, key)
		var zero T
		return zero, false
	}
	return out, true
}

// SetJSON encodes value and stores it under key.
func SetJSON[T any](ctx context.Context, c port.Cache, key string, value T, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.Set(ctx, key, b, ttl)
	return nil
}
