package cache

import (
	"context"
	"encoding/json"
	"time"
)

// GetJSON implements cache-aside for JSON-encodable values. Cache failures
// fall through to fetch; fetch errors are never cached.
func GetJSON[T any](ctx context.Context, c Cache, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	if c != nil {
		if cached, err := c.Get(ctx, key); err == nil && cached != "" {
			var out T
			if err := json.Unmarshal([]byte(cached), &out); err == nil {
				return out, nil
			}
		}
	}

	data, err := fetch(ctx)
	if err != nil {
		return data, err
	}
	if c != nil {
		if raw, err := json.Marshal(data); err == nil {
			_ = c.Set(ctx, key, string(raw), ttl)
		}
	}
	return data, nil
}
