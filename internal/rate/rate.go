// Package rate provides fixed-window request counters keyed by client.
// Windows are independent per key; a key is usually "policy:ip".
package rate

import (
	"context"
	"time"
)

type Limiter interface {
	// Allow counts one request against the key's current window. When the
	// limit is exceeded it returns false and the time until the window
	// resets, and the request is not counted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration)
	// Forgive removes one previously counted request, used to exclude
	// requests that completed successfully from auth policies.
	Forgive(ctx context.Context, key string)
}
