// Package ratelimit counts requests per key and rejects a key once it has
// used up its allowance for the current window.
//
// Two implementations share the Limiter interface: Memory keeps a sliding
// window per key inside the process, Redis keeps a fixed window per key in
// Redis so that several server processes share one budget.
package ratelimit

import "context"

// Limiter decides whether the request identified by key may proceed.
// An error means the decision could not be made; callers choose whether to
// fail open or closed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
