package harnessports

import "context"

// RateLimiter coordinates throughput toward the model provider.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
