package rate

import "errors"

var (
	// ErrRateLimited is returned by helpers that convert a denied [Decision] into an error.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps failures of the Redis-backed bucket.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidRule is returned when a [Rule] cannot describe a bucket.
	ErrInvalidRule = errors.New("invalid rate limit rule")
)
