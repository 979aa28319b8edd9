package rate

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Rule describes one bucket class.
type Rule struct {
	Name       string
	MaxTokens  int
	RefillRate float64
	Window     time.Duration
}

// Validate reports whether the rule can back a bucket.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRule)
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("%w: %s max tokens must be > 0", ErrInvalidRule, r.Name)
	}
	if r.RefillRate <= 0 {
		return fmt.Errorf("%w: %s refill rate must be > 0", ErrInvalidRule, r.Name)
	}
	if r.Window <= 0 {
		return fmt.Errorf("%w: %s window must be > 0", ErrInvalidRule, r.Name)
	}
	return nil
}

// fullRefill is the time an empty bucket needs to become full again.
func (r Rule) fullRefill() time.Duration {
	return time.Duration(float64(r.Window) * float64(r.MaxTokens) / r.RefillRate)
}

// retryAfter is the wait until one token is available given the current level.
func (r Rule) retryAfter(tokens float64) time.Duration {
	missing := 1 - tokens
	if missing <= 0 {
		return 0
	}
	wait := time.Duration(math.Ceil(missing * float64(r.Window) / r.RefillRate))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Err returns [ErrRateLimited] for a denied decision and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrRateLimited
}

// Limiter admits or denies a request for key under rule.
type Limiter interface {
	Admit(ctx context.Context, rule Rule, key string) (Decision, error)
}

// refill returns the token level after elapsed time, capped at MaxTokens.
func refill(rule Rule, tokens float64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return tokens
	}
	tokens += float64(elapsed) / float64(rule.Window) * rule.RefillRate
	if limit := float64(rule.MaxTokens); tokens > limit {
		tokens = limit
	}
	return tokens
}
