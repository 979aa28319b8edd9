package rate

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"
)

const memoryShards = 32

type bucket struct {
	tokens float64
	last   time.Time
	fullAt time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// MemoryBucket is an in-process [Limiter].
type MemoryBucket struct {
	shards [memoryShards]shard
	now    func() time.Time
}

// NewMemoryBucket creates an in-process limiter. A nil clock uses time.Now.
func NewMemoryBucket(now func() time.Time) *MemoryBucket {
	if now == nil {
		now = time.Now
	}
	m := &MemoryBucket{now: now}
	for i := range m.shards {
		m.shards[i].buckets = make(map[string]*bucket)
	}
	return m
}

func (m *MemoryBucket) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &m.shards[h.Sum32()%memoryShards]
}

// Admit implements [Limiter].
func (m *MemoryBucket) Admit(ctx context.Context, rule Rule, key string) (Decision, error) {
	if err := rule.Validate(); err != nil {
		return Decision{}, err
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	id := rule.Name + ":" + key
	s := m.shardFor(id)
	now := m.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[id]
	if !ok {
		b = &bucket{tokens: float64(rule.MaxTokens), last: now}
		s.buckets[id] = b
	}
	if now.After(b.last) {
		b.tokens = refill(rule, b.tokens, now.Sub(b.last))
		b.last = now
	}

	d := Decision{}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
	} else {
		d.RetryAfter = rule.retryAfter(b.tokens)
	}
	d.Remaining = int(math.Floor(b.tokens))
	b.fullAt = b.last.Add(time.Duration(float64(rule.fullRefill()) * (1 - b.tokens/float64(rule.MaxTokens))))
	return d, nil
}

// Sweep drops buckets that have refilled completely, since a fresh bucket is
// equivalent. It returns the number of buckets removed.
func (m *MemoryBucket) Sweep() int {
	now := m.now()
	removed := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for id, b := range s.buckets {
			if !now.Before(b.fullAt) {
				delete(s.buckets, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of live buckets.
func (m *MemoryBucket) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.buckets)
		s.mu.Unlock()
	}
	return n
}
