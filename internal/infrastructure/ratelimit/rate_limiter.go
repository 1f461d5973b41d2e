package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Action string

const (
	ActionSendMessage      Action = "send_message"
	ActionSendProposal     Action = "send_proposal"
	ActionOpenConversation Action = "open_conversation"

	// Per-IP HTTP buckets.
	ActionPaymentAPI Action = "payment_api"
	ActionWebhook    Action = "payment_webhook"
)

// Policy is a token bucket shape: Burst tokens, one token back every Refill.
type Policy struct {
	Burst  int
	Refill time.Duration
}

var defaultPolicies = map[Action]Policy{
	ActionSendMessage:      {Burst: 10, Refill: 6 * time.Second},
	ActionSendProposal:     {Burst: 5, Refill: 12 * time.Second},
	ActionOpenConversation: {Burst: 20, Refill: 3 * time.Minute},
	ActionPaymentAPI:       {Burst: 10, Refill: 6 * time.Second},
	ActionWebhook:          {Burst: 100, Refill: 600 * time.Millisecond},
}

var fallbackPolicy = Policy{Burst: 20, Refill: 3 * time.Second}

type bucket struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastUsed time.Time
}

func newBucket(p Policy, now time.Time) *bucket {
	return &bucket{limiter: rate.NewLimiter(rate.Every(p.Refill), p.Burst), lastUsed: now}
}

// take reserves a token at now. A reservation that would have to wait is
// handed back so refused calls do not eat into the next token.
func (b *bucket) take(now time.Time) (bool, time.Duration) {
	b.mu.Lock()
	b.lastUsed = now
	b.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, rate.InfDuration
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (b *bucket) idleSince(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.lastUsed)
}

// RateLimiter keeps one bucket per user and action.
type RateLimiter struct {
	mu       sync.RWMutex
	buckets  map[string]*bucket
	policies map[Action]Policy
	now      func() time.Time
}

func NewRateLimiter() *RateLimiter {
	policies := make(map[Action]Policy, len(defaultPolicies))
	for a, p := range defaultPolicies {
		policies[a] = p
	}
	return &RateLimiter{
		buckets:  make(map[string]*bucket),
		policies: policies,
		now:      time.Now,
	}
}

// WithPolicy overrides the bucket shape for an action. Existing buckets keep
// their old shape until they are cleaned up.
func (rl *RateLimiter) WithPolicy(action Action, p Policy) *RateLimiter {
	rl.mu.Lock()
	rl.policies[action] = p
	rl.mu.Unlock()
	return rl
}

// Allow consumes a token for userID and action. When it refuses, the second
// value is how long until the next token.
func (rl *RateLimiter) Allow(userID string, action Action) (bool, time.Duration) {
	key := userID + ":" + string(action)
	now := rl.now()

	rl.mu.RLock()
	b, ok := rl.buckets[key]
	rl.mu.RUnlock()

	if !ok {
		rl.mu.Lock()
		if b, ok = rl.buckets[key]; !ok {
			p, known := rl.policies[action]
			if !known {
				p = fallbackPolicy
			}
			b = newBucket(p, now)
			rl.buckets[key] = b
		}
		rl.mu.Unlock()
	}

	return b.take(now)
}

// Cleanup drops buckets idle for longer than maxIdle and returns how many it removed.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, b := range rl.buckets {
		if b.idleSince(now) > maxIdle {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}
