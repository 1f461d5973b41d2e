package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestAllowRefillsOverTime(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rl := NewRateLimiter()
	rl.now = clock.now

	for i := 0; i < 5; i++ {
		ok, _ := rl.Allow("u1", ActionSendProposal)
		assert.True(t, ok, "attempt %d", i)
	}

	ok, wait := rl.Allow("u1", ActionSendProposal)
	assert.False(t, ok)
	assert.InDelta(t, float64(12*time.Second), float64(wait), float64(time.Millisecond))

	// Buckets are per user.
	ok, _ = rl.Allow("u2", ActionSendProposal)
	assert.True(t, ok)

	clock.t = clock.t.Add(12*time.Second + time.Millisecond)
	ok, _ = rl.Allow("u1", ActionSendProposal)
	assert.True(t, ok)
	ok, _ = rl.Allow("u1", ActionSendProposal)
	assert.False(t, ok)
}

func TestWithPolicyAndCleanup(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rl := NewRateLimiter().WithPolicy(ActionSendMessage, Policy{Burst: 1, Refill: time.Minute})
	rl.now = clock.now

	ok, _ := rl.Allow("u1", ActionSendMessage)
	assert.True(t, ok)
	ok, _ = rl.Allow("u1", ActionSendMessage)
	assert.False(t, ok)

	// Refused calls do not push the next token further out.
	for i := 0; i < 3; i++ {
		ok, _ = rl.Allow("u1", ActionSendMessage)
		assert.False(t, ok)
	}
	clock.t = clock.t.Add(time.Minute + time.Millisecond)
	ok, _ = rl.Allow("u1", ActionSendMessage)
	assert.True(t, ok)

	clock.t = clock.t.Add(2 * time.Hour)
	assert.Equal(t, 1, rl.Cleanup(time.Hour))
	assert.Equal(t, 0, rl.Cleanup(time.Hour))
}
