package trio

import "sync"

// Cooldown suppresses repeat emission of the same opportunity within a
// configurable window, keyed by Opportunity.EmitKey(). Modeled directly on
// the executor's signal dedup map, but driven by caller-supplied epoch
// milliseconds rather than time.Now() so the hot path stays deterministic
// and testable.
type Cooldown struct {
	mu         sync.Mutex
	lastEmitMs map[string]int64
	windowMs   int64
}

// NewCooldown creates a Cooldown that suppresses re-emission of the same
// key within windowMs milliseconds.
func NewCooldown(windowMs int64) *Cooldown {
	return &Cooldown{
		lastEmitMs: make(map[string]int64),
		windowMs:   windowMs,
	}
}

// Allow reports whether key may be emitted at nowMs. If allowed, it records
// nowMs as the key's last-emitted time so a following call within the
// window returns false.
func (c *Cooldown) Allow(key string, nowMs int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastEmitMs[key]; ok {
		if nowMs-last < c.windowMs {
			return false
		}
	}
	c.lastEmitMs[key] = nowMs
	return true
}

// Cleanup drops entries older than the cooldown window relative to nowMs,
// bounding map growth across long-lived trios whose tokens stop trading.
func (c *Cooldown) Cleanup(nowMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, ts := range c.lastEmitMs {
		if nowMs-ts >= c.windowMs {
			delete(c.lastEmitMs, k)
		}
	}
}
