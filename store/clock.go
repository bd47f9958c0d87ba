package store

import "time"

// Clock supplies the millisecond timestamp TTL expiry is computed and
// compared against. Injectable so tests can advance time without sleeping;
// the same clock is used on write (computing expire_ms) and on read
// (comparing against it).
type Clock interface {
	NowMS() int64
}

type systemClock struct{}

func (systemClock) NowMS() int64 { return time.Now().UnixMilli() }

// manualClock is a test-only Clock advanced explicitly.
type manualClock struct{ ms int64 }

// NewManualClock returns a Clock starting at ms, for TTL tests that need to
// simulate time passing without real sleeps.
func NewManualClock(ms int64) Clock { return &manualClock{ms: ms} }

func (c *manualClock) NowMS() int64 { return c.ms }

// Advance moves a clock created with NewManualClock forward by delta
// milliseconds. Panics if clock is not one returned by NewManualClock.
func Advance(clock Clock, delta int64) {
	mc := clock.(*manualClock)
	mc.ms += delta
}
