package vault

import "time"

// Clock supplies the monotonically non-decreasing height and wall-clock
// anchors used by every ledger operation. Threading it in explicitly keeps
// the accrual math deterministic and testable without a live clock.
type Clock interface {
	Height() uint64
	Timestamp() uint64
}

// TickingClock derives height from wall-clock time elapsed since a genesis
// instant, one height unit per interval. It is the clock wired by the daemon;
// tests use a manual implementation instead.
type TickingClock struct {
	genesis  time.Time
	interval time.Duration
	nowFn    func() time.Time
}

// NewTickingClock constructs a clock that advances one height per interval.
// A non-positive interval defaults to one second.
func NewTickingClock(genesis time.Time, interval time.Duration) *TickingClock {
	if interval <= 0 {
		interval = time.Second
	}
	return &TickingClock{genesis: genesis, interval: interval, nowFn: time.Now}
}

// SetNowFunc overrides the time source, primarily for tests.
func (c *TickingClock) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	c.nowFn = now
}

// Height implements Clock.
func (c *TickingClock) Height() uint64 {
	elapsed := c.nowFn().Sub(c.genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / c.interval)
}

// Timestamp implements Clock.
func (c *TickingClock) Timestamp() uint64 {
	now := c.nowFn().Unix()
	if now < 0 {
		return 0
	}
	return uint64(now)
}
