package state

import (
	"time"

	"github.com/hiroq/fxcore/core"
)

// Bucket names a cooldown timer
type Bucket string

// Cooldown buckets
const (
	BucketEntryAI  Bucket = "entry_ai"
	BucketExitAI   Bucket = "exit_ai"
	BucketRegimeAI Bucket = "regime_ai"
)

// StopLossBucket returns the per-side stop-loss cooldown bucket
func StopLossBucket(side core.Side) Bucket {
	return Bucket("stop_loss_" + string(side))
}

// CooldownLedger maps buckets to the monotonic timestamp of their last event.
// Timestamps are strictly non-decreasing: setting an earlier time is a no-op.
type CooldownLedger struct {
	clock core.Clock
	last  map[Bucket]time.Duration
}

// NewCooldownLedger creates an empty ledger bound to a clock
func NewCooldownLedger(clock core.Clock) *CooldownLedger {
	return &CooldownLedger{
		clock: clock,
		last:  make(map[Bucket]time.Duration),
	}
}

// Touch records an event for a bucket at the current monotonic time
func (l *CooldownLedger) Touch(bucket Bucket) {
	l.Set(bucket, l.clock.Monotonic())
}

// Set records an event at the given monotonic time. Earlier or equal
// timestamps are ignored.
func (l *CooldownLedger) Set(bucket Bucket, at time.Duration) {
	if prev, ok := l.last[bucket]; ok && at <= prev {
		return
	}
	l.last[bucket] = at
}

// Since returns the time elapsed since the bucket's last event.
// A bucket that never fired reports a very large elapsed time.
func (l *CooldownLedger) Since(bucket Bucket) time.Duration {
	at, ok := l.last[bucket]
	if !ok {
		return time.Duration(1<<62 - 1)
	}
	return l.clock.Monotonic() - at
}

// Active reports whether the bucket fired within the window
func (l *CooldownLedger) Active(bucket Bucket, window time.Duration) bool {
	return l.Since(bucket) < window
}

// Reset clears every bucket
func (l *CooldownLedger) Reset() {
	l.last = make(map[Bucket]time.Duration)
}
