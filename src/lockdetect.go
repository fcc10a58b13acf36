package refclock

/*------------------------------------------------------------------
 *
 * Purpose:	Shared hysteresis lock-detector: a shift register recording
 *		a hit/miss bit per interval, whose popcount crossing two
 *		thresholds declares "locked" or "lost". This is the same
 *		shape as the CHU survivor lock, the WWV minute-sync
 *		reachability register (spec section 4.4 "qrz"), and the
 *		IRIG frame-sync state.
 *
 *		Adapted from the data-carrier-detect hysteresis used by
 *		the 9600 baud and AFSK demodulators: a running score of how
 *		many of the last N intervals looked "good" versus "bad".
 *
 *----------------------------------------------------------------*/

import "math/bits"

// LockDetector tracks whether a periodic quality signal has been "good"
// often enough, recently enough, to call the receiver locked.
type LockDetector struct {
	ThresholdOn  int // locks when popcount(history) >= ThresholdOn
	ThresholdOff int // unlocks when popcount(history) <= ThresholdOff
	Width        int // number of bits of history retained, <= 64

	history uint64
	Locked  bool
}

// NewLockDetector builds a detector over the given history width with the
// given on/off popcount thresholds.
func NewLockDetector(width, thresholdOn, thresholdOff int) *LockDetector {
	return &LockDetector{ThresholdOn: thresholdOn, ThresholdOff: thresholdOff, Width: width}
}

// Mask returns the bits of history actually in use.
func (l *LockDetector) mask() uint64 {
	if l.Width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(l.Width)) - 1
}

// Update shifts one new hit/miss bit into the register and re-evaluates
// the lock state, returning the popcount of the retained history (the
// station "metric" in spec terms) and whether Locked changed.
func (l *LockDetector) Update(hit bool) (metric int, changed bool) {
	l.history <<= 1
	if hit {
		l.history |= 1
	}
	l.history &= l.mask()

	metric = bits.OnesCount64(l.history)
	was := l.Locked
	switch {
	case metric >= l.ThresholdOn:
		l.Locked = true
	case metric <= l.ThresholdOff:
		l.Locked = false
	}
	return metric, l.Locked != was
}

// Reset clears the history and lock state. The stations' hard resets
// ("newgame" in spec terms) do not call it; each keeps its own state.
func (l *LockDetector) Reset() {
	l.history = 0
	l.Locked = false
}
