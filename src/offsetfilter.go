package refclock

/*------------------------------------------------------------------
 *
 * Purpose:	60%-trimmed-mean offset filter shared by every station: a
 *		64-slot circular buffer of raw offset samples, drained and
 *		reduced to one (offset, jitter) pair per request.
 *
 *		Grounded directly on the WWV driver's offset median filter
 *		(wwv_process_offset / wwv_sample): a Shell sort with Knuth
 *		increments followed by progressively rejecting whichever
 *		end of the sorted window sits further from its midpoint,
 *		until 60% of the samples remain.
 *
 *----------------------------------------------------------------*/

import "math"

// OffsetFilterSlots is the fixed size of the circular sample buffer,
// per spec section 4.6 and section 5 ("statically sized at 64 slots").
const OffsetFilterSlots = 64

// OffsetFilter is a 64-slot circular buffer of offset samples (seconds)
// with an overwrite-oldest push policy and a trimmed-mean request.
type OffsetFilter struct {
	slots    [OffsetFilterSlots]float64
	put, get int
}

// Push records one offset sample. If the buffer is full the oldest
// sample is silently overwritten (put==get advances get too).
func (f *OffsetFilter) Push(offset float64) {
	f.put = (f.put + 1) & (OffsetFilterSlots - 1)
	f.slots[f.put] = offset
	if f.put == f.get {
		f.get = (f.get + 1) & (OffsetFilterSlots - 1)
	}
}

// PushTimestampDiff is a convenience wrapper that pushes a.Sub(b) as a
// seconds offset, as used when a station compares a decoded timecode
// against its own virtual sample clock.
func (f *OffsetFilter) PushTimestampDiff(a, b Timestamp) {
	f.Push(a.Sub(b).ToFloat())
}

// shellSortDbl sorts in ascending order in place using the same
// increment sequence (3*inc+1, Knuth) as the reference implementation.
func shellSortDbl(in []float64) {
	n := len(in)
	if n < 2 {
		return
	}
	inc := 1
	for inc <= n {
		inc = 3*inc + 1
	}
	for inc > 1 {
		inc /= 3
		for i := inc; i < n; i++ {
			v := in[i]
			j := i
			for j >= inc && in[j-inc] > v {
				in[j] = in[j-inc]
				j -= inc
			}
			in[j] = v
		}
	}
}

// Request drains the buffer, Shell-sorts it, rejects samples from
// whichever end of the window sits furthest from the window's midpoint
// until 60% remain, and returns the mean and jitter of the retained
// samples plus the number of samples that were in the buffer.
//
// Calling Request on an empty buffer returns (0, 0, 0) and makes no
// state change, per spec section 4.6.
func (f *OffsetFilter) Request() (offset, jitter float64, n int) {
	var off []float64
	for f.get != f.put {
		f.get = (f.get + 1) & (OffsetFilterSlots - 1)
		off = append(off, f.slots[f.get])
	}
	n = len(off)
	if n == 0 {
		return 0, 0, 0
	}

	shellSortDbl(off)

	i, j := 0, n
	m := n - (n*2)/5
	for j-i > m {
		mid := off[(j+i)>>1]
		if off[j-1]-mid < mid-off[i] {
			i++ // reject low end
		} else {
			j-- // reject high end
		}
	}

	var sum, sumSq float64
	for k := i; k < j; k++ {
		sum += off[k]
		if k > i {
			d := off[k] - off[k-1]
			sumSq += d * d
		}
	}
	offset = sum / float64(m)
	jitter = float64(m) * math.Sqrt(1.0/(sumSq*float64(m)))
	return offset, jitter, n
}
