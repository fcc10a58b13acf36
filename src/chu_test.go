package refclock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChuDist(t *testing.T) {
	// Identical low bytes: every bit matches, so the signed weight is +8.
	assert.Equal(t, 8, chuDist(0x63, 0x63))
	// Bitwise complementary low bytes: every bit mismatches, weight -8.
	assert.Equal(t, -8, chuDist(0x00, 0xff))
	// One mismatching bit out of eight: +7 matches, -1 mismatch = 6.
	assert.Equal(t, 6, chuDist(0x63, 0x62))
}

// TestCHUUnit_Major_PicksMaximumLikelihoodDigit exercises the per-minute
// majority vote (invariant: the decoded digit is whichever candidate has
// accumulated the most hits across its two replicated matrix rows), and
// checks that day/hour/minute are assembled from the nine winning digits
// the way chu_major does.
func TestCHUUnit_Major_PicksMaximumLikelihoodDigit(t *testing.T) {
	u := &CHUUnit{}

	// Rows 1..7 encode day="145", hour="12", minute="34"; row 0 and row 8
	// are along for the ride and don't feed day/hour/min.
	digits := []int{0, 1, 4, 5, 1, 2, 3, 4, 0}
	for i, d := range digits {
		u.decode[i][d] = 5
		u.decode[i+10][d] = 5
		// A runner-up digit, deliberately weaker, to prove the max is
		// actually being selected rather than merely the last write.
		other := (d + 1) % 16
		u.decode[i][other] = 3
		u.decode[i+10][other] = 2
	}
	u.burstcnt = 8   // each winning row totals 10 > 8, so no chuDecode flag
	u.ntstamp = chuMinStamp // avoid the chuStamp "too few timestamps" flag

	metric := u.major()

	assert.Equal(t, 9*10, metric)
	assert.Equal(t, 145, u.day)
	assert.Equal(t, 12, u.hour)
	assert.Equal(t, 34, u.min)
	assert.Zero(t, u.status&chuDecode)
	assert.Zero(t, u.status&chuStamp)
}

// TestCHUUnit_Major_FlagsWeakAgreement checks the companion failure mode:
// when a row's winning count does not exceed the burst count, chu_major
// raises chuDecode, and too few accumulated timestamps raises chuStamp.
func TestCHUUnit_Major_FlagsWeakAgreement(t *testing.T) {
	u := &CHUUnit{}
	for i := 0; i < 9; i++ {
		u.decode[i][0] = 5
		u.decode[i+10][0] = 5 // every row tops out at 10
	}
	u.burstcnt = 20 // 10 <= 20, so every row fails to reach majority
	u.ntstamp = 0   // well below chuMinStamp

	u.major()

	assert.NotZero(t, u.status&chuDecode)
	assert.NotZero(t, u.status&chuStamp)
}

// TestCHUUnit_Burst_DispatchesByCorrelationDistance exercises chu_burst's
// three-way classification: strongly-correlated halves decode as format A,
// strongly anti-correlated halves decode as format B, and anything in
// between is flagged as noise.
func TestCHUUnit_Burst_DispatchesByCorrelationDistance(t *testing.T) {
	t.Run("format B", func(t *testing.T) {
		u := &CHUUnit{ndx: chuBurst}
		// Each (i, i+5) pair is bitwise complementary, so every chu_dist
		// term is -8 and burdist lands at -40: past the -28 format-B
		// dispatch threshold, and past formatB's own -40 sync check.
		// cbuf[2..4] double as the encoded year/DST bytes formatB reads,
		// so their partners (cbuf[7..9]) are their bitwise complements.
		u.cbuf[0], u.cbuf[5] = 0x00, 0xff
		u.cbuf[1], u.cbuf[6] = 0x00, 0xff
		u.cbuf[2], u.cbuf[7] = 0x34, 0xcb
		u.cbuf[3], u.cbuf[8] = 0x12, 0xed
		u.cbuf[4], u.cbuf[9] = 0x05, 0xfa

		u.burst()

		assert.Equal(t, -40, u.burdist)
		assert.NotZero(t, u.status&chuBValid)
		assert.Equal(t, 0x1234, u.year)
		assert.Equal(t, 5, u.dst)
	})

	t.Run("format A", func(t *testing.T) {
		u := &CHUUnit{ndx: chuBurst}
		// Identical low bytes in each pair drive burdist to +40, past the
		// +28 format-A threshold.
		for i := 0; i < 5; i++ {
			u.cbuf[i] = 0x37
			u.cbuf[i+5] = 0x37
		}

		u.burst()

		assert.Equal(t, 40, u.burdist)
		// The correlation test alone doesn't guarantee a synced frame (that
		// also depends on the phase search inside formatA), but it must
		// not have been classified as noise or format B.
		assert.Zero(t, u.status&chuNoise)
		assert.Zero(t, u.status&chuBValid)
	})

	t.Run("noise", func(t *testing.T) {
		u := &CHUUnit{ndx: chuBurst}
		// Each pair disagrees on exactly half its low 8 bits, so every
		// chu_dist term is zero: burdist lands at 0, short of either
		// +-28 threshold.
		for i := 0; i < 5; i++ {
			u.cbuf[i] = 0x00
			u.cbuf[i+5] = 0x0f
		}

		u.burst()

		assert.Zero(t, u.burdist)
		assert.NotZero(t, u.status&chuNoise)
	})

	t.Run("runt", func(t *testing.T) {
		u := &CHUUnit{ndx: chuMinChar - 1}

		u.burst()

		assert.NotZero(t, u.status&chuRunt)
	})
}

// TestCHUUnit_FormatB_RejectsWeakSync confirms chu_b declines to update the
// year/DST fields when the burst distance falls short of its own (tighter)
// sync threshold, even though chu_burst's own dispatch threshold was met.
func TestCHUUnit_FormatB_RejectsWeakSync(t *testing.T) {
	u := &CHUUnit{}
	u.burdist = -30 // past chuMinDist (28) but not past formatB's -40

	u.formatB(chuBurst)

	assert.NotZero(t, u.status&chuBFrame)
	assert.Zero(t, u.status&chuBValid)
}
