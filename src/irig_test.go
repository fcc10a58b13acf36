package refclock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRIGUnit_RF_DecimationRunsBaseEverySampleForIRIGB(t *testing.T) {
	// Regression test for the decimation-dispatch fix: decim==1 (IRIG-B)
	// must call base() on every sample, not almost never.
	u := NewIRIGUnit(0)
	require.Equal(t, 1, u.decim)

	for i := 0; i < 5; i++ {
		u.rf(0)
	}
	assert.EqualValues(t, 5, u.envphase, "base() must run on every sample when decim==1")
}

func TestIRIGUnit_RF_DecimationSkipsNineOfTenSamplesForIRIGE(t *testing.T) {
	u := NewIRIGUnit(0)
	u.decim = 10
	u.fdelay = irigDelayE

	for i := 0; i < 9; i++ {
		u.rf(0)
	}
	assert.Zero(t, u.envphase, "base() must not run until the tenth sample")

	u.rf(0)
	assert.EqualValues(t, 1, u.envphase, "base() runs on exactly the tenth sample")
}

func TestIRIGUnit_Baud_PulseWidthClassification(t *testing.T) {
	u := NewIRIGUnit(0)
	u.baud(0x00)
	assert.Zero(t, u.errflg&IRIGErrDecode)

	u2 := NewIRIGUnit(0)
	u2.baud(0xc0)
	assert.Zero(t, u2.errflg&IRIGErrDecode)

	u3 := NewIRIGUnit(0)
	u3.baud(0xf8)
	assert.Zero(t, u3.errflg&IRIGErrDecode)

	u4 := NewIRIGUnit(0)
	u4.baud(0x55) // not a valid pulse-width run
	assert.NotZero(t, u4.errflg&IRIGErrDecode)
}

func TestIRIGUnit_FinishSecond_LockedPushesOffset(t *testing.T) {
	u := NewIRIGUnit(0)
	u.errflg = 0
	u.tc = irigMaxTC
	u.year, u.day, u.hour, u.minute, u.second = 24, 153, 12, 34, 56
	u.fdelay = irigDelayB
	u.refstamp = Timestamp{Sec: 1000}

	u.finishSecond()

	assert.True(t, u.LastLine.Synchronized)
	assert.Zero(t, u.LastLine.Quality)
	assert.EqualValues(t, 2024, u.LastLine.Cal.Year)
	assert.EqualValues(t, 6, u.LastLine.Cal.Month)
	assert.EqualValues(t, 1, u.LastLine.Cal.MonthDay)
	assert.Equal(t, 12, u.LastLine.Hour)
	assert.Equal(t, 34, u.LastLine.Minute)
	assert.Equal(t, 56, u.LastLine.Second)

	_, _, n := u.RequestOffset()
	assert.Equal(t, 1, n)

	// errflg is cleared for the next second.
	assert.Zero(t, u.errflg)
}

func TestIRIGUnit_FinishSecond_ErrorFlagsBlockLockAndOffset(t *testing.T) {
	u := NewIRIGUnit(0)
	u.errflg = IRIGErrDecode
	u.tc = irigMaxTC
	u.year, u.day, u.hour, u.minute, u.second = 24, 153, 12, 34, 56

	u.finishSecond()

	assert.False(t, u.LastLine.Synchronized)
	assert.NotZero(t, u.LastLine.Quality&FmtErr)

	_, _, n := u.RequestOffset()
	assert.Zero(t, n)
}

func TestIRIGUnit_FinishSecond_QualMapping(t *testing.T) {
	cases := []struct {
		name string
		flag IRIGErrFlags
		want ErrorFlags
	}{
		{"synch", IRIGErrSynch, SynErr},
		{"freq", IRIGErrFreq, SynErr},
		{"mod", IRIGErrMod, SynErr},
		{"decode", IRIGErrDecode, FmtErr},
		{"check", IRIGErrCheck, DecErr},
		{"sig", IRIGErrSig, DecErr},
		{"amp", IRIGErrAmp, TspErr},
		{"overrun", IRIGErrOverrun, TspErr},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			u := NewIRIGUnit(0)
			u.errflg = c.flag
			u.day = 1
			u.finishSecond()
			assert.Equal(t, c.want, u.LastLine.Quality, "flag %s", c.name)
		})
	}
}
