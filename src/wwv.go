package refclock

/*------------------------------------------------------------------
 *
 * Purpose:	WWV/WWVH 8 kHz AM+BCD-subcarrier demodulator and decoder.
 *
 *		Ported from the TAPR DSP93/TI320C25 algorithm: a 150 Hz
 *		elliptic lowpass isolates the 100 Hz data subcarrier, an
 *		800-1400 Hz elliptic bandpass isolates the 1000/1200 Hz
 *		WWV/WWVH sync tones, quadrature matched filters recover
 *		minute sync, second sync and data-bit amplitudes, a
 *		frequency-locked loop disciplines the sample clock to the
 *		station's second tick, and a 61-step per-second state
 *		machine assembles BCD digits into a maximum-likelihood
 *		timecode.
 *
 *		This implementation is bound to a single pre-tuned audio
 *		channel: the reference driver's multi-frequency "probe
 *		channel" rotation (QSY across 2.5/5/10/15/20 MHz under
 *		rig control) is a hardware-retuning concern excluded by
 *		the no-rig-control non-goal, so channel selection collapses
 *		to choosing between the WWV and WWVH candidates already
 *		present on the one fixed frequency.
 *
 *----------------------------------------------------------------*/

import (
	"math"
	"time"

	"github.com/charmbracelet/log"
)

const (
	wwvMinute  = SampleRate8k * 60
	wwvMaxAmp  = 6000.0
	wwvMaxClip = 100
	wwvMaxSNR  = 20.0
	wwvMaxFreq = 1.5 // max frequency tolerance, PPM/1e6 scaled to samples/s

	wwvDataCycles = 170
	wwvDataSize   = wwvDataCycles * wwvMS
	wwvSyncCycles = 800
	wwvSyncSize   = wwvSyncCycles * wwvMS
	wwvTickCycles = 5
	wwvTickSize   = wwvTickCycles * wwvMS

	wwvMS      = 8 // samples per millisecond
	wwvIn100   = (100 * 80) / SampleRate8k
	wwvIn1000  = (1000 * 80) / SampleRate8k
	wwvIn1200  = (1200 * 80) / SampleRate8k
	wwvDGain   = 5.0
	wwvAudioPhi = 5e-6

	wwvMinAvg  = 8
	wwvMaxAvg  = 1024
	wwvFConst  = 3
	wwvTConst  = 16.0

	wwvMinThr = 13.0
	wwvTThr   = 50.0
	wwvAWnd   = 20
	wwvAThr   = 2500.0
	wwvQThr   = 2500.0
	wwvSThr   = 2500.0
	wwvASnr   = 10.0
	wwvQSnr   = 10.0
	wwvSSnr   = 7.5
	wwvSCmp   = 10
	wwvDThr   = 1000.0
	wwvDSnr   = 5.0
	wwvAMax   = 6
	wwvBThr   = 1000.0
	wwvBSnr   = 1.5
	wwvBCmp   = 3
	wwvMaxErr = 40
	wwvMaxGain = 16383

	// wwvSystemDelay is the fixed receiver/filter/codec delay applied to
	// every offset sample: baseband filter phase delay plus receiver
	// delay at 1000 Hz, net of a codec calibration fudge.
	wwvSystemDelay = (0.91 + 4.7 - 0.45) / 1000.0

	wwvAcqsn = 6
	wwvData  = 15
	wwvSynch = 40
	wwvPanic = 2 * 1440

	// Decoding matrix offsets.
	wwvMN = 0
	wwvHR = 2
	wwvDA = 4
	wwvYR = 7
)

// WWVStatus is the reference driver's status bitmask (spec section 4.4).
type WWVStatus uint32

const (
	wwvMSync  WWVStatus = 1 << iota // minute epoch sync
	wwvSSync                       // second epoch sync
	wwvDSync                       // minute-units digit sync
	wwvInSync                      // clock fully synchronized
	wwvFGate                       // frequency gate (FLL has a valid update)
	wwvDGate                       // data pulse amplitude/SNR gate
	wwvBGate                       // digit pulse width/SNR gate
	wwvMetric                      // one or more stations heard
	wwvSelV                        // WWV station selected
	wwvSelH                        // WWVH station selected
	wwvLepSec                      // leap second pending this minute
)

// WWVAlarm is the per-minute alarm/quality bitmask.
type WWVAlarm uint8

const (
	wwvCmpErr WWVAlarm = 1 << iota // digit/misc-bit compare error
	wwvLowErr                      // signal below amplitude/SNR threshold
	wwvNinErr                      // fewer than nine digits confirmed
	wwvSynErr                      // not tracking second sync
)

// sinTable holds sin(4.5*i degrees) for i in [0,80], the 80-point phase
// wheel driving every quadrature demodulator in this file.
var sinTable = [81]float64{
	0.000000e+00, 7.845910e-02, 1.564345e-01, 2.334454e-01,
	3.090170e-01, 3.826834e-01, 4.539905e-01, 5.224986e-01,
	5.877853e-01, 6.494480e-01, 7.071068e-01, 7.604060e-01,
	8.090170e-01, 8.526402e-01, 8.910065e-01, 9.238795e-01,
	9.510565e-01, 9.723699e-01, 9.876883e-01, 9.969173e-01,
	1.000000e+00, 9.969173e-01, 9.876883e-01, 9.723699e-01,
	9.510565e-01, 9.238795e-01, 8.910065e-01, 8.526402e-01,
	8.090170e-01, 7.604060e-01, 7.071068e-01, 6.494480e-01,
	5.877853e-01, 5.224986e-01, 4.539905e-01, 3.826834e-01,
	3.090170e-01, 2.334454e-01, 1.564345e-01, 7.845910e-02,
	-0.000000e+00, -7.845910e-02, -1.564345e-01, -2.334454e-01,
	-3.090170e-01, -3.826834e-01, -4.539905e-01, -5.224986e-01,
	-5.877853e-01, -6.494480e-01, -7.071068e-01, -7.604060e-01,
	-8.090170e-01, -8.526402e-01, -8.910065e-01, -9.238795e-01,
	-9.510565e-01, -9.723699e-01, -9.876883e-01, -9.969173e-01,
	-1.000000e+00, -9.969173e-01, -9.876883e-01, -9.723699e-01,
	-9.510565e-01, -9.238795e-01, -8.910065e-01, -8.526402e-01,
	-8.090170e-01, -7.604060e-01, -7.071068e-01, -6.494480e-01,
	-5.877853e-01, -5.224986e-01, -4.539905e-01, -3.826834e-01,
	-3.090170e-01, -2.334454e-01, -1.564345e-01, -7.845910e-02,
	0.000000e+00,
}

// progStep is one entry of the per-second state machine's dispatch table.
type progStep struct {
	sw  int
	arg int
}

// Case switch numbers for progTable.
const (
	swIdle = iota
	swCoef
	swCoef1
	swCoef2
	swDecim9
	swDecim6
	swDecim3
	swDecim2
	swMscBit
	swMsc20
	swMsc21
	swMin1
	swMin2
	swSync2
	swSync3
)

// progTable drives one action per second of the minute, indexed by the
// receiver second number (0-60, second 60 only occurring on a leap
// second).
var progTable = [61]progStep{
	{swSync2, 0}, {swSync3, 0}, {swMscBit, 0x20}, {swMscBit, 0x40},
	{swCoef, 0}, {swCoef, 1}, {swCoef, 2}, {swCoef, 3},
	{swDecim9, wwvYR}, {swIdle, 0},
	{swCoef1, 0}, {swCoef1, 1}, {swCoef1, 2}, {swCoef1, 3},
	{swDecim9, wwvMN},
	{swCoef, 0}, {swCoef, 1}, {swCoef, 2}, {swCoef2, 3},
	{swDecim6, wwvMN + 1},
	{swCoef, 0}, {swCoef, 1}, {swCoef, 2}, {swCoef, 3},
	{swDecim9, wwvHR},
	{swCoef, 0}, {swCoef, 1}, {swCoef2, 2}, {swCoef2, 3},
	{swDecim2, wwvHR + 1},
	{swCoef, 0}, {swCoef, 1}, {swCoef, 2}, {swCoef, 3},
	{swDecim9, wwvDA},
	{swCoef, 0}, {swCoef, 1}, {swCoef, 2}, {swCoef, 3},
	{swDecim9, wwvDA + 1},
	{swCoef, 0}, {swCoef, 1}, {swCoef2, 2}, {swCoef2, 3},
	{swDecim3, wwvDA + 2},
	{swIdle, 0}, {swIdle, 0}, {swIdle, 0}, {swIdle, 0}, {swIdle, 0},
	{swMscBit, 0x08},
	{swCoef, 0}, {swCoef, 1}, {swCoef, 2}, {swCoef, 3},
	{swMsc20, 0x10},
	{swMscBit, 0x01}, {swMscBit, 0x02}, {swMsc21, 0x04},
	{swMin1, 0}, {swMin2, 0},
}

// BCD coefficient vectors for maximum-likelihood digit decode, one row
// per legal digit value, terminated by an all-zero backstop row.
var (
	bcd9Table = [][4]float64{
		{-.25, -.25, -.25, -.25}, {.25, -.25, -.25, -.25},
		{-.25, .25, -.25, -.25}, {.25, .25, -.25, -.25},
		{-.25, -.25, .25, -.25}, {.25, -.25, .25, -.25},
		{-.25, .25, .25, -.25}, {.25, .25, .25, -.25},
		{-.25, -.25, -.25, .25}, {.25, -.25, -.25, .25},
		{0, 0, 0, 0},
	}
	bcd6Table = [][4]float64{
		{-1. / 3, -1. / 3, -1. / 3, 0}, {1. / 3, -1. / 3, -1. / 3, 0},
		{-1. / 3, 1. / 3, -1. / 3, 0}, {1. / 3, 1. / 3, -1. / 3, 0},
		{-1. / 3, -1. / 3, 1. / 3, 0}, {1. / 3, -1. / 3, 1. / 3, 0},
		{-1. / 3, 1. / 3, 1. / 3, 0},
		{0, 0, 0, 0},
	}
	bcd3Table = [][4]float64{
		{-.5, -.5, 0, 0}, {.5, -.5, 0, 0}, {-.5, .5, 0, 0}, {.5, .5, 0, 0},
		{0, 0, 0, 0},
	}
	bcd2Table = [][4]float64{
		{-.5, -.5, 0, 0}, {.5, -.5, 0, 0}, {-.5, .5, 0, 0},
		{0, 0, 0, 0},
	}
)

// decVec is one row of the nine-row decoding matrix.
type decVec struct {
	radix  int
	digit  int
	count  int
	digProb float64
	digSNR  float64
	like    [10]float64
}

// syncStation tracks minute/second sync acquisition for one candidate
// transmitter (WWV at 1000 Hz or WWVH at 1200 Hz).
type syncStation struct {
	maxEng, noiEng     float64
	pos, lastPos       int64
	mEpoch             int64
	amp                float64
	synEng, synMax     float64
	synSNR             float64
	metric             float64
	reach              int
	count              int
	selectBit          WWVStatus
	refID              string
}

// WWVUnit decodes one WWV/WWVH audio channel.
type WWVUnit struct {
	Ident string
	Gain  int
	log   *log.Logger

	timestamp Timestamp
	phase     float64
	freq      float64
	clipcnt   int

	avgint        int
	avginc        int
	yepoch        int
	repoch        int
	epomax        float64
	eposnr        float64
	irig, qrig    float64
	datapt        int
	datpha        float64
	rphase        int
	mphase        int64

	wwv, wwvh syncStation
	sptr      *syncStation
	pdelay    float64
	fudgetime1, fudgetime2 float64

	decvec [9]decVec
	rsecN  int
	digcnt int

	datsig, datsnr float64

	status WWVStatus
	alarm  WWVAlarm
	misc   int
	errcnt int
	watch  int

	year, day, hour, min, sec int

	minuteCounter, lastSetMinute int
	Offsets                      OffsetFilter
	LastLine                     TimecodeLine
	Dispersion                   float64

	// Filter delay lines (per-instance state; the reference keeps these
	// as function-static C locals, which is equivalent to per-driver
	// instance state since the reference only ever runs one channel).
	lpf [5]float64
	bpf [9]float64

	iptr, jptr, kptr int
	ibuf, qbuf       []float64

	csinptr    int
	cibuf, cqbuf []float64
	ciamp, cqamp float64
	csibuf, csqbuf []float64
	csiamp, csqamp float64

	hsinptr      int
	hibuf, hqbuf []float64
	hiamp, hqamp float64
	hsibuf, hsqbuf []float64
	hsiamp, hsqamp float64

	epobuf             []float64
	epomaxLocal, nxtmaxLocal float64
	epopos             int

	sigmin, sigzer, sigone float64
	engmax                 float64

	bcddld [4]float64
	bitvec [61]float64

	epochMF                            [3]int
	tepoch, xepoch, zepoch             int
	zcount, scount, syncnt, maxrun     int
	mepoch2, mcount                    int
	avgcnt                             int
}

// NewWWVUnit constructs a WWV/WWVH decoder in its post-newgame state.
func NewWWVUnit(unit int) *WWVUnit {
	u := &WWVUnit{
		Ident: "WWV",
		log:   ForStation("WWV", unit),

		ibuf: make([]float64, wwvDataSize),
		qbuf: make([]float64, wwvDataSize),

		cibuf: make([]float64, wwvSyncSize),
		cqbuf: make([]float64, wwvSyncSize),
		csibuf: make([]float64, wwvTickSize),
		csqbuf: make([]float64, wwvTickSize),

		hibuf: make([]float64, wwvSyncSize),
		hqbuf: make([]float64, wwvSyncSize),
		hsibuf: make([]float64, wwvTickSize),
		hsqbuf: make([]float64, wwvTickSize),

		epobuf: make([]float64, SampleRate8k),
	}
	u.decvec[wwvMN].radix = 10
	u.decvec[wwvMN+1].radix = 6
	u.decvec[wwvHR].radix = 10
	u.decvec[wwvHR+1].radix = 3
	u.decvec[wwvDA].radix = 10
	u.decvec[wwvDA+1].radix = 10
	u.decvec[wwvDA+2].radix = 4
	u.decvec[wwvYR].radix = 10
	u.decvec[wwvYR+1].radix = 10
	u.newGame()
	return u
}

var _ Receiver = (*WWVUnit)(nil)

// SetFudge applies the configured propagation-delay fudges (spec section
// 6): f1 for WWV, f2 for WWVH.
func (u *WWVUnit) SetFudge(f1, f2 float64) {
	u.fudgetime1 = f1
	u.fudgetime2 = f2
}

// RequestOffset drains the filtered (offset, jitter) pair, per OffsetSource.
func (u *WWVUnit) RequestOffset() (offset, jitter float64, n int) {
	return u.Offsets.Request()
}

// Receive processes one buffer of 8 kHz 16-bit mono PCM, per spec
// section 5: strictly in sample order, one call, no suspension points.
func (u *WWVUnit) Receive(samples []int16, captureTS Timestamp) {
	u.timestamp = captureTS
	for _, raw := range samples {
		sample := float64(raw)
		if sample > wwvMaxAmp {
			sample = wwvMaxAmp
			u.clipcnt++
		} else if sample < -wwvMaxAmp {
			sample = -wwvMaxAmp
			u.clipcnt++
		}

		u.phase += u.freq / SampleRate8k
		switch {
		case u.phase >= 0.5:
			u.phase -= 1 // drop this sample to slip the logical clock back
		case u.phase < -0.5:
			u.phase += 1
			u.rf(sample)
			u.rf(sample) // duplicate this sample to slip the logical clock forward
		default:
			u.rf(sample)
		}
	}
}

// wwvSNR computes the signal-to-noise ratio in dB, capped at wwvMaxSNR,
// with the reference's zero/negative special cases.
func wwvSNR(signal, noise float64) float64 {
	switch {
	case signal <= 0:
		return 0
	case noise <= 0:
		return wwvMaxSNR
	}
	rval := 20.0 * math.Log10(signal/noise)
	if rval > wwvMaxSNR {
		rval = wwvMaxSNR
	}
	return rval
}

// rf grooms and filters one decompanded audio sample, demodulating it
// to the 100 Hz baseband data signal (in quadrature) and the 1000/1200
// Hz WWV/WWVH sync amplitudes, and drives the master minute/second
// timing ramps.
func (u *WWVUnit) rf(isig float64) {
	// 150 Hz data-subcarrier lowpass: 4th-order IIR elliptic, 0.2 dB
	// passband ripple, -50 dB stopband ripple.
	copy(u.lpf[1:], u.lpf[:4])
	data := u.lpf[4] * 0.8360961
	data += u.lpf[3] * -3.481740
	data += u.lpf[2] * 5.452988
	data += u.lpf[1] * -3.807229
	u.lpf[0] = isig*wwvDGain - data
	data = (u.lpf[0]+u.lpf[4])*3.281435e-03 - (u.lpf[1]+u.lpf[3])*1.149947e-02 + u.lpf[2]*1.654858e-02

	i := u.datapt
	u.datapt = (u.datapt + wwvIn100) % 80
	dtemp := sinTable[i] * data / (wwvMS / 2.0 * wwvDataCycles)
	u.irig -= u.ibuf[u.iptr]
	u.ibuf[u.iptr] = dtemp
	u.irig += dtemp

	i = (i + 20) % 80
	dtemp = sinTable[i] * data / (wwvMS / 2.0 * wwvDataCycles)
	u.qrig -= u.qbuf[u.iptr]
	u.qbuf[u.iptr] = dtemp
	u.qrig += dtemp
	u.iptr = (u.iptr + 1) % wwvDataSize

	// 800-1400 Hz sync bandpass: 4th-order IIR elliptic.
	copy(u.bpf[1:], u.bpf[:8])
	syncx := u.bpf[8] * 0.4897278
	syncx += u.bpf[7] * -2.765914
	syncx += u.bpf[6] * 8.110921
	syncx += u.bpf[5] * -15.17732
	syncx += u.bpf[4] * 19.75197
	syncx += u.bpf[3] * -18.14365
	syncx += u.bpf[2] * 11.59783
	syncx += u.bpf[1] * -4.735040
	u.bpf[0] = isig - syncx
	syncx = (u.bpf[0]+u.bpf[8])*8.203628e-03 +
		(u.bpf[1]+u.bpf[7])*-2.375732e-02 +
		(u.bpf[2]+u.bpf[6])*3.353214e-02 +
		(u.bpf[3]+u.bpf[5])*-4.080258e-02 +
		u.bpf[4]*4.605479e-02

	u.mphase = (u.mphase + 1) % wwvMinute
	epoch := int(u.mphase % SampleRate8k)

	// WWV (1000 Hz).
	i = u.csinptr
	u.csinptr = (u.csinptr + wwvIn1000) % 80
	dtemp = sinTable[i] * syncx / (wwvMS / 2.0)
	u.ciamp -= u.cibuf[u.jptr]
	u.cibuf[u.jptr] = dtemp
	u.ciamp += dtemp
	u.csiamp -= u.csibuf[u.kptr]
	u.csibuf[u.kptr] = dtemp
	u.csiamp += dtemp

	i = (i + 20) % 80
	dtemp = sinTable[i] * syncx / (wwvMS / 2.0)
	u.cqamp -= u.cqbuf[u.jptr]
	u.cqbuf[u.jptr] = dtemp
	u.cqamp += dtemp
	u.csqamp -= u.csqbuf[u.kptr]
	u.csqbuf[u.kptr] = dtemp
	u.csqamp += dtemp

	u.wwv.amp = math.Sqrt(u.ciamp*u.ciamp+u.cqamp*u.cqamp) / wwvSyncCycles
	if u.status&wwvMSync == 0 {
		u.qrz(&u.wwv, int(u.fudgetime1*SampleRate8k))
	}

	// WWVH (1200 Hz).
	i = u.hsinptr
	u.hsinptr = (u.hsinptr + wwvIn1200) % 80
	dtemp = sinTable[i] * syncx / (wwvMS / 2.0)
	u.hiamp -= u.hibuf[u.jptr]
	u.hibuf[u.jptr] = dtemp
	u.hiamp += dtemp
	u.hsiamp -= u.hsibuf[u.kptr]
	u.hsibuf[u.kptr] = dtemp
	u.hsiamp += dtemp

	i = (i + 20) % 80
	dtemp = sinTable[i] * syncx / (wwvMS / 2.0)
	u.hqamp -= u.hqbuf[u.jptr]
	u.hqbuf[u.jptr] = dtemp
	u.hqamp += dtemp
	u.hsqamp -= u.hsqbuf[u.kptr]
	u.hsqbuf[u.kptr] = dtemp
	u.hsqamp += dtemp

	u.wwvh.amp = math.Sqrt(u.hiamp*u.hiamp+u.hqamp*u.hqamp) / wwvSyncCycles
	if u.status&wwvMSync == 0 {
		u.qrz(&u.wwvh, int(u.fudgetime2*SampleRate8k))
	}
	u.jptr = (u.jptr + 1) % wwvSyncSize
	u.kptr = (u.kptr + 1) % wwvTickSize

	if u.mphase == 0 {
		u.watch++
		if u.status&wwvMSync == 0 {
			if !u.newChannel() {
				u.watch = 0
			}
		}
	}

	if u.status&wwvMSync != 0 {
		u.epochScan()
	} else if u.sptr != nil {
		sp := u.sptr
		if sp.metric >= wwvTThr && epoch == int(sp.mEpoch%SampleRate8k) {
			u.rsecN = (60 - int(sp.mEpoch/SampleRate8k)) % 60
			u.rphase = 0
			u.status |= wwvMSync
			u.watch = 0
			if u.status&wwvSSync == 0 {
				u.repoch = epoch
				u.yepoch = epoch
			} else {
				u.repoch = u.yepoch
			}
		}
	}

	var mfsync float64
	switch {
	case u.status&wwvSelV != 0:
		mfsync = math.Sqrt(u.csiamp*u.csiamp+u.csqamp*u.csqamp) / wwvTickCycles
	case u.status&wwvSelH != 0:
		mfsync = math.Sqrt(u.hsiamp*u.hsiamp+u.hsqamp*u.hsqamp) / wwvTickCycles
	}

	u.epobuf[epoch] += (mfsync - u.epobuf[epoch]) / float64(u.avgint)
	dtemp = u.epobuf[epoch]
	if dtemp > u.epomaxLocal {
		u.epomaxLocal = dtemp
		u.epopos = epoch
		j := epoch - 6*wwvMS
		if j < 0 {
			j += SampleRate8k
		}
		u.nxtmaxLocal = math.Abs(u.epobuf[j])
	}
	if epoch == 0 {
		u.epomax = u.epomaxLocal
		u.eposnr = wwvSNR(u.epomaxLocal, u.nxtmaxLocal)
		pos := u.epopos - wwvTickCycles*wwvMS
		if pos < 0 {
			pos += SampleRate8k
		}
		u.endpoc(pos)
		if u.status&wwvSSync == 0 {
			u.alarm |= wwvSynErr
		}
		u.epomaxLocal = 0
		if u.status&wwvMSync == 0 {
			u.gain()
		}
	}
}

// qrz probes one candidate station for its minute sync pulse: it
// searches the whole minute for the sample of peak amplitude and
// accumulates total noise energy, declaring a valid pulse only once per
// minute when the peak clears ATHR/ASNR and the epoch has moved less
// than AWND ms since the last valid pulse.
func (u *WWVUnit) qrz(sp *syncStation, pdelay int) {
	epoch := u.mphase - int64(pdelay) - wwvSyncSize
	if epoch < 0 {
		epoch += wwvMinute
	}
	if sp.amp > sp.maxEng {
		sp.maxEng = sp.amp
		sp.pos = epoch
	}
	sp.noiEng += sp.amp

	if u.mphase != 0 {
		return
	}
	sp.synMax = sp.maxEng
	sp.synSNR = wwvSNR(sp.synMax, (sp.noiEng-sp.synMax)/wwvMinute)
	if sp.count == 0 {
		sp.lastPos = sp.pos
	}
	delta := (sp.pos - sp.lastPos) % wwvMinute
	sp.reach <<= 1
	if sp.reach&(1<<wwvAMax) != 0 {
		sp.count--
	}
	if sp.synMax > wwvAThr && sp.synSNR > wwvASnr {
		if abs64(delta) < wwvAWnd*wwvMS {
			sp.reach |= 1
			sp.count++
			sp.mEpoch = sp.pos
			sp.lastPos = sp.pos
		} else if sp.count == 1 {
			sp.lastPos = sp.pos
		}
	}
	if u.watch > wwvAcqsn {
		sp.metric = 0
	} else {
		sp.metric = u.stationMetric(sp)
	}
	sp.maxEng, sp.noiEng = 0, 0
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// stationMetric scales the reachability-register population count and
// the latched minute-sync amplitude to 0-100.
func (u *WWVUnit) stationMetric(sp *syncStation) float64 {
	dtemp := float64(sp.count) * wwvMaxAmp
	if sp.synMax < wwvMaxAmp {
		dtemp += sp.synMax
	} else {
		dtemp += wwvMaxAmp - 1
	}
	dtemp /= (wwvAMax + 1) * wwvMaxAmp
	return dtemp * 100.0
}

// newChannel picks the stronger of the WWV/WWVH candidates, squelching
// second sync if neither clears wwvMinThr. With a single fixed audio
// channel this stands in for the reference's frequency-rotation scan:
// there is nothing else to retune to, so the return value only reports
// whether a usable station was found this minute.
func (u *WWVUnit) newChannel() bool {
	sp := &u.wwvh
	rank := u.wwvh.metric
	if u.wwv.metric >= rank {
		rank = u.wwv.metric
		sp = &u.wwv
	}

	u.status &^= wwvSelV | wwvSelH
	if rank < wwvMinThr {
		u.status &^= wwvMetric
		return false
	}
	u.sptr = sp
	u.status |= wwvMetric
	switch {
	case sp == &u.wwv:
		u.status |= wwvSelV
		u.pdelay = u.fudgetime1
	default:
		u.status |= wwvSelH
		u.pdelay = u.fudgetime2
	}
	return true
}

// endpoc identifies the second-sync epoch within the second and
// disciplines the sample clock frequency, using a three-stage median
// filter over the last three candidate epochs and a run-length test
// against wwvSCmp.
func (u *WWVUnit) endpoc(epopos int) {
	u.scount++
	if u.epomax < wwvSThr || u.eposnr < wwvSSnr {
		u.status &^= wwvSSync | wwvFGate
		u.avgcnt, u.syncnt, u.maxrun = 0, 0, 0
		return
	}
	if u.status&(wwvSelV|wwvSelH) == 0 {
		return
	}

	u.epochMF[2] = u.epochMF[1]
	u.epochMF[1] = u.epochMF[0]
	u.epochMF[0] = epopos
	switch {
	case u.epochMF[0] > u.epochMF[1]:
		switch {
		case u.epochMF[1] > u.epochMF[2]:
			u.tepoch = u.epochMF[1]
		case u.epochMF[2] > u.epochMF[0]:
			u.tepoch = u.epochMF[0]
		default:
			u.tepoch = u.epochMF[2]
		}
	default:
		switch {
		case u.epochMF[1] < u.epochMF[2]:
			u.tepoch = u.epochMF[1]
		case u.epochMF[2] < u.epochMF[0]:
			u.tepoch = u.epochMF[0]
		default:
			u.tepoch = u.epochMF[2]
		}
	}

	delta := (u.tepoch - u.xepoch) % SampleRate8k
	if delta == 0 {
		u.syncnt++
		if u.syncnt > wwvSCmp && u.status&wwvMSync != 0 &&
			(u.status&wwvFGate != 0 || u.scount-u.zcount <= u.avgint) {
			u.status |= wwvSSync
			u.yepoch = u.tepoch
		}
	} else if u.syncnt >= u.maxrun {
		u.maxrun = u.syncnt
		u.mcount = u.scount
		u.mepoch2 = u.xepoch
		u.syncnt = 0
	}
	u.avgcnt++
	if u.avgcnt < u.avgint {
		u.xepoch = u.tepoch
		return
	}

	if u.syncnt >= u.maxrun {
		u.maxrun = u.syncnt
		u.mcount = u.scount
		u.mepoch2 = u.xepoch
	}
	u.xepoch = u.tepoch
	if u.maxrun == 0 {
		u.mepoch2 = u.tepoch
		u.mcount = u.scount
	}

	dtemp := float64(mod(u.mepoch2-u.zepoch, SampleRate8k))
	if u.status&wwvFGate != 0 {
		if math.Abs(dtemp) < wwvMaxFreq*wwvMinAvg {
			u.freq += (dtemp / 2.0) / (float64(u.mcount-u.zcount) * wwvFConst)
			if u.freq > wwvMaxFreq {
				u.freq = wwvMaxFreq
			} else if u.freq < -wwvMaxFreq {
				u.freq = -wwvMaxFreq
			}
			if math.Abs(dtemp) < wwvMaxFreq*wwvMinAvg/2.0 {
				if u.avginc < 3 {
					u.avginc++
				} else if u.avgint < wwvMaxAvg {
					u.avgint <<= 1
					u.avginc = 0
				}
			}
		} else if u.avginc > -3 {
			u.avginc--
		} else if u.avgint > wwvMinAvg {
			u.avgint >>= 1
			u.avginc = 0
		}
	}

	u.status |= wwvFGate
	u.zepoch = u.mepoch2
	u.zcount = u.mcount
	u.avgcnt, u.syncnt, u.maxrun = 0, 0, 0
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// epochScan extracts data-pulse amplitudes at the 15/200/500/800 ms
// marks within the receiver second, drives the 100 Hz VFO phase
// nudge from the Q channel, and at the end of the second hands the
// demodulated bit to the seconds state machine.
func (u *WWVUnit) epochScan() {
	if u.wwv.amp > u.wwv.synEng {
		u.wwv.synEng = u.wwv.amp
	}
	if u.wwvh.amp > u.wwvh.synEng {
		u.wwvh.synEng = u.wwvh.amp
	}
	if u.rphase == 800*wwvMS {
		u.repoch = u.yepoch
	}

	if u.rphase == 15*wwvMS {
		u.sigmin = u.irig
		u.sigzer = u.irig
		u.sigone = u.irig
	}

	switch u.rphase {
	case 200 * wwvMS:
		u.sigzer = u.irig
		u.engmax = math.Sqrt(u.irig*u.irig + u.qrig*u.qrig)
		u.datpha = u.qrig / float64(u.avgint)
		if u.datpha >= 0 {
			u.datapt++
			if u.datapt >= 80 {
				u.datapt -= 80
			}
		} else {
			u.datapt--
			if u.datapt < 0 {
				u.datapt += 80
			}
		}
	case 500 * wwvMS:
		u.sigone = u.irig
	}

	u.rphase++
	if int(u.mphase%SampleRate8k) != u.repoch {
		return
	}

	u.status &^= wwvDGate | wwvBGate
	engmin := math.Sqrt(u.irig*u.irig + u.qrig*u.qrig)
	u.datsig = u.engmax
	u.datsnr = wwvSNR(u.engmax, engmin)

	if u.engmax < wwvDThr || u.datsnr < wwvDSnr {
		u.status |= wwvDGate
		u.rsec(0)
	} else {
		sigzer := u.sigzer - u.sigone
		sigone := u.sigone - u.sigmin
		u.rsec(sigone - sigzer)
	}
	if u.status&(wwvDGate|wwvBGate) != 0 {
		u.errcnt++
	}
	if u.errcnt > wwvMaxErr {
		u.alarm |= wwvLowErr
	}
	u.gain()
	u.wwv.synEng = 0
	u.wwvh.synEng = 0
	u.rphase = 0
}

// rsec implements the 61-entry per-second state machine: it
// exponentially averages the bit's hit/miss/hit-on-zero probability,
// then dispatches to the action named by progTable for this second of
// the minute.
func (u *WWVUnit) rsec(bit float64) {
	nsec := u.rsecN
	u.rsecN++
	u.bitvec[nsec] += (bit - u.bitvec[nsec]) / wwvTConst
	step := progTable[nsec]

	switch step.sw {
	case swIdle:

	case swSync2:
		u.wwv.synMax = u.wwv.synEng
		u.wwvh.synMax = u.wwvh.synEng

	case swSync3:
		u.reachUpdate(&u.wwv)
		u.reachUpdate(&u.wwvh)
		u.errcnt, u.digcnt, u.alarm = 0, 0, 0

		switch {
		case u.status&wwvInSync != 0:
			if u.watch > wwvPanic {
				u.newGame()
				return
			}
		case u.status&wwvDSync != 0:
			if u.watch > wwvSynch {
				u.newGame()
				return
			}
		case u.watch > wwvData:
			u.newGame()
			return
		}
		u.newChannel()

	case swCoef1:
		u.bcddld[step.arg] = bit

	case swCoef:
		if u.status&wwvDSync != 0 {
			u.bcddld[step.arg] = bit
		} else {
			u.bcddld[step.arg] = 0
		}

	case swCoef2:
		u.bcddld[step.arg] = 0

	case swDecim2:
		u.corr4(&u.decvec[step.arg], u.bcddld, bcd2Table)
	case swDecim3:
		u.corr4(&u.decvec[step.arg], u.bcddld, bcd3Table)
	case swDecim6:
		u.corr4(&u.decvec[step.arg], u.bcddld, bcd6Table)
	case swDecim9:
		u.corr4(&u.decvec[step.arg], u.bcddld, bcd9Table)

	case swMsc20:
		u.corr4(&u.decvec[wwvYR+1], u.bcddld, bcd9Table)
		fallthrough
	case swMscBit:
		u.latchMiscBit(nsec, step.arg)

	case swMsc21:
		u.latchMiscBit(nsec, step.arg)
		u.status &^= wwvSelV | wwvSelH

	case swMin1:
		if u.status&wwvLepSec != 0 {
			break
		}
		fallthrough
	case swMin2:
		u.status &^= wwvLepSec
		u.tsec()
		u.rsecN = 0
		u.clock()
	}
	u.Dispersion += wwvAudioPhi
}

func (u *WWVUnit) reachUpdate(sp *syncStation) {
	sp.synSNR = wwvSNR(sp.synMax, sp.amp)
	sp.reach <<= 1
	if sp.reach&(1<<wwvAMax) != 0 {
		sp.count--
	}
	if sp.synMax >= wwvQThr && sp.synSNR >= wwvQSnr && u.status&(wwvDGate|wwvBGate) == 0 {
		sp.reach |= 1
		sp.count++
	}
	sp.metric = u.stationMetric(sp)
}

func (u *WWVUnit) latchMiscBit(nsec, bitmask int) {
	switch {
	case u.bitvec[nsec] > wwvBThr:
		if u.misc&bitmask == 0 {
			u.alarm |= wwvCmpErr
		}
		u.misc |= bitmask
	case u.bitvec[nsec] < -wwvBThr:
		if u.misc&bitmask != 0 {
			u.alarm |= wwvCmpErr
		}
		u.misc &^= bitmask
	default:
		u.status |= wwvBGate
	}
}

// corr4 correlates the received 4-element bit vector against every
// legal digit's BCD coefficient row. A disagreeing winner costs the
// incumbent digit one unit of agreement count and replaces it once that
// count is zero; wwvBCmp (3) consecutive agreements declare digit sync.
func (u *WWVUnit) corr4(vp *decVec, data [4]float64, tab [][4]float64) {
	mldigit := 0
	topmax, nxtmax := -wwvMaxAmp, -wwvMaxAmp
	for i := 0; tab[i][0] != 0; i++ {
		var acc float64
		for j := 0; j < 4; j++ {
			acc += data[j] * tab[i][j]
		}
		vp.like[i] += (acc - vp.like[i]) / wwvTConst
		acc = vp.like[i]
		if acc > topmax {
			nxtmax = topmax
			topmax = acc
			mldigit = i
		} else if acc > nxtmax {
			nxtmax = acc
		}
	}
	vp.digProb = topmax
	vp.digSNR = wwvSNR(topmax, nxtmax)

	if vp.digProb < wwvBThr || vp.digSNR < wwvBSnr {
		u.status |= wwvBGate
		return
	}
	if vp.digit != mldigit {
		u.alarm |= wwvCmpErr
		if vp.count > 0 {
			vp.count--
		}
		if vp.count == 0 {
			vp.digit = mldigit
		}
	} else {
		if vp.count < wwvBCmp {
			vp.count++
		}
		if vp.count == wwvBCmp {
			u.status |= wwvDSync
			u.digcnt++
		}
	}
}

// carry rotates a digit's likelihood vector one position and
// increments its clock digit modulo its radix, returning the new
// digit (zero on carry-out).
func carry(dp *decVec) int {
	dp.digit++
	if dp.digit == dp.radix {
		dp.digit = 0
	}
	temp := dp.like[dp.radix-1]
	for j := dp.radix - 1; j > 0; j-- {
		dp.like[j] = dp.like[j-1]
	}
	dp.like[0] = temp
	return dp.digit
}

// tsec advances the decoded minute/day/year at the end of the
// transmitter minute, propagating carries only once the corresponding
// digit has synchronized.
func (u *WWVUnit) tsec() {
	temp := carry(&u.decvec[wwvMN])
	if u.status&wwvDSync == 0 {
		return
	}
	if temp == 0 {
		temp = carry(&u.decvec[wwvMN+1])
	}
	if temp == 0 {
		temp = carry(&u.decvec[wwvHR])
	}
	if temp == 0 {
		carry(&u.decvec[wwvHR+1])
	}

	minute := u.decvec[wwvMN].digit + u.decvec[wwvMN+1].digit*10 +
		u.decvec[wwvHR].digit*60 + u.decvec[wwvHR+1].digit*600
	day := u.decvec[wwvDA].digit + u.decvec[wwvDA+1].digit*10 + u.decvec[wwvDA+2].digit*100
	if minute != 1440 {
		return
	}

	for carry(&u.decvec[wwvHR]) != 0 {
	}
	for carry(&u.decvec[wwvHR+1]) != 0 {
	}
	day++
	isleap := 0
	if IsLeapYear(2000 + u.decvec[wwvYR].digit + u.decvec[wwvYR+1].digit*10) {
		isleap = 1
	}
	temp = carry(&u.decvec[wwvDA])
	if temp == 0 {
		temp = carry(&u.decvec[wwvDA+1])
	}
	if temp == 0 {
		carry(&u.decvec[wwvDA+2])
	}
	if day != 365+isleap {
		return
	}

	for carry(&u.decvec[wwvDA]) != 1 {
	}
	for carry(&u.decvec[wwvDA+1]) != 0 {
	}
	for carry(&u.decvec[wwvDA+2]) != 0 {
	}
	temp = carry(&u.decvec[wwvYR])
	if temp == 0 {
		carry(&u.decvec[wwvYR+1])
	}
}

// gain is the codec AGC: bump up if this second had no clips, bump down
// if it had more than wwvMaxClip.
func (u *WWVUnit) gain() {
	switch {
	case u.clipcnt == 0:
		u.Gain += 4
		if u.Gain > wwvMaxGain {
			u.Gain = wwvMaxGain
		}
	case u.clipcnt > wwvMaxClip:
		u.Gain -= 4
		if u.Gain < 0 {
			u.Gain = 0
		}
	}
	u.clipcnt = 0
}

// newGame resets acquisition state and starts over, triggered by any
// of the three watchdog timeouts (station acquisition, unit-digit
// acquisition, full station sync).
func (u *WWVUnit) newGame() {
	u.watch, u.status, u.alarm = 0, 0, 0
	u.avgint = wwvMinAvg
	u.freq = 0
	u.Gain = wwvMaxGain / 2

	u.wwv = syncStation{selectBit: wwvSelV, refID: "WV"}
	u.wwvh = syncStation{selectBit: wwvSelH, refID: "WH"}
	u.sptr = nil
	u.newChannel()
}

// clock finalizes one decoded minute: it checks the alarm bits, and if
// clean latches the decoded hour/minute/day/year, builds the
// diagnostic timecode line, and (when fully synchronized with both
// second and station sync) pushes the implied offset to the filter.
func (u *WWVUnit) clock() {
	if u.status&wwvSSync == 0 {
		u.alarm |= wwvSynErr
	}
	if u.digcnt < 9 {
		u.alarm |= wwvNinErr
	}
	if u.alarm == 0 {
		u.status |= wwvInSync
	}

	u.minuteCounter++
	qual := ErrorFlags(0)
	if u.alarm&wwvSynErr != 0 {
		qual |= SynErr
	}
	if u.alarm&wwvCmpErr != 0 {
		qual |= FmtErr
	}
	if u.alarm&wwvNinErr != 0 {
		qual |= DecErr
	}

	synced := u.status&(wwvInSync|wwvSSync) == wwvInSync|wwvSSync
	if synced {
		u.sec = u.rsecN
		u.min = u.decvec[wwvMN].digit + u.decvec[wwvMN+1].digit*10
		u.hour = u.decvec[wwvHR].digit + u.decvec[wwvHR+1].digit*10
		u.day = u.decvec[wwvDA].digit + u.decvec[wwvDA+1].digit*10 + u.decvec[wwvDA+2].digit*100
		u.year = 2000 + u.decvec[wwvYR].digit + u.decvec[wwvYR+1].digit*10

		ntpSec := ntpSecondsForYearDay(u.year, u.day, u.hour, u.min, u.sec)
		decoded := Timestamp{Sec: ntpSec}.Add(FromFloat(wwvSystemDelay + u.pdelay))
		u.Offsets.PushTimestampDiff(decoded, u.timestamp)
		u.lastSetMinute = u.minuteCounter
		u.watch = 0
		u.Dispersion = 0
	}

	cal := CalendarFromYearday(u.year, maxInt(u.day, 1))
	metric := 0
	if u.sptr != nil {
		metric = int(u.sptr.metric)
	}
	leap := 0
	if u.status&wwvLepSec != 0 {
		leap = 1
	}
	u.LastLine = TimecodeLine{
		Synchronized: u.status&wwvInSync != 0,
		Quality:      qual,
		Cal:          cal,
		Hour:         u.hour,
		Minute:       u.min,
		Second:       u.sec,
		Leap:         leap,
		DST:          int((u.misc >> 4) & 0x3),
		MinuteSet:    u.minuteCounter - u.lastSetMinute,
		Gain:         u.Gain,
		Ident:        u.Ident,
		Metric:       metric,
		NTPStamp:     u.timestamp,
	}
	u.log.Info(u.LastLine.String(), "logged_at", FormatLogTimestamp(time.Now()))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ntpSecondsForYearDay computes the NTP second-of-epoch (mod 2^32)
// corresponding to a Gregorian year, 1-based day-of-year, and
// hour:minute:second-of-day.
func ntpSecondsForYearDay(year, yday, hour, minute, second int) uint32 {
	unixDay := daysFromCivil(int64(year), 1, 1) + int64(yday-1)
	ntpDay := unixDay - ntpEpochDays
	sec := ntpDay*SecondsPerDay + int64(hour*3600+minute*60+second)
	return uint32(sec)
}
