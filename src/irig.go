package refclock

/*------------------------------------------------------------------
 *
 * Purpose:	IRIG-B/E audio timecode demodulator/decoder.
 *
 *		An 8th-order IIR elliptic bandpass (800-1200 Hz) isolates
 *		the 1000 Hz IRIG-B carrier; a 4th-order IIR elliptic
 *		lowpass (130 Hz) isolates the 100 Hz IRIG-E carrier with a
 *		10x decimation down to its slower baud rate. Whichever
 *		carrier carries more energy over a second picks the active
 *		format. A synchronous baud integrator and type-II PLL lock
 *		onto the carrier's zero crossing; a pulse-width
 *		discriminator turns each baud into a 0/1/position-identifier
 *		symbol, and a 100-bit-per-second frame assembler turns
 *		symbols into the BCD timecode.
 *
 *----------------------------------------------------------------*/

import (
	"math"
	"time"

	"github.com/charmbracelet/log"
)

const (
	irigBaud   = 80  // samples per baud interval
	irigCycle  = 8   // samples per carrier cycle
	irigSubfld = 10  // bits per frame
	irigField  = 100 // bits per second

	irigMinTC = 2  // min PLL time constant
	irigMaxTC = 10 // max PLL time constant

	irigMaxAmp  = 3000.0
	irigMinAmp  = 2000.0
	irigDropout = 100.0
	irigModMin  = 0.5
	irigMaxFreq = 250e-6 * SampleRate8k // frequency tolerance, .025%

	// System delays (s): baseband filter phase delay plus a fixed
	// 2.68 ms codec/path fudge calibrated against a PPS reference.
	irigDelayB = (1.03 + 2.68) / 1000.0
	irigDelayE = (3.47 + 2.68) / 1000.0

	irigBit0 = 0
	irigBit1 = 1
	irigBitP = 2
)

// IRIGErrFlags is the driver's own error bitmask, reported in hex as the
// first field of the emitted diagnostic line.
type IRIGErrFlags uint8

const (
	IRIGErrAmp IRIGErrFlags = 1 << iota
	IRIGErrFreq
	IRIGErrMod
	IRIGErrSynch
	IRIGErrDecode
	IRIGErrCheck
	IRIGErrOverrun
	IRIGErrSig
)

// IRIGUnit decodes one IRIG-B/E audio channel. Unlike CHU and WWV, the
// reference driver supports only a single instantiation per machine: one
// audio codec drives the whole decode chain.
type IRIGUnit struct {
	Ident string
	Gain  int
	log   *log.Logger

	timestamp Timestamp
	tick      Timestamp
	refstamp  Timestamp
	chrstamp  Timestamp
	prvstamp  Timestamp

	phase, freq  float64
	fudgetime2   float64 // frequency vernier, PPM
	zxing, yxing float64
	exing        float64
	modndx       float64
	irigB, irigE float64

	errflg  IRIGErrFlags
	signal  float64 // peak-followed envelope, for AGC monitoring

	bpf [9]float64
	lpf [5]float64

	envmin, envmax float64
	slice          float64
	intmin, intmax float64
	maxsignal      float64
	noise          float64
	lastenv        [irigCycle]float64
	lastint        [irigCycle]float64
	lastsig        float64
	fdelay         float64
	decim          int
	envphase       int
	envxing        int
	tc             int
	tcount         int
	badcnt         int

	integ [irigBaud]float64

	pulse    int
	cycles   uint32
	dcycles  uint32
	lastbit  int
	frmcnt   int
	xptr     int
	bits     int
	timecode [2*irigSubfld + 1]byte

	year, day, hour, minute, second int
	syncdig                         int

	seccnt int

	minuteCounter, lastSetMinute int
	Offsets                      OffsetFilter
	LastLine                     TimecodeLine
}

// NewIRIGUnit constructs an IRIG-B/E decoder in its post-start state.
func NewIRIGUnit(unit int) *IRIGUnit {
	u := &IRIGUnit{
		Ident: "IRIG",
		Gain:  127,
		log:   ForStation("IRIG", unit),
		tc:    irigMinTC,
		decim: 1,
	}
	u.tick = FromFloat(1.0 / SampleRate8k)
	return u
}

var _ Receiver = (*IRIGUnit)(nil)

// SetFudge applies the configured frequency vernier (spec section 6),
// in parts per million.
func (u *IRIGUnit) SetFudge(ppm float64) {
	u.fudgetime2 = ppm
}

// RequestOffset drains the filtered (offset, jitter) pair, per OffsetSource.
func (u *IRIGUnit) RequestOffset() (offset, jitter float64, n int) {
	return u.Offsets.Request()
}

// Receive processes one buffer of 8 kHz 16-bit mono PCM, per spec
// section 5: strictly in sample order, one call, no suspension points.
func (u *IRIGUnit) Receive(samples []int16, captureTS Timestamp) {
	u.timestamp = SampleTimestamp(captureTS, len(samples), 0, SampleRate8k)
	for _, raw := range samples {
		sample := float64(raw)

		// Variable frequency oscillator: one unit of freq (samples/s)
		// duplicates or drops one sample per second; fudgetime2 adds a
		// vernier in PPM.
		u.phase += u.freq / SampleRate8k
		u.phase += u.fudgetime2 / 1e6
		switch {
		case u.phase >= 0.5:
			u.phase -= 1
		case u.phase < -0.5:
			u.phase += 1
			u.rf(sample)
			u.rf(sample)
		default:
			u.rf(sample)
		}
		u.timestamp = u.timestamp.Add(u.tick)

		absSample := math.Abs(sample)
		if absSample > u.signal {
			u.signal = absSample
		}
		u.signal += (absSample - u.signal) / 1000

		u.seccnt = (u.seccnt + 1) % SampleRate8k
		if u.seccnt == 0 {
			if u.irigB > u.irigE {
				u.decim = 1
				u.fdelay = irigDelayB
			} else {
				u.decim = 10
				u.fdelay = irigDelayE
			}
			u.irigB, u.irigE = 0, 0
		}
	}
}

// rf filters the RF signal with a bandpass for IRIG-B and a lowpass for
// IRIG-E (decimated by ten), accumulating each format's squared energy
// for the once-a-second format vote in Receive.
func (u *IRIGUnit) rf(sample float64) {
	// 8th-order elliptic bandpass, 800-1200 Hz, 0.3 dB passband ripple,
	// -50 dB stopband ripple, phase delay 1.03 ms.
	copy(u.bpf[1:], u.bpf[:8])
	irigB := u.bpf[8] * 0.6505491
	irigB += u.bpf[7] * -3.87518
	irigB += u.bpf[6] * 11.5118
	irigB += u.bpf[5] * -21.41264
	irigB += u.bpf[4] * 27.12837
	irigB += u.bpf[3] * -23.84486
	irigB += u.bpf[2] * 14.27663
	irigB += u.bpf[1] * -5.352734
	u.bpf[0] = sample - irigB
	irigB = u.bpf[0]*4.952157e-03 +
		u.bpf[1]*-2.055878e-02 +
		u.bpf[2]*4.401413e-02 +
		u.bpf[3]*-6.558851e-02 +
		u.bpf[4]*7.462108e-02 +
		u.bpf[5]*-6.558851e-02 +
		u.bpf[6]*4.401413e-02 +
		u.bpf[7]*-2.055878e-02 +
		u.bpf[8]*4.952157e-03
	u.irigB += irigB * irigB

	// 4th-order elliptic lowpass, 130 Hz, 0.3 dB passband ripple,
	// -50 dB stopband ripple, phase delay 3.47 ms.
	copy(u.lpf[1:], u.lpf[:4])
	irigE := u.lpf[4] * 0.8694604
	irigE += u.lpf[3] * -3.589893
	irigE += u.lpf[2] * 5.570154
	irigE += u.lpf[1] * -3.849667
	u.lpf[0] = sample - irigE
	irigE = u.lpf[0]*3.215696e-03 +
		u.lpf[1]*-1.174951e-02 +
		u.lpf[2]*1.712074e-02 +
		u.lpf[3]*-1.174951e-02 +
		u.lpf[4]*3.215696e-03
	u.irigE += irigE * irigE

	// Decimate by the active format's factor (1 for IRIG-B, 10 for
	// IRIG-E): badcnt cycles mod decim, so decim==1 calls base on every
	// sample.
	u.badcnt = (u.badcnt + 1) % u.decim
	if u.badcnt == 0 {
		if u.fdelay == irigDelayE {
			u.base(irigE)
		} else {
			u.base(irigB)
		}
	}
}

// base processes the baseband signal: it demodulates the AM carrier with
// a synchronous detector, disciplines the baud-rate PLL against the
// carrier's negative-going zero crossing, and demodulates the
// pulse-width-coded data bit once per baud.
func (u *IRIGUnit) base(sample float64) {
	u.envphase = (u.envphase + 1) % irigBaud
	u.integ[u.envphase] += (sample - u.integ[u.envphase]) / float64(5*u.tc)
	lope := u.integ[u.envphase]
	carphase := u.envphase % irigCycle
	u.lastenv[carphase] = sample
	u.lastint[carphase] = lope

	// Phase detector: negative-going zero crossing relative to sample 4
	// of the 8-sample cycle. 360 degrees of phase change is one unit.
	if u.lastsig > 0 && lope <= 0 {
		u.zxing += float64(carphase-4) / irigCycle
	}
	u.lastsig = lope

	if u.envphase == 0 {
		u.maxsignal, u.noise = u.intmax, u.intmin
		u.intmin, u.intmax = 1e6, -1e6
		if u.maxsignal < irigDropout {
			u.errflg |= IRIGErrAmp
		}
		if u.maxsignal > 0 {
			u.modndx = (u.maxsignal - u.noise) / u.maxsignal
		} else {
			u.modndx = 0
		}
		if u.modndx < irigModMin {
			u.errflg |= IRIGErrMod
		}
		if u.errflg&(IRIGErrAmp|IRIGErrFreq|IRIGErrMod|IRIGErrSynch) != 0 {
			u.tc = irigMinTC
			u.tcount = 0
		}

		dtemp := u.zxing * float64(u.decim) / irigBaud
		u.yxing = dtemp
		u.zxing = 0
		u.phase += dtemp / float64(u.tc)
		u.freq += dtemp / (4.0 * float64(u.tc) * float64(u.tc))
		if u.freq > irigMaxFreq {
			u.freq = irigMaxFreq
			u.errflg |= IRIGErrFreq
		} else if u.freq < -irigMaxFreq {
			u.freq = -irigMaxFreq
			u.errflg |= IRIGErrFreq
		}
	}

	// Synchronous demodulator. The PLL aligns the negative-going zero
	// crossing at sample 4, so peak amplitude is at sample 2 and minimum
	// at sample 6. Pulse start comes from the integrated samples, pulse
	// end from the raw samples; raw bits shift left into the cycle code.
	if carphase != 7 {
		return
	}

	lope = (u.lastint[2] - u.lastint[6]) / 2.0
	if lope > u.intmax {
		u.intmax = lope
	}
	if lope < u.intmin {
		u.intmin = lope
	}

	// Pulse code demodulator: a ten-bit sequence must begin with two
	// ones and end with two zeros; frame synch is asserted on match.
	u.pulse = (u.pulse + 1) % 10
	u.cycles <<= 1
	if lope >= (u.maxsignal+u.noise)/2.0 {
		u.cycles |= 1
	}
	if u.cycles&0x303c0f03 == 0x300c0300 {
		if u.pulse != 0 {
			u.errflg |= IRIGErrSynch
		}
		u.pulse = 0
	}

	// Assemble the baud, tracking max over the first two bits and min
	// over the last two to derive the slice level for the next baud.
	env := (u.lastenv[2] - u.lastenv[6]) / 2.0
	u.dcycles <<= 1
	if env >= u.slice {
		u.dcycles |= 1
	}
	switch u.pulse {
	case 0:
		u.baud(int(u.dcycles))
		if env < u.envmin {
			u.envmin = env
		}
		u.slice = (u.envmax + u.envmin) / 2
		u.envmin, u.envmax = 1e6, -1e6
	case 1:
		u.envmax = env
	case 2:
		if env > u.envmax {
			u.envmax = env
		}
	case 9:
		u.envmin = env
	}
}

// baud updates the PLL time constant and decodes the pulse-width coded
// symbol of one baud into a 0/1/position-identifier data bit.
func (u *IRIGUnit) baud(bits int) {
	// The time constant starts small to capture a 250 PPM tolerance and
	// grows as the loop settles; small wiggles are ignored unless they
	// persist.
	u.exing = -u.yxing
	if math.Abs(float64(u.envxing-u.envphase)) <= 1 {
		u.tcount++
		if u.tcount > 20*u.tc {
			u.tc++
			if u.tc > irigMaxTC {
				u.tc = irigMaxTC
			}
			u.tcount = 0
			u.envxing = u.envphase
		} else {
			u.exing -= float64(u.envxing - u.envphase)
		}
	} else {
		u.tcount = 0
		u.envxing = u.envphase
	}

	// Strike the baud timestamp at the positive zero crossing of the
	// first bit, net of codec and filter delay.
	u.prvstamp = u.chrstamp
	dtemp := float64(u.decim)*(u.exing/SampleRate8k) + u.fdelay
	u.chrstamp = u.timestamp.Sub(FromFloat(dtemp))

	// Ten-bit bauds; the first two bits are framing and unused. The
	// remaining eight represent runs of 0-1 (zero), 2-4 (one) or 5-7
	// (position identifier) bits; an 8-bit run is a soft decode error.
	switch bits & 0xff {
	case 0x00, 0x80:
		u.decodeBit(irigBit0)
	case 0xc0, 0xe0, 0xf0:
		u.decodeBit(irigBit1)
	case 0xf8, 0xfc, 0xfe:
		u.decodeBit(irigBitP)
	default:
		u.decodeBit(irigBit0)
		u.errflg |= IRIGErrDecode
	}
}

var irigHexChar = [16]byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 'a', 'b', 'c', 'd', 'e', 'f'}

// decodeBit assembles bauds into digits, digits into frames, and frames
// into the timecode fields. Two adjacent position-identifier bits mark
// the start of the second; at the end of the second the assembled hex
// timecode is parsed into year/day/hour/minute/second and, gated on a
// locked PLL and a clean error flag, the result is emitted and offered
// to the offset filter.
func (u *IRIGUnit) decodeBit(bit int) {
	u.bits >>= 1
	switch {
	case bit == irigBit1:
		u.bits |= 0x200
	case bit == irigBitP && u.lastbit == irigBitP:
		if u.frmcnt != 1 {
			u.errflg |= IRIGErrSynch
		}
		u.frmcnt = 1
		u.refstamp = u.prvstamp
	}
	u.lastbit = bit

	if u.frmcnt%irigSubfld == 0 {
		temp := u.bits
		if u.frmcnt == 10 {
			temp >>= 1
		}
		if u.xptr >= 2 {
			u.xptr--
			u.timecode[u.xptr] = irigHexChar[temp&0xf]
			u.xptr--
			u.timecode[u.xptr] = irigHexChar[(temp>>5)&0xf]
		}

		if u.frmcnt == 0 {
			u.xptr = 2 * irigSubfld
			u.year = int(u.timecode[6]-'0')*10 + int(u.timecode[7]-'0')
			u.syncdig = int(u.timecode[8] - '0')
			u.day = int(u.timecode[11]-'0')*100 + int(u.timecode[12]-'0')*10 + int(u.timecode[13]-'0')
			u.hour = int(u.timecode[14]-'0')*10 + int(u.timecode[15]-'0')
			u.minute = int(u.timecode[16]-'0')*10 + int(u.timecode[17]-'0')
			decodedSecond := int(u.timecode[18]-'0')*10 + int(u.timecode[19]-'0')

			expected := (u.second + u.decim) % 60
			if u.day == 0 || (u.year != 0 && u.syncdig == 0) {
				u.errflg |= IRIGErrSig
			}
			if decodedSecond != expected {
				u.errflg |= IRIGErrCheck
			}
			u.second = decodedSecond

			u.finishSecond()
		}
	}
	u.frmcnt = (u.frmcnt + 1) % irigField
}

// finishSecond reports the decoded second's diagnostic line and, if the
// decoder is locked (errflg clean, tc at its maximum), pushes the
// implied offset to the filter.
func (u *IRIGUnit) finishSecond() {
	u.minuteCounter++

	qual := ErrorFlags(0)
	if u.errflg&(IRIGErrSynch|IRIGErrFreq|IRIGErrMod) != 0 {
		qual |= SynErr
	}
	if u.errflg&IRIGErrDecode != 0 {
		qual |= FmtErr
	}
	if u.errflg&(IRIGErrCheck|IRIGErrSig) != 0 {
		qual |= DecErr
	}
	if u.errflg&(IRIGErrAmp|IRIGErrOverrun) != 0 {
		qual |= TspErr
	}

	locked := u.errflg == 0 && u.tc == irigMaxTC
	if locked {
		ntpSec := ntpSecondsForYearDay(2000+u.year, maxInt(u.day, 1), u.hour, u.minute, u.second)
		decoded := Timestamp{Sec: ntpSec}.Add(FromFloat(u.fdelay))
		u.Offsets.PushTimestampDiff(decoded, u.refstamp)
		u.lastSetMinute = u.minuteCounter
	}

	cal := CalendarFromYearday(2000+u.year, maxInt(u.day, 1))
	u.LastLine = TimecodeLine{
		Synchronized: locked,
		Quality:      qual,
		Cal:          cal,
		Hour:         u.hour,
		Minute:       u.minute,
		Second:       u.second,
		DST:          u.syncdig,
		MinuteSet:    u.minuteCounter - u.lastSetMinute,
		Gain:         u.Gain,
		Ident:        u.Ident,
		Metric:       int(u.maxsignal),
		NTPStamp:     u.timestamp,
	}
	u.log.Info(u.LastLine.String(), "logged_at", FormatLogTimestamp(time.Now()))
	u.errflg = 0
}
