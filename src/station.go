package refclock

/*------------------------------------------------------------------
 *
 * Purpose:	Plumbing shared by all three station pipelines: the error
 *		quality bitmask, the diagnostic timecode line (spec
 *		section 6), and the logger each Unit reports through.
 *
 *----------------------------------------------------------------*/

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// logTimestampFormat mirrors the teacher's own AUDIO_TIMESTAMP default
// pattern (xmit.go/tq.go's save_audio_config_p.timestamp_format), reused
// here for the human-readable wall-clock stamp attached to every emitted
// diagnostic line.
const logTimestampFormat = "%Y-%m-%d %H:%M:%S"

// FormatLogTimestamp renders t with the teacher's own strftime-based
// audio-timestamp formatter (the same call shape as xmit.go/tq.go's
// strftime.Format(pattern, time.Now())), for the "logged_at" field
// attached to every station's diagnostic line.
func FormatLogTimestamp(t time.Time) string {
	s, err := strftime.Format(logTimestampFormat, t)
	if err != nil {
		return t.UTC().Format("2006-01-02 15:04:05")
	}
	return s
}

// ErrorFlags is the "qual" bitmask emitted on every timecode line and used
// to gate whether a decoded minute is trustworthy. Spec section 6/7.
type ErrorFlags uint8

const (
	SynErr ErrorFlags = 1 << iota // frame-sync lost within a minute
	FmtErr                        // valid framing, out-of-range digit(s)
	DecErr                        // majority/ML vote failed to reach agreement
	TspErr                        // too few timestamps accumulated this minute
)

// Logger is the package-wide default sink for diagnostic/audit output.
// The CLI wrapper (cmd/refclockd) reconfigures it at startup; library code
// never writes to stdout/stderr directly.
var Logger = log.Default()

// ForStation returns a logger namespaced to one station instance, mirroring
// the "<ident> unit N" framing used throughout spec section 6's emitted line.
func ForStation(ident string, unit int) *log.Logger {
	return Logger.With("station", ident, "unit", unit)
}

// TimecodeLine is the decoded content of spec section 6's diagnostic/audit
// line:
//
//	<sync><qual> <year> <yday> <hh>:<mm>:<ss> <leap> <dst> <minset> <gain> <ident> <metric> <ntstamp>
type TimecodeLine struct {
	Synchronized bool
	Quality      ErrorFlags
	Cal          Calendar
	Hour, Minute, Second int
	Leap         int
	DST          int
	MinuteSet    int
	Gain         int
	Ident        string
	Metric       int
	NTPStamp     Timestamp
}

// String renders the line exactly as spec section 6 describes it.
func (t TimecodeLine) String() string {
	sync := byte(' ')
	if !t.Synchronized {
		sync = '?'
	}
	return fmt.Sprintf("%c%X %04d %03d %02d:%02d:%02d %d %d %d %d %s %d %s",
		sync, t.Quality,
		t.Cal.Year, t.Cal.YearDay,
		t.Hour, t.Minute, t.Second,
		t.Leap, t.DST, t.MinuteSet, t.Gain,
		t.Ident, t.Metric, t.NTPStamp.ToHex())
}

// Receiver is the single entry point each station exposes to its external
// audio-capture collaborator, per spec section 5: one call processes one
// buffer, strictly in sample order, with no internal suspension points.
type Receiver interface {
	// Receive consumes PCM samples (16-bit range, mono) of a buffer ending
	// at captureTS (see SampleTimestamp), and performs all filtering, decoding,
	// and state-machine work for them inline.
	Receive(samples []int16, captureTS Timestamp)
}

// OffsetSource is implemented by every station unit: in addition to
// accepting samples, it exposes the trimmed-mean (offset, jitter) pair
// accumulated in its OffsetFilter, for a caller (cmd/refclockd) to
// publish into NTP SHM.
type OffsetSource interface {
	Receiver
	RequestOffset() (offset, jitter float64, n int)
}

// SampleTimestamp returns the timestamp assigned to the i-th sample (0
// based) of a buffer of the given length ending at captureTS, per spec
// section 5's ordering guarantee:
//
//	timestamp(i) = captureTS - (len-i)/sampleRate
func SampleTimestamp(captureTS Timestamp, length, i, sampleRate int) Timestamp {
	secondsBack := float64(length-i) / float64(sampleRate)
	return captureTS.Sub(FromFloat(secondsBack))
}
