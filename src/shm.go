package refclock

/*------------------------------------------------------------------
 *
 * Purpose:	NTP SHM segment publisher: the one piece of cross-process
 *		shared state the core touches (spec section 6).
 *		cmd/refclockd calls Publish once per publish interval
 *		with the latest sample drained from a unit; everything
 *		else about clock discipline happens in the host time daemon,
 *		outside this module.
 *
 *		Segment layout and the System V key derivation
 *		(0x4e545030 + unit) are bit-exact with the reference
 *		ntp_shmtool / getShmTime implementation.
 *
 *----------------------------------------------------------------*/

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// NTPSHMBaseKey is the System V IPC key base; the segment for unit u
// lives at key NTPSHMBaseKey+u.
const NTPSHMBaseKey = 0x4e545030

// NTPSHMMaxUnits bounds the unit number, per spec section 6 (unit in [0,64)).
const NTPSHMMaxUnits = 64

// shmSegmentSize is sizeof(struct shmTime): the fields at the offsets
// below (laid out per the table in spec section 6, time_t taken as 64
// bits) followed by padding up to 96 bytes.
const shmSegmentSize = 96

// Field byte offsets within the segment, per spec section 6.
const (
	offMode        = 0
	offCount       = 4
	offClockSec    = 8
	offClockUsec   = 16
	offReceiveSec  = 24
	offReceiveUsec = 32
	offLeap        = 40
	offPrecision   = 44
	offNsamples    = 48
	offValid       = 52
)

// SHMSegment is an attached System V shared memory segment implementing
// the NTP SHM wire protocol. All field access goes through explicit
// atomic loads/stores at fixed byte offsets rather than Go struct field
// layout, so the wire format never depends on compiler padding choices.
type SHMSegment struct {
	id   int
	addr uintptr
	mem  []byte
}

// AttachSHM creates (if needed) and attaches the segment for the given
// unit number.
func AttachSHM(unit int) (*SHMSegment, error) {
	if unit < 0 || unit >= NTPSHMMaxUnits {
		return nil, fmt.Errorf("refclock: shm unit %d out of range", unit)
	}
	key := NTPSHMBaseKey + unit
	id, err := unix.SysvShmGet(key, shmSegmentSize, unix.IPC_CREAT|0666)
	if err != nil {
		return nil, fmt.Errorf("refclock: shmget unit %d: %w", unit, err)
	}
	addr, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("refclock: shmat unit %d: %w", unit, err)
	}
	mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), shmSegmentSize)
	return &SHMSegment{id: id, addr: addr, mem: mem}, nil
}

// Detach releases the segment mapping from this process. The segment
// itself (and its contents) survive for other attachers, per the System V
// shared-memory model.
func (s *SHMSegment) Detach() error {
	return unix.SysvShmDetach(s.addr)
}

func (s *SHMSegment) i32(off int) *int32 {
	return (*int32)(unsafe.Pointer(&s.mem[off]))
}

func (s *SHMSegment) i64(off int) *int64 {
	return (*int64)(unsafe.Pointer(&s.mem[off]))
}

// SHMSample is one publication: a host-clock reading paired with the
// receive-side capture timestamp it corresponds to, plus the leap and
// precision indicators.
type SHMSample struct {
	ClockSec   int64
	ClockUsec  int32
	ReceiveSec int64
	UsecRecv   int32
	Leap       int32
	Precision  int32
	NSamples   int32
}

// Publish writes one sample using the writer side of the valid/count
// handshake described in spec section 5: clear valid, write barrier,
// update fields, write barrier, set valid, and — only in mode 1 — bump
// count so a concurrent reader can detect a torn read.
//
// mode selects the handshake variant: mode 0 relies solely on valid;
// mode 1 additionally increments count so the reader can cross-check it
// before and after reading.
func (s *SHMSegment) Publish(mode int32, sample SHMSample) {
	atomic.StoreInt32(s.i32(offValid), 0)
	atomic.StoreInt32(s.i32(offMode), mode)

	atomic.StoreInt64(s.i64(offClockSec), sample.ClockSec)
	atomic.StoreInt32(s.i32(offClockUsec), sample.ClockUsec)
	atomic.StoreInt64(s.i64(offReceiveSec), sample.ReceiveSec)
	atomic.StoreInt32(s.i32(offReceiveUsec), sample.UsecRecv)
	atomic.StoreInt32(s.i32(offLeap), sample.Leap)
	atomic.StoreInt32(s.i32(offPrecision), sample.Precision)
	atomic.StoreInt32(s.i32(offNsamples), sample.NSamples)

	if mode == 1 {
		atomic.AddInt32(s.i32(offCount), 1)
	}
	atomic.StoreInt32(s.i32(offValid), 1)
}
