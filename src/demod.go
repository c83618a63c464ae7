package uat978

/*------------------------------------------------------------------
 *
 * Purpose:   	Demodulate raw SDR samples and capture FIS-B and ADS-B
 *		packets.
 *
 * Input:	Complex int16 (CS16) samples, little-endian, at
 *		2,083,334 samples per second, read from a byte stream.
 *		The stream is assumed to be reasonably filtered.
 *
 * Outputs:	For each sync word found, an attribute header followed
 *		by the packet samples as little-endian int32 values.
 *
 * Description:	The slice value for sample n is
 *
 *			s[n] = I[n-2]*Q[n] - I[n]*Q[n-2]
 *
 *		a two sample differential of the instantaneous phase,
 *		computed in 32-bit integer arithmetic with no trig and
 *		no floating point.  Normalizing by I[n]^2 + Q[n]^2 is
 *		skipped on purpose; the few extra clean decodes it buys
 *		all correct later in the shift search anyway.
 *
 *		With two samples per bit the bit stream can align with
 *		either the even ("A") or odd ("B") sample phase.  Both
 *		are tracked through separate 64-bit shift registers and
 *		both are probed for sync before more input is consumed.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"io"
	"math/bits"
	"time"
)

// DemodConfig selects packet types and the signal gate.
type DemodConfig struct {
	Fisb bool
	Adsb bool

	// Threshold gates the sync search.  The running level must exceed
	// this before any sync comparison happens; below it the comparator
	// would mostly match noise.
	Threshold uint32

	// ReplayTime substitutes a wrapping millisecond counter for packet
	// arrival times.  Real arrival times are useless when replaying a
	// capture file, but the counter still keeps saved packet names
	// unique and sorted.
	ReplayTime bool

	// Now is the wall clock source.  Nil means time.Now.
	Now func() time.Time
}

// Demodulator turns an IQ stream into packet sample frames.  All state
// lives here; construct with NewDemodulator.
type Demodulator struct {
	in  io.Reader
	out io.Writer
	cfg DemodConfig

	raw    []byte // one read block of IQ bytes
	rawLen int    // valid bytes in raw
	rawPtr int    // next unread byte
	eof    bool   // input exhausted after the current block

	// Demodulation needs the current IQ pair (N0) and the pair two
	// samples back (N2); N1 is just the intermediary.
	n1r, n1i int32
	n2r, n2i int32

	// Running |sample| total over the last RunningWindow samples.
	window       [RunningWindow]int32
	windowStart  int
	windowTotal  uint64
	runningLevel uint32

	syncA          uint64 // even-phase shift register
	syncB          uint64 // odd-phase shift register
	lastSyncErrors int

	// Wall clock captured at the last block read, plus the sample index
	// of the most recently consumed IQ pair within that block.
	blockSecs  int64
	blockUsecs int64
	sampleIdx  int

	replayCounter int

	wbuf []byte // header + frame scratch, one Write per packet
}

func NewDemodulator(in io.Reader, out io.Writer, cfg DemodConfig) *Demodulator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Demodulator{
		in:   in,
		out:  out,
		cfg:  cfg,
		raw:  make([]byte, sampleBufferBytes),
		wbuf: make([]byte, 0, AttributeLen+FisbFrameInts*4),
	}
}

// Run consumes input until EOF.  A clean EOF returns nil; any I/O error
// is returned as-is.  There is no recovery: the downstream corrector
// sees EOF on its pipe and follows suit.
func (d *Demodulator) Run() error {
	var err = d.readBlock()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}

	for {
		if err = d.processPair(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// readBlock reads the next tenth of a second of IQ data and stamps the
// wall clock, which later anchors packet arrival times.  A short final
// block (file input) is kept; a trailing partial IQ pair is dropped.
func (d *Demodulator) readBlock() error {
	if d.eof {
		return io.EOF
	}

	var now = d.cfg.Now()
	d.blockSecs = now.Unix()
	d.blockUsecs = int64(now.Nanosecond() / 1000)

	var n, err = io.ReadFull(d.in, d.raw)
	switch err {
	case nil:
	case io.EOF:
		return io.EOF
	case io.ErrUnexpectedEOF:
		d.eof = true
	default:
		return err
	}

	d.rawLen = n - n%4
	d.rawPtr = 0

	if d.rawLen == 0 {
		return io.EOF
	}
	return nil
}

// demodOne produces the next slice sample and updates the running
// level.  Refills the block buffer transparently.
func (d *Demodulator) demodOne() (int32, error) {
	if d.rawPtr >= d.rawLen {
		if err := d.readBlock(); err != nil {
			return 0, err
		}
	}

	d.sampleIdx = d.rawPtr / 4

	var i0 = int32(int16(binary.LittleEndian.Uint16(d.raw[d.rawPtr:])))
	var q0 = int32(int16(binary.LittleEndian.Uint16(d.raw[d.rawPtr+2:])))
	d.rawPtr += 4

	var sample = d.n2r*q0 - i0*d.n2i

	d.n2r, d.n2i = d.n1r, d.n1i
	d.n1r, d.n1i = i0, q0

	d.updateRunningLevel(sample)

	return sample, nil
}

func (d *Demodulator) updateRunningLevel(sample int32) {
	if sample < 0 {
		sample = -sample
	}

	d.windowTotal = d.windowTotal - uint64(d.window[d.windowStart]) + uint64(sample)
	d.window[d.windowStart] = sample
	d.windowStart++
	if d.windowStart == RunningWindow {
		d.windowStart = 0
	}

	d.runningLevel = uint32(d.windowTotal / RunningWindow)
}

// checkSync reports the Hamming distance between the low 36 bits of reg
// and word, if it is within the error budget.
func checkSync(reg uint64, word uint64) (int, bool) {
	var errs = bits.OnesCount64((reg & syncMask) ^ word)
	if errs > MaxSyncErrors {
		return 0, false
	}
	return errs, true
}

// probe tries the enabled sync words against one register.  On a match
// the packet frame is emitted and both registers are cleared, so the
// search resumes after the packet rather than inside it.
func (d *Demodulator) probe(reg uint64) (bool, error) {
	if d.cfg.Fisb {
		if errs, ok := checkSync(reg, SyncFisb); ok {
			d.lastSyncErrors = errs
			var err = d.writePacket(TypeFisb)
			d.syncA, d.syncB = 0, 0
			return true, err
		}
	}
	if d.cfg.Adsb {
		if errs, ok := checkSync(reg, SyncAdsb); ok {
			d.lastSyncErrors = errs
			var err = d.writePacket(TypeAdsb)
			d.syncA, d.syncB = 0, 0
			return true, err
		}
	}
	return false, nil
}

// processPair advances one sample on each phase.  The A register
// absorbs the first sample of the pair and B the second, so each
// register sees a half-rate bit stream.
func (d *Demodulator) processPair() error {
	var sample, err = d.demodOne()
	if err != nil {
		return err
	}

	d.syncA <<= 1
	if sample > 0 {
		d.syncA |= 1
	}

	if d.runningLevel > d.cfg.Threshold {
		if matched, probeErr := d.probe(d.syncA); matched || probeErr != nil {
			return probeErr
		}
	}

	if sample, err = d.demodOne(); err != nil {
		return err
	}

	d.syncB <<= 1
	if sample > 0 {
		d.syncB |= 1
	}

	if d.runningLevel > d.cfg.Threshold {
		if matched, probeErr := d.probe(d.syncB); matched || probeErr != nil {
			return probeErr
		}
	}

	return nil
}

// arrival computes the packet arrival time, referred back to the start
// of the sync word (72 samples before the match point).
func (d *Demodulator) arrival() (secs int64, usecs int64) {
	if d.cfg.ReplayTime {
		usecs = int64(d.replayCounter) * 1000
		d.replayCounter++
		if d.replayCounter == 1000 {
			d.replayCounter = 0
		}
		return d.blockSecs, usecs
	}

	secs = d.blockSecs
	usecs = d.blockUsecs + int64((float64(d.sampleIdx)-RunningWindow)*SampleTimeUsecs)

	// Roll microseconds into the seconds field as needed.
	if usecs >= 1000000 {
		secs++
		usecs -= 1000000
	} else if usecs < 0 {
		secs--
		usecs += 1000000
	}

	return secs, usecs
}

// writePacket emits the attribute header and the packet sample frame.
// The frame is a side-effect tap: its samples continue through the
// demodulator (and the running level window) like any others, they just
// also land in the output buffer.
//
// If EOF arrives mid-frame the partial frame is discarded and the
// stream ends at the previous packet boundary.
func (d *Demodulator) writePacket(typ byte) error {
	var secs, usecs = d.arrival()

	var attrs = Attributes{
		Secs:       secs,
		Usecs:      usecs,
		Type:       typ,
		Level:      d.runningLevel,
		SyncErrors: d.lastSyncErrors,
	}

	d.wbuf = attrs.appendWire(d.wbuf[:0])

	var n = attrs.FrameInts()
	for i := 0; i < n; i++ {
		var sample, err = d.demodOne()
		if err != nil {
			return err
		}
		d.wbuf = binary.LittleEndian.AppendUint32(d.wbuf, uint32(sample))
	}

	var _, err = d.out.Write(d.wbuf)
	return err
}
