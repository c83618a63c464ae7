package uat978

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The IQ generator walks a phasor whose per-sample phase step follows
// the bit: +0.6 rad for a one, -0.6 for a zero.  The differential
// demodulator then produces samples whose sign follows the bits.  A few
// warm-up bits precede the sync word so the two-sample history is
// primed, and 200 zero IQ pairs of silence lead in.

const testIQAmp = 20000.0
const testIQSilence = 200

func wordBits(w uint64, n int) []int {
	var out = make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = int(w>>(n-1-i)) & 1
	}
	return out
}

func iqStream(syncWord uint64, payloadBits []int, padBits []int) []byte {
	var bits = append([]int{1, 0, 1, 0}, wordBits(syncWord, SyncBits)...)
	bits = append(bits, payloadBits...)
	bits = append(bits, padBits...)

	var buf = make([]byte, 0, (testIQSilence+len(bits)*2)*4)
	for i := 0; i < testIQSilence*4; i++ {
		buf = append(buf, 0)
	}

	var phase = 0.0
	for _, b := range bits {
		for chip := 0; chip < SamplesPerBit; chip++ {
			if b == 1 {
				phase += 0.6
			} else {
				phase -= 0.6
			}
			buf = binary.LittleEndian.AppendUint16(buf, uint16(int16(math.Cos(phase)*testIQAmp)))
			buf = binary.LittleEndian.AppendUint16(buf, uint16(int16(math.Sin(phase)*testIQAmp)))
		}
	}

	return buf
}

func padBits(n int) []int {
	var out = make([]int, n)
	for i := range out {
		out[i] = i & 1
	}
	return out
}

var testWallClock = time.Unix(1638556942, 209000*1000)

func runDemod(t *testing.T, iq []byte, cfg DemodConfig) []testFrame {
	t.Helper()

	if cfg.Now == nil {
		cfg.Now = func() time.Time { return testWallClock }
	}

	var out bytes.Buffer
	require.NoError(t, NewDemodulator(bytes.NewReader(iq), &out, cfg).Run())

	var frames []testFrame
	var r = bytes.NewReader(out.Bytes())
	for {
		var attrs, samples, _, err = readFrame(r)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		frames = append(frames, testFrame{attrs, samples})
	}
	return frames
}

func Test_checkSync(t *testing.T) {
	// The ADS-B word is the bit inversion of the FIS-B word.
	assert.Equal(t, SyncAdsb, ^SyncFisb&syncMask)

	var errs, ok = checkSync(SyncFisb, SyncFisb)
	require.True(t, ok)
	assert.Equal(t, 0, errs)

	// Up to four flipped bits still match, five do not.
	errs, ok = checkSync(SyncFisb^0b10101, SyncFisb)
	require.True(t, ok)
	assert.Equal(t, 3, errs)

	errs, ok = checkSync(SyncFisb^0b1111, SyncFisb)
	require.True(t, ok)
	assert.Equal(t, 4, errs)

	_, ok = checkSync(SyncFisb^0b11111, SyncFisb)
	assert.False(t, ok)

	// Garbage in the register's high bits is outside the 36-bit window
	// and must not count.
	errs, ok = checkSync(SyncFisb|0xdead<<40, SyncFisb)
	require.True(t, ok)
	assert.Equal(t, 0, errs)
}

func Test_demodCleanFisb(t *testing.T) {
	var datablocks = testFisbBlocks()
	var stream = fisbInterleave(fisbEncodeBlocks(datablocks))

	var iq = iqStream(SyncFisb, bitsOfBytes(stream), padBits(16))
	var frames = runDemod(t, iq, DemodConfig{Fisb: true, Adsb: true, Threshold: DefaultThreshold})

	require.Len(t, frames, 1)

	var f = frames[0]
	assert.EqualValues(t, TypeFisb, f.attrs.Type)
	assert.Equal(t, 0, f.attrs.SyncErrors)
	assert.Len(t, f.samples, FisbFrameInts)
	assert.Greater(t, f.attrs.Level, uint32(DefaultThreshold))

	// The emitted frame must slice back to the transmitted payload at
	// the nominal offset.
	var bits = make([]int32, FisbPayloadBits)
	for i := range bits {
		bits[i] = f.samples[1+2*i]
	}
	assert.Equal(t, []byte(stream), packBits(bits))
}

func Test_demodArrivalTime(t *testing.T) {
	var datablocks = testFisbBlocks()
	var stream = fisbInterleave(fisbEncodeBlocks(datablocks))

	var iq = iqStream(SyncFisb, bitsOfBytes(stream), padBits(16))
	var frames = runDemod(t, iq, DemodConfig{Fisb: true, Threshold: DefaultThreshold})

	require.Len(t, frames, 1)

	// Arrival refers to the start of the sync word, which is after the
	// block read time but before "now" plus the block length.
	var a = frames[0].attrs
	assert.Equal(t, testWallClock.Unix(), a.Secs)
	assert.GreaterOrEqual(t, a.Usecs, int64(209000))
	assert.Less(t, a.Usecs, int64(210000))
}

func Test_demodBelowGate(t *testing.T) {
	// Same stream at a whisper: the sync pattern is present but the
	// running level never clears the gate, so nothing may be emitted.
	var datablocks = testFisbBlocks()
	var stream = fisbInterleave(fisbEncodeBlocks(datablocks))

	var bits = append([]int{1, 0, 1, 0}, wordBits(SyncFisb, SyncBits)...)
	bits = append(bits, bitsOfBytes(stream)...)

	var buf = make([]byte, testIQSilence*4)
	var phase = 0.0
	for _, b := range bits {
		for chip := 0; chip < SamplesPerBit; chip++ {
			if b == 1 {
				phase += 0.6
			} else {
				phase -= 0.6
			}
			buf = binary.LittleEndian.AppendUint16(buf, uint16(int16(math.Cos(phase)*50)))
			buf = binary.LittleEndian.AppendUint16(buf, uint16(int16(math.Sin(phase)*50)))
		}
	}

	var frames = runDemod(t, buf, DemodConfig{Fisb: true, Adsb: true, Threshold: DefaultThreshold})
	assert.Empty(t, frames)
}

func Test_demodTypeSelection(t *testing.T) {
	var data = make([]byte, AdsbLongDataBytes)
	data[0] |= 0x08
	var message = append(append([]byte(nil), data...), rsAdsbLong.encode(data)...)

	var iq = iqStream(SyncAdsb, bitsOfBytes(message), padBits(16))

	// ADS-B disabled: its sync must be ignored.
	assert.Empty(t, runDemod(t, iq, DemodConfig{Fisb: true, Threshold: DefaultThreshold}))

	var frames = runDemod(t, iq, DemodConfig{Adsb: true, Threshold: DefaultThreshold})
	require.Len(t, frames, 1)
	assert.EqualValues(t, TypeAdsb, frames[0].attrs.Type)
	assert.Len(t, frames[0].samples, AdsbFrameInts)
}

func Test_demodNoDoubleEmission(t *testing.T) {
	// The sync pattern aligns with one phase and, within the error
	// budget, can graze the other.  Clearing both registers on a match
	// means exactly one packet comes out.
	var data = make([]byte, AdsbShortDataBytes)
	data[0] = 0x07
	var message = append(append([]byte(nil), data...), rsAdsbShort.encode(data)...)

	var iq = iqStream(SyncAdsb, bitsOfBytes(message), padBits(320))
	var frames = runDemod(t, iq, DemodConfig{Fisb: true, Adsb: true, Threshold: DefaultThreshold})

	require.Len(t, frames, 1)
	assert.EqualValues(t, TypeAdsb, frames[0].attrs.Type)
}

func Test_demodReplayTime(t *testing.T) {
	var data = make([]byte, AdsbShortDataBytes)
	data[0] = 0x07
	var message = append(append([]byte(nil), data...), rsAdsbShort.encode(data)...)

	// Two bursts in one stream.
	var one = iqStream(SyncAdsb, bitsOfBytes(message), padBits(320))
	var iq = append(append([]byte(nil), one...), one...)

	var frames = runDemod(t, iq, DemodConfig{Adsb: true, Threshold: DefaultThreshold, ReplayTime: true})
	require.Len(t, frames, 2)

	// The millisecond counter stands in for arrival time and keeps
	// replayed packets unique and ordered.
	assert.EqualValues(t, 0, frames[0].attrs.Usecs)
	assert.EqualValues(t, 1000, frames[1].attrs.Usecs)
}

func Test_demodPipelineEndToEnd(t *testing.T) {
	// IQ in, decoded hex line out, through both stages.
	var datablocks = testFisbBlocks()
	var stream = fisbInterleave(fisbEncodeBlocks(datablocks))

	var iq = iqStream(SyncFisb, bitsOfBytes(stream), padBits(16))

	var mid bytes.Buffer
	require.NoError(t, NewDemodulator(bytes.NewReader(iq), &mid, DemodConfig{
		Fisb:      true,
		Adsb:      true,
		Threshold: DefaultThreshold,
		Now:       func() time.Time { return testWallClock },
	}).Run())

	var out bytes.Buffer
	var c, err = NewCorrector(&mid, &out, ECConfig{})
	require.NoError(t, err)
	require.NoError(t, c.Run())

	var line = out.String()
	assert.True(t, len(line) > 0)
	assert.Contains(t, line, ";rs=0/00:00:00:00:00:00;")
	assert.True(t, bytes.HasPrefix(out.Bytes(), []byte("+38f18185534c")))
	assert.Contains(t, line, ";t=1638556942.209")
}
