package uat978

// Shared builders for synthetic packets.  Frames are built the way the
// demodulator would emit them: one leading sample, two firm samples per
// bit, two trailing samples.

import (
	"bytes"
	"encoding/binary"
)

const testAmp = 1000000

// testAttrs is a fixed header used across the corrector tests.
func testAttrs(typ byte) Attributes {
	return Attributes{
		Secs:       1638556942,
		Usecs:      209000,
		Type:       typ,
		Level:      5182170,
		SyncErrors: 0,
	}
}

func bitsOfBytes(data []byte) []int {
	var out = make([]int, 0, len(data)*8)
	for _, by := range data {
		for i := 7; i >= 0; i-- {
			out = append(out, int(by>>i)&1)
		}
	}
	return out
}

// fisbEncodeBlocks appends parity to each 72-byte data block.
func fisbEncodeBlocks(datablocks [][]byte) [][]byte {
	var out = make([][]byte, len(datablocks))
	for i, d := range datablocks {
		out[i] = append(append([]byte(nil), d...), rsFisb.encode(d)...)
	}
	return out
}

// fisbInterleave lays six 92-byte blocks out in air order: stream byte
// k comes from block k mod 6 at index k div 6.
func fisbInterleave(blocks [][]byte) []byte {
	var out = make([]byte, FisbBytes)
	for k := range out {
		out[k] = blocks[k%6][k/6]
	}
	return out
}

// frameFromStream turns transmitted bytes into a packet sample frame of
// frameInts samples.  Unused trailing samples slice as zero bits.
func frameFromStream(stream []byte, frameInts int) []int32 {
	var frame = make([]int32, 0, frameInts)
	frame = append(frame, -testAmp)
	for _, b := range bitsOfBytes(stream) {
		var v = int32(-testAmp)
		if b == 1 {
			v = testAmp
		}
		frame = append(frame, v, v)
	}
	for len(frame) < frameInts {
		frame = append(frame, -testAmp)
	}
	return frame
}

// xorStreamByte flips the masked bits of one air-stream byte in place.
// For a FIS-B frame, byte j of block b sits at stream index b + 6*j.
func xorStreamByte(frame []int32, streamIdx int, mask byte) {
	for j := 0; j < 8; j++ {
		if mask&(0x80>>j) == 0 {
			continue
		}
		var bit = streamIdx*8 + j
		frame[1+2*bit] = -frame[1+2*bit]
		frame[2+2*bit] = -frame[2+2*bit]
	}
}

// testFisbBlocks builds a six-block payload whose block 0 looks like a
// plausible uplink header: station prefix 38f18185534c, reserved bits
// zero, and a frame-length walk that does not end early.
func testFisbBlocks() [][]byte {
	var data0 = make([]byte, FisbDataBytes)
	copy(data0, []byte{0x38, 0xf1, 0x81, 0x85, 0x53, 0x4c})
	data0[8] = 0xff
	data0[9] = 0xff

	var blocks = [][]byte{data0}
	for i := 1; i < FisbBlocks; i++ {
		var d = make([]byte, FisbDataBytes)
		for j := range d {
			d[j] = byte((i*37 + j) % 256)
		}
		blocks = append(blocks, d)
	}
	return blocks
}

func fisbFrameFor(datablocks [][]byte) []int32 {
	return frameFromStream(fisbInterleave(fisbEncodeBlocks(datablocks)), FisbFrameInts)
}

func adsbFrameFor(message []byte) []int32 {
	return frameFromStream(message, AdsbFrameInts)
}

type testFrame struct {
	attrs   Attributes
	samples []int32
}

// frameInput renders header+samples as the corrector reads them.
func frameInput(frames ...testFrame) *bytes.Buffer {
	var buf bytes.Buffer
	for _, f := range frames {
		buf.Write(f.attrs.appendWire(nil))
		for _, s := range f.samples {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(s))
			buf.Write(b[:])
		}
	}
	return &buf
}

func oneFrame(attrs Attributes, samples []int32) *bytes.Buffer {
	return frameInput(testFrame{attrs, samples})
}
