// Package uat978 decodes 978 MHz UAT traffic from a raw SDR sample stream.
//
// The pipeline is split into three small programs joined by pipes:
//
//	<sdr-program 2083334 CS16> | demod978 | ec978 | server978
//
// demod978 reads complex int16 samples from standard input, demodulates
// them, finds FIS-B and ADS-B sync words, and writes packet sample frames
// with a fixed-width attribute header.  ec978 slices the frames into bits,
// runs Reed-Solomon error correction with a bit-shift search, and prints
// one hex line per decoded packet.  server978 fans those lines out to TCP
// clients.
//
// Splitting the stages keeps each one single threaded; the OS pipe
// provides the back-pressure.
package uat978

// The UAT air interface runs at 1,041,667 bits/s.  We sample at twice
// that, so every data bit is represented by two demodulated samples and
// each sample spans 0.48 microseconds.
const (
	SamplesPerBit = 2
	SampleRate    = SamplesPerBit * 1041667

	// SampleTimeUsecs is used to derive packet arrival times from the
	// sample index within a read block.
	SampleTimeUsecs = 0.48
)

// Raw input is read in blocks of one tenth of a second.  Each IQ pair is
// two little-endian int16 values, four bytes.
const (
	readsPerSecond    = 10
	sampleBufferBytes = (SampleRate / readsPerSecond) * 4
)

// 36-bit sync words.  The ADS-B word is the bit inversion of the FIS-B
// word.  A candidate window matches when it differs in at most
// MaxSyncErrors bit positions.
const (
	SyncFisb      uint64 = 0x153225b1d
	SyncAdsb      uint64 = 0xeacdda4e2
	syncMask      uint64 = 0xfffffffff
	SyncBits             = 36
	MaxSyncErrors        = 4
)

// The running signal level is the average of |sample| over the last 72
// samples, one sync word's worth of air time.  Sync detection is skipped
// below the threshold; the default was chosen empirically and is exposed
// to users in millionths (0.9 means 900000).
const (
	RunningWindow    = 72
	DefaultThreshold = 900000
)

// Packet frame geometry.  Every frame carries one sample before the
// payload and two after it, so the corrector can rebuild neighbor bit
// streams and retry the whole window one sample later.
const (
	FisbPayloadBits = 4416
	AdsbPayloadBits = 384

	FisbFrameInts = FisbPayloadBits*SamplesPerBit + 3
	AdsbFrameInts = AdsbPayloadBits*SamplesPerBit + 3
)

// FIS-B messages are six byte-interleaved Reed-Solomon blocks.
const (
	FisbBlocks     = 6
	FisbBlockBytes = 92 // 72 data + 20 parity
	FisbDataBytes  = 72
	FisbBytes      = FisbBlocks * FisbBlockBytes // 552
)

// ADS-B messages are a single block, long or short.  The first five bits
// of the decoded payload distinguish the two.
const (
	AdsbLongBytes      = 48 // 34 data + 14 parity
	AdsbLongDataBytes  = 34
	AdsbShortBytes     = 30 // 18 data + 12 parity
	AdsbShortDataBytes = 18
)

// Per-block error sentinels used in output lines.  They are distinct on
// purpose: 98 means every correction strategy ran and failed, 99 means
// the block was never attempted (e.g. zero filled past the end of a
// short message).
const (
	ErrUncorrectable = 98
	ErrNotAttempted  = 99
)

// Packet type bytes as they appear in the attribute header.
const (
	TypeFisb byte = 'F'
	TypeAdsb byte = 'A'
)
