package uat978

// The demodulator and error corrector communicate over a byte stream.
// Each packet is a fixed-width ASCII attribute header followed by the
// demodulated samples as little-endian int32 values.  The header is
// self describing: the type byte implies the exact sample count, so the
// stream needs no other framing.

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// AttributeLen is the exact header width on the wire.  The formatted
// fields occupy 30 bytes; the remainder is space padding.
const AttributeLen = 36

// Attributes describes one captured packet.
//
// Example: 1638556942.209000.F.05182170.1
type Attributes struct {
	Secs       int64  // Seconds past epoch at the start of the sync word.
	Usecs      int64  // Microseconds within Secs.
	Type       byte   // TypeFisb or TypeAdsb.
	Level      uint32 // Running signal level at sync, clamped to 8 digits.
	SyncErrors int    // Bit errors in the sync word, 0-4.
}

// FrameInts returns the number of int32 samples that follow the header.
func (a Attributes) FrameInts() int {
	if a.Type == TypeFisb {
		return FisbFrameInts
	}
	return AdsbFrameInts
}

// String renders the wire form without padding.
func (a Attributes) String() string {
	var level = a.Level
	if level > 99999999 {
		level = 99999999
	}
	return fmt.Sprintf("%010d.%06d.%c.%08d.%d", a.Secs, a.Usecs, a.Type, level, a.SyncErrors)
}

// appendWire renders the padded 36-byte header.
func (a Attributes) appendWire(buf []byte) []byte {
	buf = append(buf, a.String()...)
	for len(buf) < AttributeLen {
		buf = append(buf, ' ')
	}
	return buf
}

// parseAttributes validates and parses a padded header.
func parseAttributes(raw []byte) (Attributes, error) {
	if len(raw) != AttributeLen {
		return Attributes{}, fmt.Errorf("attribute header is %d bytes, want %d", len(raw), AttributeLen)
	}

	var fields = strings.Split(strings.TrimRight(string(raw), " "), ".")
	if len(fields) != 5 {
		return Attributes{}, fmt.Errorf("attribute header %q has %d fields, want 5", raw, len(fields))
	}

	var a Attributes

	var err error
	if a.Secs, err = strconv.ParseInt(fields[0], 10, 64); err != nil {
		return Attributes{}, fmt.Errorf("attribute seconds %q: %w", fields[0], err)
	}
	if a.Usecs, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return Attributes{}, fmt.Errorf("attribute microseconds %q: %w", fields[1], err)
	}

	if len(fields[2]) != 1 || (fields[2][0] != TypeFisb && fields[2][0] != TypeAdsb) {
		return Attributes{}, fmt.Errorf("attribute type %q is neither F nor A", fields[2])
	}
	a.Type = fields[2][0]

	var level int64
	if level, err = strconv.ParseInt(fields[3], 10, 64); err != nil {
		return Attributes{}, fmt.Errorf("attribute level %q: %w", fields[3], err)
	}
	a.Level = uint32(level)

	if a.SyncErrors, err = strconv.Atoi(fields[4]); err != nil {
		return Attributes{}, fmt.Errorf("attribute sync errors %q: %w", fields[4], err)
	}
	if a.SyncErrors < 0 || a.SyncErrors > MaxSyncErrors {
		return Attributes{}, fmt.Errorf("attribute sync errors %d out of range", a.SyncErrors)
	}

	return a, nil
}

// readFrame reads one header and its samples.  io.EOF is returned only
// at a clean frame boundary; a header or payload cut short is reported
// as an unexpected EOF so the caller can treat it as fatal.
func readFrame(r io.Reader) (Attributes, []int32, []byte, error) {
	var hdr [AttributeLen]byte

	var n, err = io.ReadFull(r, hdr[:])
	if err == io.EOF && n == 0 {
		return Attributes{}, nil, nil, io.EOF
	}
	if err != nil {
		return Attributes{}, nil, nil, fmt.Errorf("reading attribute header: %w", err)
	}

	var attrs Attributes
	if attrs, err = parseAttributes(hdr[:]); err != nil {
		return Attributes{}, nil, nil, err
	}

	var raw = make([]byte, attrs.FrameInts()*4)
	if _, err = io.ReadFull(r, raw); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Attributes{}, nil, nil, fmt.Errorf("reading %c packet samples: %w", attrs.Type, err)
	}

	return attrs, samplesFromBytes(raw), raw, nil
}

func samplesFromBytes(raw []byte) []int32 {
	var samples = make([]int32, len(raw)/4)
	for i := range samples {
		samples[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples
}
