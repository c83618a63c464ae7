package uat978

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_attributesWireFormat(t *testing.T) {
	var a = testAttrs(TypeFisb)

	assert.Equal(t, "1638556942.209000.F.05182170.0", a.String())

	var wire = a.appendWire(nil)
	assert.Len(t, wire, AttributeLen)

	var parsed, err = parseAttributes(wire)
	require.NoError(t, err)
	assert.Equal(t, a, parsed)
}

func Test_attributesLevelClamp(t *testing.T) {
	var a = testAttrs(TypeAdsb)
	a.Level = 2000000000

	// Eight digits on the wire, whatever the window said.
	assert.Equal(t, "1638556942.209000.A.99999999.0", a.String())
	assert.Len(t, a.appendWire(nil), AttributeLen)
}

func Test_attributesRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var a = Attributes{
			Secs:       rapid.Int64Range(0, 9999999999).Draw(t, "secs"),
			Usecs:      rapid.Int64Range(0, 999999).Draw(t, "usecs"),
			Type:       byte(rapid.SampledFrom([]byte{TypeFisb, TypeAdsb}).Draw(t, "type")),
			Level:      uint32(rapid.IntRange(0, 99999999).Draw(t, "level")),
			SyncErrors: rapid.IntRange(0, MaxSyncErrors).Draw(t, "syncErrors"),
		}

		var wire = a.appendWire(nil)
		require.Len(t, wire, AttributeLen)

		var parsed, err = parseAttributes(wire)
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	})
}

func Test_parseAttributesRejectsGarbage(t *testing.T) {
	var cases = []string{
		"",
		"1638556942.209000.F.05182170.0",       // unpadded, wrong length
		"1638556942.209000.X.05182170.0      ", // unknown type
		"1638556942.209000.F.05182170.7      ", // sync errors out of range
		"not.an.attribute.header.at.all     ",
	}

	for _, c := range cases {
		var _, err = parseAttributes([]byte(c))
		assert.Error(t, err, "%q", c)
	}
}

func Test_readFrameFisb(t *testing.T) {
	var samples = make([]int32, FisbFrameInts)
	for i := range samples {
		samples[i] = int32(i - 4000)
	}

	var attrs, got, raw, err = readFrame(oneFrame(testAttrs(TypeFisb), samples))
	require.NoError(t, err)
	assert.Equal(t, testAttrs(TypeFisb), attrs)
	assert.Equal(t, samples, got)
	assert.Len(t, raw, FisbFrameInts*4)
}

func Test_readFrameCleanEOF(t *testing.T) {
	var _, _, _, err = readFrame(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}

func Test_readFrameMidHeaderEOF(t *testing.T) {
	var _, _, _, err = readFrame(bytes.NewReader([]byte("1638556942.209")))
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func Test_readFrameMidPayloadEOF(t *testing.T) {
	var buf = oneFrame(testAttrs(TypeAdsb), make([]int32, AdsbFrameInts))
	var cut = bytes.NewReader(buf.Bytes()[:AttributeLen+100])

	var _, _, _, err = readFrame(cut)
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}
