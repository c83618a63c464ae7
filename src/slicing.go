package uat978

// Bit slicing.  A packet frame carries two samples per bit plus one
// leading and two trailing samples.  For any starting offset we can
// therefore build three parallel views of a block: the nominal slice
// points ("cur") and the samples immediately before and after them.
// The neighbors feed the shift search in the schedule.

// blockBits holds the three views for one Reed-Solomon block (FIS-B) or
// a whole message (ADS-B).
type blockBits struct {
	cur    []int32
	before []int32
	after  []int32
}

// extractFisbBlock deinterleaves one of the six blocks from a FIS-B
// frame.  Byte k of the 552-byte payload belongs to block k mod 6 at
// index k div 6, so consecutive bytes of a block are six payload bytes
// (96 samples) apart in the air stream.
//
// offset is the sample index of the first payload bit: 1 for the
// sequence the sync word was matched to, 2 for the sequence one sample
// later.
func extractFisbBlock(samples []int32, offset int, blockNum int) blockBits {
	var bb = blockBits{
		cur:    make([]int32, FisbBlockBytes*8),
		before: make([]int32, FisbBlockBytes*8),
		after:  make([]int32, FisbBlockBytes*8),
	}

	var out = 0
	var base = offset + blockNum*16
	for k := 0; k < FisbBlockBytes; k++ {
		for b := 0; b < 8; b++ {
			var p = base + b*2
			bb.cur[out] = samples[p]
			bb.before[out] = samples[p-1]
			bb.after[out] = samples[p+1]
			out++
		}
		base += 96
	}

	return bb
}

// extractAdsb pulls an ADS-B message of numBytes (long or short) out of
// a frame.  No interleaving.
func extractAdsb(samples []int32, offset int, numBytes int) blockBits {
	var n = numBytes * 8

	var bb = blockBits{
		cur:    make([]int32, n),
		before: make([]int32, n),
		after:  make([]int32, n),
	}

	for i := 0; i < n; i++ {
		var p = offset + i*2
		bb.cur[i] = samples[p]
		bb.before[i] = samples[p-1]
		bb.after[i] = samples[p+1]
	}

	return bb
}

// packBits slices samples to bits (>= 0 is a one) and packs them MSB
// first.
func packBits(bits []int32) []byte {
	var out = make([]byte, (len(bits)+7)/8)
	for i, s := range bits {
		if s >= 0 {
			out[i/8] |= 0x80 >> (i % 8)
		}
	}
	return out
}

// mixAndPack re-slices after pulling every sample toward its neighbor:
//
//	mixed = (cur + pct*neighbor) / 2
//
// With two samples per bit the nominal slice points rarely sit at the
// optimum; blending in a neighbor moves the effective slice point and
// often flips exactly the marginal bits that kept Reed-Solomon from
// converging.
func mixAndPack(cur []int32, neighbor []int32, pct float64) []byte {
	var out = make([]byte, (len(cur)+7)/8)
	for i := range cur {
		var v = (float64(cur[i]) + pct*float64(neighbor[i])) / 2
		if v >= 0 {
			out[i/8] |= 0x80 >> (i % 8)
		}
	}
	return out
}
