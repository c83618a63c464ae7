package uat978

// UAT Reed-Solomon code parameters, from DO-282B:
//
//	Symbol size: 8 bits
//	Field generator polynomial: 0x187
//	First consecutive root: 120
//	Primitive element: 1
//
// Ground uplink (FIS-B) blocks are RS(92,72) with 20 parity symbols.
// ADS-B long is RS(48,34), ADS-B short RS(30,18).  All three are
// shortened codes over the same GF(2^8).

const (
	uatGfPoly = 0x187
	uatFcr    = 120
	uatPrim   = 1
)

const rsBlockSize = 255 // Block size always 255 for 8 bit symbols.
const rsMaxCheck = 20   // Largest nroots used here (FIS-B).

// uatCode ties one of the three UAT codes to its codec.
type uatCode struct {
	name       string
	totalBytes int // data + parity as transmitted
	dataBytes  int
	nroots     int
	rs         *rsCodec
}

var rsFisb = newUATCode("FIS-B", FisbBlockBytes, FisbDataBytes)
var rsAdsbLong = newUATCode("ADS-B long", AdsbLongBytes, AdsbLongDataBytes)
var rsAdsbShort = newUATCode("ADS-B short", AdsbShortBytes, AdsbShortDataBytes)

func newUATCode(name string, totalBytes int, dataBytes int) *uatCode {
	var nroots = totalBytes - dataBytes

	var rs, err = newRSCodec(8, uatGfPoly, uatFcr, uatPrim, nroots)
	if err != nil {
		// The parameters are compile-time constants; this cannot fail
		// unless the tables above are edited.
		panic("uat978: " + name + " codec: " + err.Error())
	}

	return &uatCode{
		name:       name,
		totalBytes: totalBytes,
		dataBytes:  dataBytes,
		nroots:     nroots,
		rs:         rs,
	}
}

// decode error corrects one transmitted block (data + parity,
// c.totalBytes long).  Shortened codes are handled by zero filling the
// front of a full 255 byte RS block.
//
// Returns the corrected data bytes and the number of symbols fixed, or
// ok=false if the block is uncorrectable.
func (c *uatCode) decode(block []byte) (data []byte, nErrors int, ok bool) {
	if len(block) != c.totalBytes {
		return nil, -1, false
	}

	var fill = rsBlockSize - c.totalBytes

	var rsBlock [rsBlockSize]byte
	copy(rsBlock[fill:], block)

	var derrlocs [rsMaxCheck]int

	var derrors = c.rs.decode(rsBlock[:], derrlocs[:], 0)
	if derrors < 0 {
		return nil, -1, false
	}

	// It is possible to have a situation where too many errors are
	// present but the algorithm could get a good code block by "fixing"
	// one of the padding bytes that should be 0.
	for i := 0; i < derrors; i++ {
		if derrlocs[i] < fill {
			return nil, -1, false
		}
	}

	data = make([]byte, c.dataBytes)
	copy(data, rsBlock[fill:fill+c.dataBytes])

	return data, derrors, true
}

// encode computes the parity for one block of message data.  Only the
// tests and synthetic stream generation transmit.
func (c *uatCode) encode(data []byte) (parity []byte) {
	if len(data) != c.dataBytes {
		panic("uat978: encode length mismatch for " + c.name)
	}

	var fill = rsBlockSize - c.totalBytes

	var rsBlock [rsBlockSize]byte
	copy(rsBlock[fill:], data)

	parity = make([]byte, c.nroots)
	c.rs.encode(rsBlock[:rsBlockSize-c.nroots], parity)

	return parity
}
