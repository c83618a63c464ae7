package uat978

// SPDX-FileCopyrightText: 2002 Phil Karn, KA9Q

// Reed-Solomon codec over GF(2^m).  The arithmetic follows Phil Karn's
// classic codec, which he released under the GPL; the table
// construction and decoding mathematics are standard, but any credit
// for them getting fast and right belongs to him.
//
// Everything about one code lives in its rsCodec: field tables,
// generator polynomial and geometry.  Index form means "exponent of
// the primitive element"; the zero element has no exponent and uses a
// sentinel instead.

import (
	"fmt"
)

// rsCodec holds the lookup tables and generator polynomial for one
// Reed-Solomon code.
type rsCodec struct {
	symBits  uint   // bits per symbol
	numSyms  int    // nonzero field elements; also the full codeword length
	exp      []byte // index form -> element
	log      []byte // element -> index form; log[0] holds the sentinel
	gen      []byte // generator polynomial coefficients, index form
	parity   int    // parity symbols the encoder appends
	fcr      int    // first consecutive root of the generator, index form
	prim     int    // primitive element spacing the generator roots
	primRoot int    // prim-th root of 1; steps the Chien search
}

// zeroIdx is the index-form sentinel for the zero element.
func (rs *rsCodec) zeroIdx() int {
	return rs.numSyms
}

// wrap reduces an index-form exponent modulo numSyms.  Shift and mask
// instead of a divide; exponents here are always modest.
func (rs *rsCodec) wrap(x int) int {
	for x >= rs.numSyms {
		x -= rs.numSyms
		x = (x >> rs.symBits) + (x & rs.numSyms)
	}
	return x
}

// newRSCodec builds the field tables and generator polynomial for a
// code with the given symbol size, field generator polynomial, first
// consecutive root, root spacing and parity symbol count.
func newRSCodec(symBits uint, gfPoly int, fcr int, prim int, parity int) (*rsCodec, error) {
	if symBits > 8 {
		return nil, fmt.Errorf("symbol size %d: bytes can carry at most 8 bits", symBits)
	}

	var numSyms = (1 << symBits) - 1

	if fcr < 0 || fcr > numSyms {
		return nil, fmt.Errorf("first consecutive root %d out of field range", fcr)
	}
	if prim <= 0 || prim > numSyms {
		return nil, fmt.Errorf("primitive element %d out of field range", prim)
	}
	if parity < 0 || parity >= numSyms {
		return nil, fmt.Errorf("%d parity symbols cannot fit a %d symbol block", parity, numSyms)
	}

	var rs = &rsCodec{
		symBits: symBits,
		numSyms: numSyms,
		exp:     make([]byte, numSyms+1),
		log:     make([]byte, numSyms+1),
		gen:     make([]byte, parity+1),
		parity:  parity,
		fcr:     fcr,
		prim:    prim,
	}

	// Walk the powers of the primitive element to fill the log and
	// antilog tables.  If the walk does not come back to 1 after
	// visiting every nonzero element, the polynomial is no good.
	rs.log[0] = byte(numSyms)
	rs.exp[numSyms] = 0

	var element = 1
	for power := 0; power < numSyms; power++ {
		rs.log[element] = byte(power)
		rs.exp[power] = byte(element)

		element <<= 1
		if element&(1<<symBits) != 0 {
			element ^= gfPoly
		}
		element &= numSyms
	}
	if element != 1 {
		return nil, fmt.Errorf("field polynomial %#x is not primitive", gfPoly)
	}

	// The Chien search walks error locations with the prim-th root of
	// unity rather than dividing exponents by prim.
	var r = 1
	for r%prim != 0 {
		r += numSyms
	}
	rs.primRoot = r / prim

	// Multiply out the generator polynomial from its roots,
	// alpha^(fcr*prim), alpha^((fcr+1)*prim), ...
	rs.gen[0] = 1
	var root = fcr * prim
	for i := 0; i < parity; i++ {
		rs.gen[i+1] = 1

		for j := i; j > 0; j-- {
			if rs.gen[j] != 0 {
				rs.gen[j] = rs.gen[j-1] ^ rs.exp[rs.wrap(int(rs.log[rs.gen[j]])+root)]
			} else {
				rs.gen[j] = rs.gen[j-1]
			}
		}
		// The constant term only ever picks up the root product.
		rs.gen[0] = rs.exp[rs.wrap(int(rs.log[rs.gen[0]])+root)]

		root += prim
	}

	// Index form, which is what the encoder's inner loop wants.
	for i := range rs.gen {
		rs.gen[i] = rs.log[rs.gen[i]]
	}

	return rs, nil
}
