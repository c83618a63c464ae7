package uat978

// SPDX-FileCopyrightText: 2002 Phil Karn, KA9Q

// encode computes the parity symbols for one codeword: polynomial
// division of the message by the generator, done LFSR style with the
// parity slice as the shift register.
//
// data must hold numSyms-parity symbols; lead with zeros to encode a
// shortened code.  The receive path never transmits, so this exists
// for the tests and for building synthetic streams.
func (rs *rsCodec) encode(data []byte, parity []byte) {
	for i := range parity {
		parity[i] = 0
	}

	var msgLen = rs.numSyms - rs.parity

	for i := 0; i < msgLen; i++ {
		var feedback = int(rs.log[data[i]^parity[0]])

		if feedback != rs.zeroIdx() {
			for j := 1; j < rs.parity; j++ {
				parity[j] ^= rs.exp[rs.wrap(feedback+int(rs.gen[rs.parity-j]))]
			}
		}

		copy(parity, parity[1:])

		if feedback != rs.zeroIdx() {
			parity[rs.parity-1] = rs.exp[rs.wrap(feedback+int(rs.gen[0]))]
		} else {
			parity[rs.parity-1] = 0
		}
	}
}
