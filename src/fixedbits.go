package uat978

// Known-constant bits of the FIS-B ground uplink header, used as a last
// resort when block 0 will not error correct.
//
// The first eight bytes of a ground uplink message are (DO-282B,
// UAT-Frame payload header):
//
//	bits  0-22  ground station latitude (23 bits)
//	bits 23-46  ground station longitude (24 bits)
//	bit     47  position valid
//	bit     48  UTC coupled
//	bits 49-50  reserved, always 0
//	bits 51-55  slot ID
//	bits 56-59  TIS-B site ID
//	bits 60-63  reserved, always 0
//
// The six reserved bits are constant on the air.  Forcing them to zero
// repairs up to six symbol-corrupting bit errors for free, which is
// sometimes just enough to pull block 0 back inside the correction
// budget.
//
// The latitude/longitude/slot bytes are station specific, so they are
// not in the mask.  A receiver usually hears only a handful of ground
// stations; their first six header bytes can be configured as overlay
// candidates and tried the same way.

// uplinkReservedMask marks header bits that are always zero.
var uplinkReservedMask = [8]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x60, 0x0f}

// UplinkPrefixBytes is the length of a ground-station identity prefix
// (latitude, longitude and the position valid bit).
const UplinkPrefixBytes = 6

// applyFixedBits clears the reserved header bits in a packed block 0.
// Reports whether anything changed, so callers can skip a pointless
// decode retry.
func applyFixedBits(block []byte) bool {
	var changed = false
	for i, mask := range uplinkReservedMask {
		if mask == 0 {
			continue
		}
		if block[i]&mask != 0 {
			block[i] &^= mask
			changed = true
		}
	}
	return changed
}

// applyPrefix overlays one configured station prefix onto a packed
// block 0.
func applyPrefix(block []byte, prefix []byte) {
	copy(block[:UplinkPrefixBytes], prefix)
}
