// bitfield.go adapts the standalone bitfield helpers from
// attestation_aggregator.go for tracking which witnesses in a PoBPC
// round have cast a vote. The AggregateAttestation/AggregationPool types
// in that file depend on undefined beacon types and are not reused.
package consensus

// SetBit sets the bit at the given index in the bitfield, growing it if
// necessary, and returns the (possibly reallocated) slice.
func SetBit(bitfield []byte, index int) []byte {
	byteIdx := index / 8
	bitIdx := uint(index % 8)
	for byteIdx >= len(bitfield) {
		bitfield = append(bitfield, 0)
	}
	bitfield[byteIdx] |= 1 << bitIdx
	return bitfield
}

// GetBit returns true if the bit at the given index is set.
func GetBit(bitfield []byte, index int) bool {
	byteIdx := index / 8
	if byteIdx >= len(bitfield) {
		return false
	}
	bitIdx := uint(index % 8)
	return bitfield[byteIdx]&(1<<bitIdx) != 0
}

// CountBits returns the population count of bitfield.
func CountBits(bitfield []byte) int {
	count := 0
	for _, b := range bitfield {
		v := b
		for v != 0 {
			count++
			v &= v - 1
		}
	}
	return count
}
