package linearize

import "math/bits"

// BitsNeeded returns the number of bits required to store v: 0 for 0,
// otherwise the bit length of v.
func BitsNeeded(v uint64) int {
	return bits.Len64(v)
}

// DeltaEncoding returns the minimum of values and the width needed to
// store the largest value-minus-minimum. An empty slice yields (0, 0).
func DeltaEncoding(values []uint64) (min uint64, width int) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, BitsNeeded(max - min)
}

// maxWidth returns the width needed for the largest of values.
func maxWidth(values ...uint64) int {
	var m uint64
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return BitsNeeded(m)
}
