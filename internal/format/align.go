package format

// Align8 returns n aligned up to the next 8-byte boundary.
//
// Example:
//
//	Align8(1)  = 8
//	Align8(8)  = 8
//	Align8(9)  = 16
func Align8(n uint32) uint32 {
	return (n + AlignmentMask) &^ AlignmentMask
}

// AlignDown8 returns n aligned down to the previous 8-byte boundary.
func AlignDown8(n uint32) uint32 {
	return n &^ AlignmentMask
}

// IsAligned8 reports whether n is a multiple of 8.
func IsAligned8(n uint32) bool {
	return n&AlignmentMask == 0
}
