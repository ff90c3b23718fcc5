package audio

// IntToS8 keeps the most significant byte of a signed PCM sample of the given
// bit depth.
func IntToS8(v int, bitDepth int) int8 {
	if bitDepth <= 8 {
		return int8(v)
	}
	return int8(v >> (bitDepth - 8))
}

// U8ToS8 converts an unsigned 8-bit sample (silence at 128) to signed.
func U8ToS8(b byte) int8 {
	return int8(b ^ 0x80)
}

// S16LEToS8 converts the little-endian 16-bit sample at the start of b to 8
// bits by keeping its high byte.
func S16LEToS8(b []byte) int8 {
	return int8(b[1])
}

// FloatToS8 converts a sample in [-1,1] to signed 8-bit, clipping values
// outside the range.
func FloatToS8(f float32) int8 {
	v := f * 128
	if v >= 127 {
		return 127
	}
	if v <= -128 {
		return -128
	}
	if v < 0 {
		return int8(v - 0.5)
	}
	return int8(v + 0.5)
}
