package memory

// clamp returns the bounds of the sub slice of a window of length n that
// starts at offset and is at most size bytes long. The result is empty when
// offset is past the end of the window.
func clamp(n int, offset, size uint64) (lo, hi int) {
	if offset >= uint64(n) {
		return 0, 0
	}
	rem := uint64(n) - offset
	if size < rem {
		rem = size
	}
	return int(offset), int(offset + rem)
}

func window(buf []byte, offset, size uint64) []byte {
	lo, hi := clamp(len(buf), offset, size)
	return buf[lo:hi:hi]
}
