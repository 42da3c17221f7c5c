package guestmem

// IOV is a scatter/gather list of host-accessible buffers.
type IOV [][]byte

// Len returns the total number of bytes.
func (v IOV) Len() int {
	n := 0
	for _, b := range v {
		n += len(b)
	}

	return n
}

// ReadAt copies bytes starting at off into p and returns how many were
// copied. Reading stops at the end of the list.
func (v IOV) ReadAt(p []byte, off int) int {
	return v.walk(off, len(p), func(buf []byte, done int) {
		copy(p[done:], buf)
	})
}

// WriteAt copies p into the list starting at off and returns how many bytes
// were written.
func (v IOV) WriteAt(p []byte, off int) int {
	return v.walk(off, len(p), func(buf []byte, done int) {
		copy(buf, p[done:])
	})
}

func (v IOV) walk(off, n int, f func(buf []byte, done int)) int {
	done := 0

	for _, b := range v {
		if done == n {
			break
		}

		if off >= len(b) {
			off -= len(b)
			continue
		}

		chunk := b[off:]
		off = 0

		if len(chunk) > n-done {
			chunk = chunk[:n-done]
		}

		f(chunk, done)
		done += len(chunk)
	}

	return done
}
