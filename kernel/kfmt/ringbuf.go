package kfmt

import "io"

// ringBufferSize defines the capacity of the buffer that holds early Printf
// output. It must be a power of 2.
const ringBufferSize = 2048

// ringBuffer is a fixed-size ring that captures Printf output until a real
// output sink gets registered. When the ring fills up the oldest data is
// overwritten.
type ringBuffer struct {
	buffer [ringBufferSize]byte
	// count tracks the bytes currently stored; rIndex the next byte to read.
	rIndex, count int
}

// Write appends len(p) bytes from p to the ring, evicting the oldest bytes
// on overflow. It never fails.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[(rb.rIndex+rb.count)&(ringBufferSize-1)] = b
		if rb.count < ringBufferSize {
			rb.count++
		} else {
			rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		}
	}

	return len(p), nil
}

// Read copies up to len(p) buffered bytes into p in FIFO order and returns
// io.EOF once the ring has been drained.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.count == 0 {
		return 0, io.EOF
	}

	var n int
	for ; n < len(p) && rb.count > 0; n++ {
		p[n] = rb.buffer[rb.rIndex]
		rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		rb.count--
	}

	return n, nil
}
