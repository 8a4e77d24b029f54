// ABOUTME: Capped growable download buffer for poster fetches
// ABOUTME: Grows in fixed increments instead of trusting content-length
package poster

import (
	"errors"
	"fmt"
	"io"
)

const (
	// maxDownload is the hard cap on poster bytes. Anything larger is
	// rejected mid-stream.
	maxDownload = 500000

	initialCapacity = 64 * 1024
	minGrowth       = 16 * 1024
)

var errPosterTooLarge = errors.New("poster exceeds download cap")

// growBuffer accumulates a bounded download. Capacity starts small and grows
// by half of the current capacity (at least minGrowth) up to maxDownload, so
// a misreported or adversarial Content-Length never drives the allocation.
type growBuffer struct {
	data []byte
}

func newGrowBuffer() *growBuffer {
	return &growBuffer{data: make([]byte, 0, initialCapacity)}
}

// readFrom drains r into the buffer, growing as needed. A stream of exactly
// maxDownload bytes is accepted; only bytes past the cap are an error.
func (b *growBuffer) readFrom(r io.Reader) error {
	for {
		if len(b.data) == cap(b.data) {
			if cap(b.data) >= maxDownload {
				// Full to the cap: a single sentinel read distinguishes a
				// pending EOF from an oversized stream.
				var one [1]byte
				n, err := r.Read(one[:])
				if n > 0 {
					return errPosterTooLarge
				}
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return fmt.Errorf("poster read failed: %w", err)
				}
				continue
			}
			b.grow()
		}

		n, err := r.Read(b.data[len(b.data):cap(b.data)])
		b.data = b.data[:len(b.data)+n]
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("poster read failed: %w", err)
		}
	}
}

func (b *growBuffer) grow() {
	step := cap(b.data) / 2
	if step < minGrowth {
		step = minGrowth
	}
	newCap := cap(b.data) + step
	if newCap > maxDownload {
		newCap = maxDownload
	}

	next := make([]byte, len(b.data), newCap)
	copy(next, b.data)
	b.data = next
}

func (b *growBuffer) bytes() []byte {
	return b.data
}
