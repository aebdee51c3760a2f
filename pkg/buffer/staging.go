// Package buffer implements the connection context's staging buffer: a
// fixed-capacity byte area used to accumulate response headers across
// arbitrary transport read sizes and to hold body-prefix bytes that arrive
// bundled with the header in a single read.
//
// Staging tracks an explicit head/tail cursor pair rather than memmoving the
// buffer on every append. Rotation still copies remaining bytes to offset 0
// when the caller asks for it (Compact), but never during the accumulation
// loop itself beyond that one copy.
package buffer

import "github.com/evohttp/evohttp/pkg/errors"

// Staging is a fixed-capacity byte area with a head (consumed-up-to) and
// tail (filled-up-to) cursor. Bytes in [head, tail) are unconsumed content;
// bytes in [tail, capacity) are free space available to the next read.
type Staging struct {
	data []byte
	head int
	tail int
}

// New wraps data, as handed out by an allocator, as a Staging buffer of the
// given capacity. Returns a resource-exhaustion error if data is nil or
// shorter than capacity.
func New(capacity int, data []byte) (*Staging, error) {
	if data == nil {
		return nil, errors.NewResourceExhaustion("buffer.New", "allocator returned nil")
	}
	if len(data) < capacity {
		return nil, errors.NewResourceExhaustion("buffer.New", "allocator returned undersized buffer")
	}
	return &Staging{data: data[:capacity]}, nil
}

// Cap returns the buffer's total capacity.
func (s *Staging) Cap() int { return len(s.data) }

// Len returns the number of unconsumed bytes currently held.
func (s *Staging) Len() int { return s.tail - s.head }

// Free returns the number of bytes available for the next fill, i.e. the
// room remaining at the tail before a Compact is required.
func (s *Staging) Free() int { return len(s.data) - s.tail }

// Bytes returns the unconsumed content as a slice into the underlying array.
// The slice is only valid until the next mutating call.
func (s *Staging) Bytes() []byte { return s.data[s.head:s.tail] }

// FillSlot returns the writable slice at the tail where the next transport
// read should land, i.e. data[tail:cap].
func (s *Staging) FillSlot() []byte { return s.data[s.tail:] }

// Advance records that n bytes were written into the slice returned by
// FillSlot.
func (s *Staging) Advance(n int) { s.tail += n }

// Consume marks the first n bytes of Bytes() as delivered, advancing head.
// Panics if n exceeds Len(), which would indicate a core bug rather than a
// caller-supplied condition.
func (s *Staging) Consume(n int) {
	if n > s.Len() {
		panic("buffer: Consume beyond Len")
	}
	s.head += n
}

// Compact shifts any unconsumed bytes down to offset 0, resetting head to 0
// and tail to the unconsumed length. Call this whenever FillSlot would
// otherwise return a slot too small to make progress.
func (s *Staging) Compact() {
	if s.head == 0 {
		return
	}
	n := copy(s.data, s.data[s.head:s.tail])
	s.head = 0
	s.tail = n
}

// Reset drops all unconsumed content without copying.
func (s *Staging) Reset() {
	s.head = 0
	s.tail = 0
}
