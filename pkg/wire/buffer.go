package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Buffer errors.
var (
	// ErrBufferOverflow indicates a write past the buffer's fixed
	// capacity. On a configuration-reply path this is connection-fatal.
	ErrBufferOverflow = errors.New("buffer overflow")

	// ErrBufferUnderflow indicates a read past the buffered data.
	ErrBufferUnderflow = errors.New("buffer underflow")
)

// Buffer is a fixed-capacity byte region with explicit read and write
// cursors. Bytes between the read and write cursors are buffered data;
// bytes past the write cursor are free space. A Buffer is never
// reallocated and is not safe for concurrent use.
type Buffer struct {
	data []byte
	r, w int
}

// Cursor is a saved buffer position. Restoring a cursor rewinds the
// buffer so that partially parsed frames can be re-read once more
// bytes arrive.
type Cursor struct {
	r, w int
}

// NewBuffer allocates a buffer with the given fixed capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Cap returns the fixed capacity in bytes.
func (b *Buffer) Cap() int { return len(b.data) }

// Readable returns the number of buffered, unread bytes.
func (b *Buffer) Readable() int { return b.w - b.r }

// Writable returns the free space in bytes.
func (b *Buffer) Writable() int { return len(b.data) - b.w }

// Save captures the current cursors.
func (b *Buffer) Save() Cursor {
	return Cursor{r: b.r, w: b.w}
}

// Restore rewinds the buffer to a previously saved cursor.
func (b *Buffer) Restore(c Cursor) {
	b.r, b.w = c.r, c.w
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.r, b.w = 0, 0
}

// WritableSlice exposes the free region for direct reads from a
// transport. Call AdvanceWrite with the byte count actually read.
func (b *Buffer) WritableSlice() []byte {
	return b.data[b.w:]
}

// AdvanceWrite moves the write cursor past n externally written bytes.
func (b *Buffer) AdvanceWrite(n int) {
	b.w += n
	if b.w > len(b.data) {
		b.w = len(b.data)
	}
}

// ReadableSlice exposes the buffered, unread bytes without consuming
// them.
func (b *Buffer) ReadableSlice() []byte {
	return b.data[b.r:b.w]
}

// Skip advances the read cursor past n bytes.
func (b *Buffer) Skip(n int) error {
	if n > b.Readable() {
		return fmt.Errorf("%w: skip %d of %d", ErrBufferUnderflow, n, b.Readable())
	}
	b.r += n
	return nil
}

// Compact moves unread bytes to the front of the buffer, preserving
// any partial frame while reclaiming consumed space.
func (b *Buffer) Compact() {
	if b.r == 0 {
		return
	}
	n := copy(b.data, b.data[b.r:b.w])
	b.r = 0
	b.w = n
}

// PutU8 appends one byte.
func (b *Buffer) PutU8(v byte) error {
	if b.Writable() < 1 {
		return ErrBufferOverflow
	}
	b.data[b.w] = v
	b.w++
	return nil
}

// PutU16 appends a little-endian u16.
func (b *Buffer) PutU16(v uint16) error {
	if b.Writable() < 2 {
		return ErrBufferOverflow
	}
	binary.LittleEndian.PutUint16(b.data[b.w:], v)
	b.w += 2
	return nil
}

// PutU32 appends a little-endian u32.
func (b *Buffer) PutU32(v uint32) error {
	if b.Writable() < 4 {
		return ErrBufferOverflow
	}
	binary.LittleEndian.PutUint32(b.data[b.w:], v)
	b.w += 4
	return nil
}

// PutU64 appends a little-endian u64.
func (b *Buffer) PutU64(v uint64) error {
	if b.Writable() < 8 {
		return ErrBufferOverflow
	}
	binary.LittleEndian.PutUint64(b.data[b.w:], v)
	b.w += 8
	return nil
}

// PutBytes appends p.
func (b *Buffer) PutBytes(p []byte) error {
	if b.Writable() < len(p) {
		return fmt.Errorf("%w: need %d, have %d", ErrBufferOverflow, len(p), b.Writable())
	}
	copy(b.data[b.w:], p)
	b.w += len(p)
	return nil
}

// GetU8 consumes one byte.
func (b *Buffer) GetU8() (byte, error) {
	if b.Readable() < 1 {
		return 0, ErrBufferUnderflow
	}
	v := b.data[b.r]
	b.r++
	return v, nil
}

// GetU16 consumes a little-endian u16.
func (b *Buffer) GetU16() (uint16, error) {
	if b.Readable() < 2 {
		return 0, ErrBufferUnderflow
	}
	v := binary.LittleEndian.Uint16(b.data[b.r:])
	b.r += 2
	return v, nil
}

// GetU32 consumes a little-endian u32.
func (b *Buffer) GetU32() (uint32, error) {
	if b.Readable() < 4 {
		return 0, ErrBufferUnderflow
	}
	v := binary.LittleEndian.Uint32(b.data[b.r:])
	b.r += 4
	return v, nil
}

// GetU64 consumes a little-endian u64.
func (b *Buffer) GetU64() (uint64, error) {
	if b.Readable() < 8 {
		return 0, ErrBufferUnderflow
	}
	v := binary.LittleEndian.Uint64(b.data[b.r:])
	b.r += 8
	return v, nil
}

// Flush writes all buffered bytes to w and empties the buffer.
// It returns the number of bytes written.
func (b *Buffer) Flush(w io.Writer) (int, error) {
	total := 0
	for b.r < b.w {
		n, err := w.Write(b.data[b.r:b.w])
		b.r += n
		total += n
		if err != nil {
			b.Compact()
			return total, err
		}
	}
	b.Reset()
	return total, nil
}
