package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestBufferPutGet(t *testing.T) {
	buf := NewBuffer(32)

	if err := buf.PutU8(0xAB); err != nil {
		t.Fatal(err)
	}
	if err := buf.PutU16(0x1234); err != nil {
		t.Fatal(err)
	}
	if err := buf.PutU32(0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	if err := buf.PutU64(0x0102030405060708); err != nil {
		t.Fatal(err)
	}

	if v, _ := buf.GetU8(); v != 0xAB {
		t.Errorf("GetU8 = %#x", v)
	}
	if v, _ := buf.GetU16(); v != 0x1234 {
		t.Errorf("GetU16 = %#x", v)
	}
	if v, _ := buf.GetU32(); v != 0xDEADBEEF {
		t.Errorf("GetU32 = %#x", v)
	}
	if v, _ := buf.GetU64(); v != 0x0102030405060708 {
		t.Errorf("GetU64 = %#x", v)
	}
	if buf.Readable() != 0 {
		t.Errorf("Readable = %d, want 0", buf.Readable())
	}
}

func TestBufferLittleEndian(t *testing.T) {
	buf := NewBuffer(8)
	if err := buf.PutU16(0x0102); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x02, 0x01}
	if !bytes.Equal(buf.ReadableSlice(), want) {
		t.Errorf("encoding = %v, want %v", buf.ReadableSlice(), want)
	}
}

func TestBufferOverflow(t *testing.T) {
	buf := NewBuffer(3)
	if err := buf.PutU32(1); !errors.Is(err, ErrBufferOverflow) {
		t.Errorf("PutU32 = %v, want ErrBufferOverflow", err)
	}
	if err := buf.PutBytes(make([]byte, 4)); !errors.Is(err, ErrBufferOverflow) {
		t.Errorf("PutBytes = %v, want ErrBufferOverflow", err)
	}
	// A failed write must not consume space.
	if buf.Writable() != 3 {
		t.Errorf("Writable after failed writes = %d, want 3", buf.Writable())
	}
}

func TestBufferUnderflow(t *testing.T) {
	buf := NewBuffer(8)
	buf.PutU8(1)
	if _, err := buf.GetU32(); !errors.Is(err, ErrBufferUnderflow) {
		t.Errorf("GetU32 = %v, want ErrBufferUnderflow", err)
	}
	if err := buf.Skip(2); !errors.Is(err, ErrBufferUnderflow) {
		t.Errorf("Skip = %v, want ErrBufferUnderflow", err)
	}
}

func TestBufferSaveRestore(t *testing.T) {
	buf := NewBuffer(16)
	buf.PutBytes([]byte{1, 2, 3, 4})

	cur := buf.Save()
	buf.GetU16()
	buf.Restore(cur)

	if buf.Readable() != 4 {
		t.Errorf("Readable after restore = %d, want 4", buf.Readable())
	}
	if v, _ := buf.GetU8(); v != 1 {
		t.Errorf("first byte after restore = %d, want 1", v)
	}
}

func TestBufferCompactPreservesPartialFrame(t *testing.T) {
	buf := NewBuffer(8)
	buf.PutBytes([]byte{9, 9, 9, 1, 2, 3})
	buf.Skip(3) // consume a complete frame, leave a partial one

	buf.Compact()

	if buf.Readable() != 3 {
		t.Fatalf("Readable after compact = %d, want 3", buf.Readable())
	}
	if !bytes.Equal(buf.ReadableSlice(), []byte{1, 2, 3}) {
		t.Errorf("preserved bytes = %v, want [1 2 3]", buf.ReadableSlice())
	}
	if buf.Writable() != 5 {
		t.Errorf("Writable after compact = %d, want 5", buf.Writable())
	}
}

func TestBufferWritableSliceAdvance(t *testing.T) {
	buf := NewBuffer(8)
	n := copy(buf.WritableSlice(), []byte{5, 6, 7})
	buf.AdvanceWrite(n)

	if buf.Readable() != 3 {
		t.Errorf("Readable = %d, want 3", buf.Readable())
	}
	if buf.Writable() != 5 {
		t.Errorf("Writable = %d, want 5", buf.Writable())
	}
}

func TestBufferFlush(t *testing.T) {
	buf := NewBuffer(16)
	buf.PutBytes([]byte("hello"))

	var out bytes.Buffer
	n, err := buf.Flush(&out)
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if n != 5 || out.String() != "hello" {
		t.Errorf("Flush wrote %d bytes %q", n, out.String())
	}
	if buf.Readable() != 0 || buf.Writable() != 16 {
		t.Error("buffer not empty after flush")
	}

	// Flushing an empty buffer writes nothing.
	n, err = buf.Flush(&out)
	if err != nil || n != 0 {
		t.Errorf("empty flush = %d, %v", n, err)
	}
}
