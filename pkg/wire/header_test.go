package wire

import (
	"errors"
	"testing"
)

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		h    Header
	}{
		{
			name: "handshake",
			h:    Header{ID: 1, Length: HandshakeLength, Flags: RequestFlags, ComponentType: ComponentServer, SubType: SubHandshake},
		},
		{
			name: "ping response",
			h:    Header{ID: 42, Length: HeaderSize, Flags: FlagResponse, ComponentType: ComponentServer, SubType: SubPing},
		},
		{
			name: "telemetry frame",
			h:    Header{ID: 0, Length: 64, Flags: RequestFlags, ComponentType: 2, SubType: 1},
		},
		{
			name: "max values",
			h:    Header{ID: 0xFFFF, Length: 0xFFFF, Flags: 0xFF, ComponentType: 0xFF, SubType: 0xFF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := NewBuffer(HeaderSize)
			if err := tt.h.WriteTo(buf); err != nil {
				t.Fatalf("WriteTo failed: %v", err)
			}
			got, ok := ParseHeader(buf)
			if !ok {
				t.Fatal("ParseHeader returned false for complete header")
			}
			if got != tt.h {
				t.Errorf("round trip = %+v, want %+v", got, tt.h)
			}
			if buf.Readable() != 0 {
				t.Errorf("Readable after parse = %d, want 0", buf.Readable())
			}
		})
	}
}

func TestHeaderRoundTripAllLengths(t *testing.T) {
	const capacity = 1024
	buf := NewBuffer(HeaderSize)
	for length := HeaderSize; length <= capacity; length++ {
		h := Header{ID: uint16(length), Length: uint16(length), Flags: RequestFlags, ComponentType: 1, SubType: 2}
		if err := h.Validate(capacity); err != nil {
			t.Fatalf("Validate(%d) failed: %v", length, err)
		}
		buf.Reset()
		if err := h.WriteTo(buf); err != nil {
			t.Fatalf("WriteTo failed at length %d: %v", length, err)
		}
		got, ok := ParseHeader(buf)
		if !ok || got != h {
			t.Fatalf("round trip at length %d = %+v, %v", length, got, ok)
		}
	}
}

func TestParseHeaderNeedsMoreData(t *testing.T) {
	buf := NewBuffer(16)
	if err := buf.PutBytes([]byte{1, 0, 7, 0, 0, 0}); err != nil { // 6 of 7 bytes
		t.Fatal(err)
	}
	saved := buf.Save()
	if _, ok := ParseHeader(buf); ok {
		t.Fatal("ParseHeader succeeded on a short header")
	}
	if buf.Save() != saved {
		t.Error("ParseHeader moved the cursor on incomplete data")
	}
}

func TestHeaderValidate(t *testing.T) {
	tests := []struct {
		name     string
		length   uint16
		capacity int
		wantErr  error
	}{
		{"minimum", HeaderSize, 1024, nil},
		{"exact capacity", 1024, 1024, nil},
		{"below header size", HeaderSize - 1, 1024, ErrInvalidLength},
		{"zero", 0, 1024, ErrInvalidLength},
		{"over capacity", 1025, 1024, ErrFrameTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Header{Length: tt.length}
			err := h.Validate(tt.capacity)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHeaderFlags(t *testing.T) {
	h := Header{Flags: RequestFlags}
	if h.IsResponse() {
		t.Error("request header reports IsResponse")
	}
	resp := h.Response()
	if !resp.IsResponse() {
		t.Error("Response() did not set the response flag")
	}
	if h.IsResponse() {
		t.Error("Response() mutated the receiver")
	}
}

func TestDecodeHeaderShort(t *testing.T) {
	if _, err := DecodeHeader(make([]byte, HeaderSize-1)); !errors.Is(err, ErrBufferUnderflow) {
		t.Errorf("DecodeHeader on short slice = %v, want ErrBufferUnderflow", err)
	}
}
