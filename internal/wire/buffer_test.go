package wire

import (
	"bytes"
	"testing"

	errspkg "github.com/couriermq/courier/internal/errors"
)

func TestVarintBoundaries(t *testing.T) {
	tests := []struct {
		value uint64
		bytes []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{16384, []byte{0x80, 0x80, 0x01}},
		{2147483647, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x07}},
	}

	for _, tt := range tests {
		w := NewWriteBuffer()
		w.PushUvarint(tt.value)
		got := w.Drain()
		if !bytes.Equal(got, tt.bytes) {
			t.Errorf("encode %d = %x, want %x", tt.value, got, tt.bytes)
		}

		r := NewReadBuffer(tt.bytes)
		v, err := r.ReadUvarint()
		if err != nil {
			t.Fatalf("decode %x: %v", tt.bytes, err)
		}
		if v != tt.value {
			t.Errorf("decode %x = %d, want %d", tt.bytes, v, tt.value)
		}
		if !r.EOF() {
			t.Errorf("decode %x left %d unread bytes", tt.bytes, r.Remaining())
		}
	}
}

func TestVarintTruncated(t *testing.T) {
	for _, in := range [][]byte{{}, {0x80}, {0xFF, 0x80}, {0x80, 0x80, 0x80}} {
		r := NewReadBuffer(in)
		if _, err := r.ReadUvarint(); !errspkg.IsKind(err, errspkg.KindEndOfStream) {
			t.Errorf("decode %x: err = %v, want end of stream", in, err)
		}
	}
}

func TestVarintTooWide(t *testing.T) {
	in := bytes.Repeat([]byte{0x80}, 10)
	in = append(in, 0x01)
	r := NewReadBuffer(in)
	if _, err := r.ReadUvarint(); !errspkg.IsKind(err, errspkg.KindUnsupported) {
		t.Errorf("err = %v, want unsupported", err)
	}
}

func TestWriteBufferDrainOnce(t *testing.T) {
	w := NewWriteBuffer()
	w.Push([]byte("abc"))
	w.PushByte('d')
	w.Push([]byte("ef"))

	if w.Len() != 6 {
		t.Fatalf("Len = %d, want 6", w.Len())
	}
	if got := w.Drain(); string(got) != "abcdef" {
		t.Fatalf("Drain = %q, want %q", got, "abcdef")
	}
	if got := w.Drain(); len(got) != 0 {
		t.Fatalf("second Drain = %q, want empty", got)
	}
	if w.Len() != 0 {
		t.Fatalf("Len after Drain = %d, want 0", w.Len())
	}

	w.Push([]byte("reuse"))
	if got := w.Drain(); string(got) != "reuse" {
		t.Fatalf("Drain after reuse = %q", got)
	}
}

func TestReadBufferPastEnd(t *testing.T) {
	r := NewReadBuffer([]byte{1, 2})

	if _, err := r.ReadN(3); !errspkg.IsKind(err, errspkg.KindEndOfStream) {
		t.Errorf("ReadN err = %v, want end of stream", err)
	}

	if _, err := r.ReadN(2); err != nil {
		t.Fatalf("ReadN(2): %v", err)
	}
	if _, err := r.ReadByte(); !errspkg.IsKind(err, errspkg.KindEndOfStream) {
		t.Errorf("ReadByte at EOF err = %v, want end of stream", err)
	}
}

func TestReadBufferLenBytesShort(t *testing.T) {
	// length prefix says 5, only 2 bytes follow
	r := NewReadBuffer([]byte{0x05, 'a', 'b'})
	if _, err := r.ReadLenBytes(); !errspkg.IsKind(err, errspkg.KindEndOfStream) {
		t.Errorf("err = %v, want end of stream", err)
	}
}

func TestReadBufferSpan(t *testing.T) {
	r := NewReadBuffer([]byte("topicpayload"))
	if _, err := r.ReadN(5); err != nil {
		t.Fatal(err)
	}
	mark := r.Pos()
	if _, err := r.ReadN(7); err != nil {
		t.Fatal(err)
	}
	if got := r.Span(mark); string(got) != "payload" {
		t.Errorf("Span = %q, want %q", got, "payload")
	}
	if got := r.Span(0); string(got) != "topicpayload" {
		t.Errorf("Span(0) = %q", got)
	}
	if got := r.Span(r.Pos() + 1); got != nil {
		t.Errorf("Span past cursor = %x, want nil", got)
	}
}
