package wire

import (
	errspkg "github.com/couriermq/courier/internal/errors"
)

// WriteBuffer accumulates encoded output as an ordered list of chunks and
// concatenates them lazily on Drain.
type WriteBuffer struct {
	chunks [][]byte
	size   int
}

// NewWriteBuffer returns an empty write buffer.
func NewWriteBuffer() *WriteBuffer {
	return &WriteBuffer{}
}

// Push appends one chunk. The buffer keeps a reference to chunk; the caller
// must not modify it afterwards.
func (w *WriteBuffer) Push(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	w.chunks = append(w.chunks, chunk)
	w.size += len(chunk)
}

// PushByte appends a single byte.
func (w *WriteBuffer) PushByte(b byte) {
	w.Push([]byte{b})
}

// PushUvarint appends v in base-128 varint form: seven data bits per byte,
// little-endian, high bit set on every byte but the last. Zero encodes as a
// single 0x00 byte.
func (w *WriteBuffer) PushUvarint(v uint64) {
	buf := make([]byte, 0, 10)
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	buf = append(buf, byte(v))
	w.Push(buf)
}

// Len returns the total number of buffered bytes.
func (w *WriteBuffer) Len() int {
	return w.size
}

// Drain concatenates every pushed chunk, resets the buffer to empty, and
// returns the result. Draining twice yields the bytes only once; the second
// call returns an empty slice.
func (w *WriteBuffer) Drain() []byte {
	out := make([]byte, 0, w.size)
	for _, c := range w.chunks {
		out = append(out, c...)
	}
	w.chunks = nil
	w.size = 0
	return out
}

// ReadBuffer reads from an immutable byte slice behind a monotonically
// advancing cursor. Reads past the end fail with an end-of-stream error and
// never wrap or reset.
type ReadBuffer struct {
	buf []byte
	pos int
}

// NewReadBuffer returns a read buffer over buf. The buffer keeps a reference
// to buf; the caller must not modify it while reading.
func NewReadBuffer(buf []byte) *ReadBuffer {
	return &ReadBuffer{buf: buf}
}

// Pos returns the current cursor offset.
func (r *ReadBuffer) Pos() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *ReadBuffer) Remaining() int {
	return len(r.buf) - r.pos
}

// EOF reports whether the cursor has consumed every byte.
func (r *ReadBuffer) EOF() bool {
	return r.pos >= len(r.buf)
}

// Span returns the bytes between a previously captured offset and the current
// cursor. The slice references the backing buffer.
func (r *ReadBuffer) Span(from int) []byte {
	if from < 0 || from > r.pos {
		return nil
	}
	return r.buf[from:r.pos]
}

// ReadByte reads one byte.
func (r *ReadBuffer) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, errspkg.New(errspkg.KindEndOfStream, "wire.ReadByte", "read past end at offset %d", r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// ReadN reads exactly n bytes. The returned slice references the backing
// buffer; callers that retain it must copy.
func (r *ReadBuffer) ReadN(n int) ([]byte, error) {
	if n < 0 {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "wire.ReadN", "negative length %d", n)
	}
	if r.pos+n > len(r.buf) {
		return nil, errspkg.New(errspkg.KindEndOfStream, "wire.ReadN", "need %d bytes at offset %d, have %d", n, r.pos, r.Remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadLenBytes reads a varint length prefix followed by that many bytes and
// returns a copy that is safe to retain.
func (r *ReadBuffer) ReadLenBytes() ([]byte, error) {
	length, err := r.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if length > uint64(r.Remaining()) {
		return nil, errspkg.New(errspkg.KindEndOfStream, "wire.ReadLenBytes", "length prefix %d exceeds %d remaining bytes", length, r.Remaining())
	}
	n := int(length)
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+n])
	r.pos += n
	return b, nil
}

// ReadUvarint reads a base-128 varint. A buffer that ends while the
// continuation bit is still set fails with an end-of-stream error; an
// encoding wider than 64 bits fails as unsupported.
func (r *ReadBuffer) ReadUvarint() (uint64, error) {
	var v uint64
	var shift uint

	for {
		if r.pos >= len(r.buf) {
			return 0, errspkg.New(errspkg.KindEndOfStream, "wire.ReadUvarint", "truncated varint at offset %d", r.pos)
		}
		b := r.buf[r.pos]
		r.pos++
		v |= uint64(b&0x7F) << shift
		if b < 0x80 {
			return v, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, errspkg.New(errspkg.KindUnsupported, "wire.ReadUvarint", "varint exceeds 64 bits")
		}
	}
}
