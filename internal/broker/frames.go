// Package broker provides the client and server roles built on the socket
// transport: Publisher and Consumer dial a Broker, which fans published
// envelope frames out to topic subscribers and can ingest the same frames
// over the webhook endpoint.
package broker

import (
	"sync"

	"github.com/couriermq/courier/internal/config"
	errspkg "github.com/couriermq/courier/internal/errors"
	"github.com/couriermq/courier/internal/wire"
)

// EncodeFrame prefixes frame with its varint length. Envelope frames carry
// no outer length themselves, so the stream leg adds one to restore message
// boundaries on top of TCP. The webhook leg posts bare frames; only socket
// traffic is prefixed.
func EncodeFrame(frame []byte) []byte {
	w := wire.NewWriteBuffer()
	w.PushUvarint(uint64(len(frame)))
	w.Push(frame)
	return w.Drain()
}

// FrameScanner reassembles length-prefixed frames from arbitrary stream
// chunks. One scanner serves one connection; the mutex covers the handoff
// between the connection's read loop and teardown.
type FrameScanner struct {
	mu  sync.Mutex
	buf []byte
	max int
}

// NewFrameScanner builds a scanner that rejects frames larger than maxFrame.
// A non-positive maxFrame falls back to the configured default.
func NewFrameScanner(maxFrame int) *FrameScanner {
	if maxFrame <= 0 {
		maxFrame = config.DefaultMaxMessageSize
	}
	return &FrameScanner{max: maxFrame}
}

// Feed appends chunk and returns every frame completed by it, in order. A
// length prefix above the maximum poisons the stream: there is no way to
// resynchronize mid-stream, so the caller should close the connection. Any
// frames completed before the poison point are still returned.
func (f *FrameScanner) Feed(chunk []byte) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf = append(f.buf, chunk...)

	var frames [][]byte
	for {
		r := wire.NewReadBuffer(f.buf)
		length, err := r.ReadUvarint()
		if err != nil {
			if errspkg.IsKind(err, errspkg.KindEndOfStream) {
				break
			}
			return frames, err
		}
		if length > uint64(f.max) {
			return frames, errspkg.New(errspkg.KindInvalidArgument, "broker.FrameScanner",
				"frame length %d exceeds the %d byte maximum", length, f.max)
		}
		if uint64(r.Remaining()) < length {
			break
		}
		n := int(length)
		frame := make([]byte, n)
		copy(frame, f.buf[r.Pos():r.Pos()+n])
		f.buf = f.buf[r.Pos()+n:]
		frames = append(frames, frame)
	}
	return frames, nil
}

// Pending returns the number of buffered bytes awaiting frame completion.
func (f *FrameScanner) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf)
}
