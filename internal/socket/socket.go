// Package socket implements Courier's TCP transport: maskable, cancellable
// connections with write backpressure, and the server that accepts and
// registers them. Lifecycle is surfaced through the event primitive as data,
// flushing, close, error, and connection events.
package socket

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/couriermq/courier/internal/address"
	errspkg "github.com/couriermq/courier/internal/errors"
	"github.com/couriermq/courier/internal/event"
	"github.com/couriermq/courier/internal/ids"
	"github.com/couriermq/courier/internal/logging"
	"github.com/couriermq/courier/internal/metrics"
	"github.com/couriermq/courier/internal/wire"
)

// Lifecycle event names emitted by sockets and servers.
const (
	EventData       = "data"
	EventFlushing   = "flushing"
	EventClose      = "close"
	EventError      = "error"
	EventConnection = "connection"
)

// State tracks a connection through its lifecycle. Disposed is terminal:
// every operation on a disposed socket fails with a resource-disposed error.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateFlushing
	StateBackpressured
	StateClosed
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateFlushing:
		return "flushing"
	case StateBackpressured:
		return "backpressured"
	case StateClosed:
		return "closed"
	case StateDisposed:
		return "disposed"
	}
	return "unknown"
}

// Socket wraps one live stream connection with masking, write backpressure,
// and lifecycle events. The mutable handle stays inside this package; callers
// see a read-only accessor surface plus Write/Send/Close/Dispose.
type Socket struct {
	id       string
	role     string
	conn     net.Conn
	events   *event.Emitter
	settings *Settings
	logger   logging.ServiceLogger
	remote   *address.Address
	cancel   context.CancelFunc

	ctx context.Context

	mu      sync.Mutex
	state   State
	queue   [][]byte
	queued  int
	writing bool
	err     error
}

// Dial opens a TCP connection to target and returns the socket already in
// the Flushing state with its read pump running. The flushing event fires
// before Dial returns.
func Dial(ctx context.Context, target *address.Address, settings *Settings, logger logging.ServiceLogger) (*Socket, error) {
	if target == nil {
		return nil, errspkg.New(errspkg.KindInvalidArgument, "socket.Dial", "target address is required")
	}
	if settings == nil {
		settings = NewSettings()
	}
	if logger == nil {
		logger = logging.Nop()
	}

	dialer := net.Dialer{Timeout: settings.ConnectionTimeout()}
	conn, err := dialer.DialContext(ctx, "tcp", target.HostPort())
	if err != nil {
		return nil, dialError(err)
	}
	s := newSocket(ctx, conn, "client", settings, logger)
	s.start()
	return s, nil
}

func dialError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return errspkg.Wrap(errspkg.KindCancelled, "socket.Dial", err)
	case errors.Is(err, context.DeadlineExceeded):
		return errspkg.Wrap(errspkg.KindTimeout, "socket.Dial", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errspkg.Wrap(errspkg.KindTimeout, "socket.Dial", err)
	}
	return errspkg.Normalize("socket.Dial", err)
}

// newSocket wraps an established connection. Used by Dial for outbound
// connections and by the server accept loop for inbound ones. The pumps do
// not run until start, so the creator can attach listeners that will see the
// very first inbound chunk.
func newSocket(parent context.Context, conn net.Conn, role string, settings *Settings, logger logging.ServiceLogger) *Socket {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	s := &Socket{
		id:       ids.NewID(),
		role:     role,
		conn:     conn,
		events:   event.NewEmitter(),
		settings: settings,
		cancel:   cancel,
		ctx:      ctx,
		state:    StateOpen,
	}
	s.logger = logger.With(logging.LogFields{"connection": s.id, "role": role})
	if remote, err := address.FromNetAddr(conn.RemoteAddr()); err == nil {
		s.remote = remote
	}
	return s
}

// start transitions the socket to Flushing, launches the pumps, and emits
// the flushing event.
func (s *Socket) start() {
	metrics.ConnectionOpened(s.role)
	s.logger.Debug("connection open", logging.LogFields{"remote": s.conn.RemoteAddr().String()})

	s.setState(StateFlushing)
	go s.readPump()
	go s.watchCancellation(s.ctx)
	s.events.EmitTo(EventFlushing, nil, s)
}

// ID returns the connection's ULID, stamped for log correlation.
func (s *Socket) ID() string { return s.id }

// RemoteAddress returns the parsed remote endpoint, or nil when the
// underlying transport address is not an internet address.
func (s *Socket) RemoteAddress() *address.Address { return s.remote }

// Settings returns the option map consulted on every write.
func (s *Socket) Settings() *Settings { return s.settings }

// State reports the current lifecycle state.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Queued reports how many masked bytes are waiting in the write queue.
func (s *Socket) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queued
}

// Err returns the terminal cancellation error recorded on this socket, nil
// when it was never cancelled or cancellation errors are suppressed.
func (s *Socket) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// On subscribes fn to the named lifecycle event.
func (s *Socket) On(name string, fn event.Handler) error { return s.events.On(name, fn) }

// Once subscribes fn for a single dispatch of the named lifecycle event.
func (s *Socket) Once(name string, fn event.Handler) error { return s.events.Once(name, fn) }

// Off removes fn from the named lifecycle event.
func (s *Socket) Off(name string, fn event.Handler) error { return s.events.Off(name, fn) }

func (s *Socket) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

// Write masks p if a mask is configured and queues it for transmission. The
// returned flag reports whether the pending queue stayed at or below the high
// water mark; false means the connection is backpressured and a flushing
// event will fire once the queue drains.
func (s *Socket) Write(p []byte) (bool, error) {
	if len(p) == 0 {
		return true, nil
	}

	masked := make([]byte, len(p))
	copy(masked, p)
	ApplyMask(masked, s.settings.Mask())
	highWater := s.settings.HighWaterMark()

	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return false, errspkg.New(errspkg.KindResourceDisposed, "socket.Write", "connection is disposed")
	}
	s.queue = append(s.queue, masked)
	s.queued += len(masked)
	flushed := s.queued <= highWater
	if !flushed {
		s.state = StateBackpressured
	}
	if !s.writing {
		s.writing = true
		go s.writePump()
	}
	s.mu.Unlock()
	return flushed, nil
}

// Send serializes value through the wire protocol and writes the encoded
// bytes as one chunk.
func (s *Socket) Send(value any) (bool, error) {
	w := wire.NewWriteBuffer()
	if err := wire.Serialize(w, value); err != nil {
		return false, err
	}
	return s.Write(w.Drain())
}

// Drain blocks until every queued chunk has been handed to the operating
// system, the socket stops accepting writes, or ctx ends. It does not wait
// for the remote side to read anything.
func (s *Socket) Drain(ctx context.Context) error {
	for {
		s.mu.Lock()
		idle := s.queued == 0 || s.state >= StateClosed
		s.mu.Unlock()
		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			kind := errspkg.KindCancelled
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				kind = errspkg.KindTimeout
			}
			return errspkg.New(kind, "socket.Drain", "drain interrupted with %d bytes queued", s.Queued())
		case <-time.After(2 * time.Millisecond):
		}
	}
}

// writePump transmits queued chunks in order. When it drains a queue that hit
// the high water mark it re-asserts Flushing and re-emits the flushing event,
// one shot per drain.
func (s *Socket) writePump() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.writing = false
			drained := s.state == StateBackpressured
			if drained {
				s.state = StateFlushing
			}
			s.mu.Unlock()
			if drained {
				s.events.EmitTo(EventFlushing, nil, s)
			}
			return
		}
		chunk := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		_, err := s.conn.Write(chunk)

		s.mu.Lock()
		s.queued -= len(chunk)
		s.mu.Unlock()

		if err != nil {
			if s.State() < StateClosed {
				normalized := errspkg.Normalize("socket.write", err)
				s.logger.Error("write failed", normalized, nil)
				s.events.EmitTo(EventError, normalized, s)
			}
			s.mu.Lock()
			s.queue = nil
			s.queued = 0
			s.writing = false
			s.mu.Unlock()
			return
		}
		metrics.RecordSocketBytes("out", len(chunk))
	}
}

// readPump surfaces inbound chunks as data events in arrival order, unmasking
// each one when a mask is configured.
func (s *Socket) readPump() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			ApplyMask(chunk, s.settings.Mask())
			metrics.RecordSocketBytes("in", n)
			s.events.EmitTo(EventData, chunk, s)
		}
		if err != nil {
			if s.State() < StateClosed && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				normalized := errspkg.Normalize("socket.read", err)
				s.logger.Error("read failed", normalized, nil)
				s.events.EmitTo(EventError, normalized, s)
			}
			s.Close()
			return
		}
	}
}

// watchCancellation tears the socket down when its scope is cancelled. Close
// marks the state before cancelling the owned scope, so a wake-up here with
// the socket already closed means the cancellation was self-inflicted.
func (s *Socket) watchCancellation(ctx context.Context) {
	<-ctx.Done()

	s.mu.Lock()
	done := s.state == StateClosed || s.state == StateDisposed
	s.mu.Unlock()
	if done {
		return
	}

	if !s.settings.SuppressCancellationError() {
		cancelErr := errspkg.New(errspkg.KindCancelled, "socket", "connection cancelled")
		s.mu.Lock()
		s.err = cancelErr
		s.mu.Unlock()
		s.logger.Error("connection cancelled", cancelErr, nil)
		s.events.EmitTo(EventError, cancelErr, s)
	}
	s.Close()
	s.Dispose()
}

// Close shuts the connection down. It is idempotent: the first call emits the
// close event and cancels the owned scope, later calls are no-ops. Close
// alone does not hard-reject later operations; only Dispose does.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateDisposed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	s.mu.Unlock()

	err := s.conn.Close()
	metrics.ConnectionClosed(s.role)
	s.logger.Debug("connection closed", nil)
	s.events.EmitTo(EventClose, nil, s)
	s.cancel()

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return errspkg.Normalize("socket.Close", err)
	}
	return nil
}

// Dispose closes the connection if needed and makes the socket permanently
// unusable.
func (s *Socket) Dispose() {
	s.Close()

	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return
	}
	s.state = StateDisposed
	s.queue = nil
	s.queued = 0
	s.mu.Unlock()

	s.events.Dispose()
}

// ApplyMask XORs data with mask in place, cycling the mask when it is
// shorter. Masking and unmasking are the same operation. The webhook endpoint
// shares this transform so HTTP-ingested bodies and socket frames are masked
// identically.
func ApplyMask(data, mask []byte) {
	if len(mask) == 0 {
		return
	}
	for i := range data {
		data[i] ^= mask[i%len(mask)]
	}
}
