package socket

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"

	"github.com/couriermq/courier/internal/address"
	"github.com/couriermq/courier/internal/config"
	errspkg "github.com/couriermq/courier/internal/errors"
	"github.com/couriermq/courier/internal/event"
	"github.com/couriermq/courier/internal/logging"
)

// Server accepts TCP connections, wraps each one in a Socket, and keeps them
// in a registry keyed by remote address. Accept adds, connection close
// removes, Dispose force-closes and clears. The registry is owned exclusively
// by the server.
type Server struct {
	cfg      config.Config
	settings *Settings
	events   *event.Emitter
	logger   logging.ServiceLogger
	ctx      context.Context
	cancel   context.CancelFunc

	mu        sync.Mutex
	listening bool
	closed    bool
	disposed  bool
	cancelled bool
	listener  net.Listener
	registry  map[string]*Socket
	err       error
}

// NewServer builds a server around cfg. Unless cfg.Lazy is set it binds the
// listener and starts accepting before returning. Cancelling ctx closes and
// disposes the server and everything it accepted.
func NewServer(ctx context.Context, cfg config.Config, logger logging.ServiceLogger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errspkg.Wrap(errspkg.KindInvalidArgument, "socket.NewServer", err)
	}
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = logging.Nop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	childCtx, cancel := context.WithCancel(ctx)

	srv := &Server{
		cfg:      cfg,
		settings: SettingsFromConfig(cfg),
		events:   event.NewEmitter(),
		logger:   logger.With(logging.LogFields{"component": "socket-server"}),
		ctx:      childCtx,
		cancel:   cancel,
		registry: make(map[string]*Socket),
	}

	go srv.watchCancellation()

	if !cfg.Lazy {
		if err := srv.Listen(); err != nil {
			cancel()
			return nil, err
		}
	}
	return srv, nil
}

// Listen binds the configured address and starts the accept loop. It is the
// explicit start for Lazy configs; NewServer calls it otherwise. Listening
// again after Close binds a fresh listener.
func (srv *Server) Listen() error {
	srv.mu.Lock()
	if srv.disposed {
		srv.mu.Unlock()
		return errspkg.New(errspkg.KindResourceDisposed, "socket.Listen", "server is disposed")
	}
	if srv.listening {
		srv.mu.Unlock()
		return nil
	}
	srv.mu.Unlock()

	bindCtx := srv.ctx
	if timeout := srv.settings.ConnectionTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		bindCtx, cancel = context.WithTimeout(bindCtx, timeout)
		defer cancel()
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(bindCtx, "tcp", net.JoinHostPort(srv.cfg.Host, strconv.Itoa(srv.cfg.Port)))
	if err != nil {
		return listenError(err)
	}

	srv.mu.Lock()
	if srv.disposed {
		srv.mu.Unlock()
		ln.Close()
		return errspkg.New(errspkg.KindResourceDisposed, "socket.Listen", "server is disposed")
	}
	srv.listener = ln
	srv.listening = true
	srv.closed = false
	srv.mu.Unlock()

	srv.logger.Info("listening", logging.LogFields{"addr": ln.Addr().String()})
	go srv.acceptLoop(ln)
	return nil
}

func listenError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return errspkg.Wrap(errspkg.KindCancelled, "socket.Listen", err)
	case errors.Is(err, context.DeadlineExceeded):
		return errspkg.Wrap(errspkg.KindTimeout, "socket.Listen", err)
	}
	return errspkg.Normalize("socket.Listen", err)
}

// Addr returns the bound listener address, nil before Listen succeeds. With
// Port zero this is where the ephemeral port shows up.
func (srv *Server) Addr() *address.Address {
	srv.mu.Lock()
	ln := srv.listener
	srv.mu.Unlock()
	if ln == nil {
		return nil
	}
	bound, err := address.FromNetAddr(ln.Addr())
	if err != nil {
		return nil
	}
	return bound
}

// Settings returns the open option map shared with accepted connections.
func (srv *Server) Settings() *Settings { return srv.settings }

// Listening reports whether the accept loop is running.
func (srv *Server) Listening() bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.listening
}

// ConnectionCount returns the number of registered connections.
func (srv *Server) ConnectionCount() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.registry)
}

// Err returns the terminal cancellation error recorded on this server, nil
// when it was never cancelled or cancellation errors are suppressed.
func (srv *Server) Err() error {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.err
}

// On subscribes fn to the named server event.
func (srv *Server) On(name string, fn event.Handler) error { return srv.events.On(name, fn) }

// Once subscribes fn for a single dispatch of the named server event.
func (srv *Server) Once(name string, fn event.Handler) error { return srv.events.Once(name, fn) }

// Off removes fn from the named server event.
func (srv *Server) Off(name string, fn event.Handler) error { return srv.events.Off(name, fn) }

func (srv *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			normalized := errspkg.Normalize("socket.accept", err)
			srv.logger.Error("accept failed", normalized, nil)
			srv.events.EmitTo(EventError, normalized, srv)
			return
		}
		srv.handleConn(conn)
	}
}

func (srv *Server) handleConn(conn net.Conn) {
	srv.mu.Lock()
	cancelled := srv.cancelled || srv.disposed
	full := len(srv.registry) >= srv.cfg.Backlog
	srv.mu.Unlock()

	if cancelled {
		// The raw stream is terminated; the connection event still fires,
		// with no handle attached.
		conn.Close()
		srv.events.EmitTo(EventConnection, nil, srv)
		return
	}
	if full {
		srv.logger.Info("backlog full, rejecting connection", logging.LogFields{
			"remote":  conn.RemoteAddr().String(),
			"backlog": srv.cfg.Backlog,
		})
		conn.Close()
		return
	}

	sock := newSocket(srv.ctx, conn, "server", srv.settings, srv.logger)
	key := conn.RemoteAddr().String()

	srv.mu.Lock()
	if srv.registry == nil {
		srv.mu.Unlock()
		sock.Dispose()
		return
	}
	srv.registry[key] = sock
	srv.mu.Unlock()

	sock.On(EventClose, func(*event.Event) error {
		srv.remove(key)
		return nil
	})

	// Connection listeners run before the pumps start, so handlers they
	// attach are in place for the first inbound chunk.
	srv.events.EmitTo(EventConnection, sock, srv)
	sock.start()
}

func (srv *Server) remove(key string) {
	srv.mu.Lock()
	if srv.registry != nil {
		delete(srv.registry, key)
	}
	srv.mu.Unlock()
}

// SendTo writes p to the registered connection whose remote address matches
// target on the (host, port, family) triple. The boolean mirrors Write's
// flushed flag; no matching connection returns (false, nil) without raising.
func (srv *Server) SendTo(target *address.Address, p []byte) (bool, error) {
	if target == nil {
		return false, errspkg.New(errspkg.KindInvalidArgument, "socket.SendTo", "target address is required")
	}

	srv.mu.Lock()
	if srv.disposed {
		srv.mu.Unlock()
		return false, errspkg.New(errspkg.KindResourceDisposed, "socket.SendTo", "server is disposed")
	}
	conns := make([]*Socket, 0, len(srv.registry))
	for _, c := range srv.registry {
		conns = append(conns, c)
	}
	srv.mu.Unlock()

	for _, c := range conns {
		if target.Equal(c.RemoteAddress()) {
			return c.Write(p)
		}
	}
	srv.logger.Debug("no route to target", logging.LogFields{"target": target.String()})
	return false, nil
}

// watchCancellation tears the server down when its scope is cancelled.
// Dispose marks the server before releasing the scope, so a wake-up with the
// server already disposed means the cancellation was self-inflicted.
func (srv *Server) watchCancellation() {
	<-srv.ctx.Done()

	srv.mu.Lock()
	done := srv.disposed
	srv.cancelled = true
	srv.mu.Unlock()
	if done {
		return
	}

	if !srv.settings.SuppressCancellationError() {
		cancelErr := errspkg.New(errspkg.KindCancelled, "socket.Server", "server cancelled")
		srv.mu.Lock()
		srv.err = cancelErr
		srv.mu.Unlock()
		srv.logger.Error("server cancelled", cancelErr, nil)
		srv.events.EmitTo(EventError, cancelErr, srv)
	}
	srv.Close()
	srv.Dispose()
}

// Close stops the listener and emits the close event. Idempotent. Registered
// connections stay open; only Dispose force-closes them.
func (srv *Server) Close() error {
	srv.mu.Lock()
	if srv.closed || srv.disposed {
		srv.mu.Unlock()
		return nil
	}
	srv.closed = true
	srv.listening = false
	ln := srv.listener
	srv.listener = nil
	srv.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	srv.logger.Info("server closed", nil)
	srv.events.EmitTo(EventClose, nil, srv)

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return errspkg.Normalize("socket.Server.Close", err)
	}
	return nil
}

// Dispose closes the server if needed, force-closes and clears the registry,
// and releases the shared child scope. The server is unusable afterwards.
func (srv *Server) Dispose() {
	srv.Close()

	srv.mu.Lock()
	if srv.disposed {
		srv.mu.Unlock()
		return
	}
	srv.disposed = true
	conns := make([]*Socket, 0, len(srv.registry))
	for _, c := range srv.registry {
		conns = append(conns, c)
	}
	srv.registry = nil
	srv.mu.Unlock()

	for _, c := range conns {
		c.Dispose()
	}
	srv.cancel()
	srv.events.Dispose()
}
