// Package webhook ingests envelope frames over HTTP. A single POST endpoint
// accepts the raw frame bytes as the request body, unmasks them with the
// configured transport mask, parses the envelope, and re-emits the result as
// events, so HTTP producers and socket producers feed the same consumers.
package webhook

import (
	"context"
	"errors"
	"io"
	"net"
	nethttp "net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/couriermq/courier/internal/address"
	"github.com/couriermq/courier/internal/config"
	"github.com/couriermq/courier/internal/envelope"
	errspkg "github.com/couriermq/courier/internal/errors"
	"github.com/couriermq/courier/internal/event"
	"github.com/couriermq/courier/internal/logging"
	"github.com/couriermq/courier/internal/metrics"
	"github.com/couriermq/courier/internal/socket"
)

// DefaultPath is the only path that accepts messages. Requests to any other
// path are answered with 418 so misconfigured producers fail loudly instead
// of looking like a missing route.
const DefaultPath = "/webhook"

// Event names emitted by an Endpoint.
const (
	EventRawMessage = "raw-message"
	EventMessage    = "message"
	EventError      = "error"
	EventListening  = "listening"
	EventClose      = "close"
)

// frameMinBytes is the smallest body that can hold the envelope field set.
const frameMinBytes = 4

var tracer = otel.Tracer("courier-webhook-tracer")

// State is the lifecycle position of an Endpoint.
type State int

const (
	StatePaused State = iota
	StateListening
	StateClosed
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StatePaused:
		return "paused"
	case StateListening:
		return "listening"
	case StateClosed:
		return "closed"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Endpoint is one webhook ingestion server. Construct it with NewEndpoint;
// the zero value is not usable.
type Endpoint struct {
	cfg    config.Config
	events *event.Emitter
	logger logging.ServiceLogger
	router nethttp.Handler

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	listener net.Listener
	server   *nethttp.Server
	err      error
}

// NewEndpoint validates cfg and constructs the endpoint. Unless cfg.Lazy is
// set it also binds and starts serving before returning. The endpoint serves
// on cfg.Host:cfg.WebhookPort; port 0 asks the operating system for an
// ephemeral port, surfaced through Addr.
func NewEndpoint(ctx context.Context, cfg config.Config, logger logging.ServiceLogger) (*Endpoint, error) {
	if err := config.ValidateConfig(&cfg); err != nil {
		return nil, errspkg.Wrap(errspkg.KindInvalidArgument, "webhook.NewEndpoint", err)
	}
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = logging.Nop()
	}

	ctx, cancel := context.WithCancel(ctx)
	e := &Endpoint{
		cfg:    cfg,
		events: event.NewEmitter(),
		logger: logger.With(logging.LogFields{"component": "webhook"}),
		ctx:    ctx,
		cancel: cancel,
		state:  StatePaused,
	}
	e.router = newRouter(e)

	go e.watchCancellation()

	if !cfg.Lazy {
		if err := e.Listen(); err != nil {
			e.cancel()
			return nil, err
		}
	}
	return e, nil
}

func newRouter(e *Endpoint) nethttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/*", nethttp.HandlerFunc(e.handle))
	return r
}

// Listen binds the HTTP listener and starts serving. It is idempotent while
// listening. A configured ConnectionTimeout bounds the bind; if the deadline
// wins, the endpoint is disposed and a timeout error is returned.
func (e *Endpoint) Listen() error {
	e.mu.Lock()
	if e.state == StateDisposed {
		e.mu.Unlock()
		return errspkg.New(errspkg.KindResourceDisposed, "webhook.Listen", "endpoint is disposed")
	}
	if e.state == StateListening {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	bindCtx := e.ctx
	if timeout := e.cfg.ConnectionTimeout; timeout > 0 {
		var cancelBind context.CancelFunc
		bindCtx, cancelBind = context.WithTimeout(bindCtx, timeout)
		defer cancelBind()
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(bindCtx, "tcp", net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.WebhookPort)))
	if err != nil {
		err = listenError(err)
		if errspkg.IsKind(err, errspkg.KindTimeout) {
			e.Dispose()
		}
		return err
	}

	e.mu.Lock()
	if e.state == StateDisposed {
		e.mu.Unlock()
		ln.Close()
		return errspkg.New(errspkg.KindResourceDisposed, "webhook.Listen", "endpoint is disposed")
	}
	srv := &nethttp.Server{Handler: e.router}
	e.listener = ln
	e.server = srv
	e.state = StateListening
	e.mu.Unlock()

	e.logger.Info("webhook listening", logging.LogFields{"address": ln.Addr().String()})
	go e.serve(srv, ln)
	e.events.EmitTo(EventListening, nil, e)
	return nil
}

func listenError(err error) error {
	if errors.Is(err, context.Canceled) {
		return errspkg.Wrap(errspkg.KindCancelled, "webhook.Listen", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errspkg.Wrap(errspkg.KindTimeout, "webhook.Listen", err)
	}
	return errspkg.Normalize("webhook.Listen", err)
}

func (e *Endpoint) serve(srv *nethttp.Server, ln net.Listener) {
	err := srv.Serve(ln)
	if err == nil || errors.Is(err, nethttp.ErrServerClosed) {
		return
	}

	e.mu.Lock()
	terminal := e.state >= StateClosed
	normalized := errspkg.Normalize("webhook.serve", err)
	if !terminal && e.err == nil {
		e.err = normalized
	}
	e.mu.Unlock()

	if terminal {
		return
	}
	e.logger.Error("webhook server failed", normalized, nil)
	e.events.EmitTo(EventError, normalized, e)
}

// State reports the current lifecycle position.
func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Listening reports whether the endpoint currently accepts requests.
func (e *Endpoint) Listening() bool {
	return e.State() == StateListening
}

// Addr reports the bound address, or nil before a successful Listen. With
// WebhookPort 0 this is how callers learn the ephemeral port.
func (e *Endpoint) Addr() *address.Address {
	e.mu.Lock()
	ln := e.listener
	e.mu.Unlock()
	if ln == nil {
		return nil
	}
	bound, err := address.FromNetAddr(ln.Addr())
	if err != nil {
		return nil
	}
	return bound
}

// Err reports the first fatal endpoint error, if any.
func (e *Endpoint) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// On subscribes handler to the named event.
func (e *Endpoint) On(name string, handler event.Handler) error {
	return e.events.On(name, handler)
}

// Once subscribes handler for a single dispatch of the named event.
func (e *Endpoint) Once(name string, handler event.Handler) error {
	return e.events.Once(name, handler)
}

// Off removes a previously subscribed handler.
func (e *Endpoint) Off(name string, handler event.Handler) error {
	return e.events.Off(name, handler)
}

func (e *Endpoint) handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	started := time.Now()
	status := e.process(w, r)
	metrics.RecordWebhookRequest(r.Method, status, time.Since(started))
}

// process walks the acceptance ladder in order and reports the status it
// wrote. The order is part of the contract: the paused check precedes the
// CORS headers, which precede every other answer.
func (e *Endpoint) process(w nethttp.ResponseWriter, r *nethttp.Request) int {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	if state == StatePaused {
		w.WriteHeader(nethttp.StatusServiceUnavailable)
		return nethttp.StatusServiceUnavailable
	}

	e.setCORS(w, r)

	if state == StateDisposed {
		err := errspkg.New(errspkg.KindResourceDisposed, "webhook", "endpoint is disposed")
		e.logger.Error("request on disposed endpoint", err, nil)
		e.events.EmitTo(EventError, err, e)
		w.WriteHeader(nethttp.StatusServiceUnavailable)
		return nethttp.StatusServiceUnavailable
	}
	if r.Method == nethttp.MethodOptions {
		w.WriteHeader(nethttp.StatusNoContent)
		return nethttp.StatusNoContent
	}
	if r.Method != nethttp.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		w.WriteHeader(nethttp.StatusMethodNotAllowed)
		return nethttp.StatusMethodNotAllowed
	}
	if r.URL.Path != DefaultPath {
		w.WriteHeader(nethttp.StatusTeapot)
		return nethttp.StatusTeapot
	}
	return e.ingest(w, r)
}

func (e *Endpoint) setCORS(w nethttp.ResponseWriter, r *nethttp.Request) {
	origin := "*"
	if allowed := e.cfg.WebhookCORSAllowedOrigins; len(allowed) > 0 {
		origin = allowed[0]
		if requested := r.Header.Get("Origin"); requested != "" {
			for _, candidate := range allowed {
				if candidate == "*" || candidate == requested {
					origin = requested
					break
				}
			}
		}
		w.Header().Set("Vary", "Origin")
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

func (e *Endpoint) ingest(w nethttp.ResponseWriter, r *nethttp.Request) int {
	_, span := tracer.Start(r.Context(), "IngestMessage")
	defer span.End()

	limit := int64(e.cfg.MaxMessageSize)
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return e.reject(w, span, errspkg.Normalize("webhook.ingest", err))
	}
	socket.ApplyMask(body, e.cfg.Mask)

	if len(body) < frameMinBytes {
		w.WriteHeader(nethttp.StatusPreconditionFailed)
		return nethttp.StatusPreconditionFailed
	}
	if int64(len(body)) > limit {
		w.WriteHeader(nethttp.StatusRequestEntityTooLarge)
		return nethttp.StatusRequestEntityTooLarge
	}
	span.SetAttributes(attribute.Int("message.bytes", len(body)))

	e.events.EmitTo(EventRawMessage, body, e)

	msg, err := envelope.Parse(body, envelope.Options{
		EncryptionKey: e.cfg.EncryptionKey,
		Salt:          e.cfg.Salt,
	})
	if err != nil {
		return e.reject(w, span, errspkg.Normalize("webhook.ingest", err))
	}

	span.SetAttributes(attribute.String("message.topic", msg.Topic))
	e.events.EmitTo(EventMessage, msg, e)
	e.logger.Debug("message ingested", logging.LogFields{"topic": msg.Topic, "bytes": len(body)})
	w.WriteHeader(nethttp.StatusAccepted)
	return nethttp.StatusAccepted
}

// reject answers 422 and surfaces the failure as an error event. Parse
// failures never take the endpoint down.
func (e *Endpoint) reject(w nethttp.ResponseWriter, span trace.Span, err error) int {
	span.RecordError(err)
	e.logger.Error("message rejected", err, nil)
	e.events.EmitTo(EventError, err, e)
	w.WriteHeader(nethttp.StatusUnprocessableEntity)
	return nethttp.StatusUnprocessableEntity
}

func (e *Endpoint) watchCancellation() {
	<-e.ctx.Done()

	e.mu.Lock()
	if e.state == StateDisposed {
		e.mu.Unlock()
		return
	}
	var cancelErr error
	if !e.cfg.SuppressCancellationError {
		cancelErr = errspkg.New(errspkg.KindCancelled, "webhook", "endpoint cancelled")
		if e.err == nil {
			e.err = cancelErr
		}
	}
	e.mu.Unlock()

	if cancelErr != nil {
		e.logger.Error("webhook cancelled", cancelErr, nil)
		e.events.EmitTo(EventError, cancelErr, e)
	}
	e.Close()
	e.Dispose()
}

// Close stops serving. It is idempotent. A closed endpoint can Listen
// again; only Dispose is terminal.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.state >= StateClosed {
		e.mu.Unlock()
		return nil
	}
	e.state = StateClosed
	srv := e.server
	e.server = nil
	e.listener = nil
	e.mu.Unlock()

	var closeErr error
	if srv != nil {
		if err := srv.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			closeErr = errspkg.Normalize("webhook.Close", err)
		}
	}
	e.logger.Debug("webhook closed", nil)
	e.events.EmitTo(EventClose, nil, e)
	return closeErr
}

// Dispose closes the endpoint and makes it permanently unusable. It is
// idempotent.
func (e *Endpoint) Dispose() {
	e.Close()

	e.mu.Lock()
	if e.state == StateDisposed {
		e.mu.Unlock()
		return
	}
	e.state = StateDisposed
	e.mu.Unlock()

	e.cancel()
	e.events.Dispose()
	e.logger.Debug("webhook disposed", nil)
}
