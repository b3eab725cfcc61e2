package broker

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couriermq/courier/internal/address"
	"github.com/couriermq/courier/internal/config"
	"github.com/couriermq/courier/internal/envelope"
	errspkg "github.com/couriermq/courier/internal/errors"
	"github.com/couriermq/courier/internal/event"
	"github.com/couriermq/courier/internal/logging"
	"github.com/couriermq/courier/internal/metrics"
	"github.com/couriermq/courier/internal/socket"
	"github.com/couriermq/courier/internal/webhook"
)

// Broker accepts producer and consumer connections, verifies each published
// frame, and relays it to every connection subscribed to its topic. With
// WebhookEnabled it also ingests frames over HTTP and routes them the same
// way. Routing re-sends the original frame bytes; payloads are never
// re-serialized on the relay path.
type Broker struct {
	cfg    config.Config
	srv    *socket.Server
	hook   *webhook.Endpoint
	logger logging.ServiceLogger

	metricsServer *nethttp.Server

	mu     sync.Mutex
	subs   map[string]map[string]*socket.Socket
	closed bool
}

// NewBroker builds a broker and, unless cfg.Lazy is set, starts listening on
// the socket port and the webhook port.
func NewBroker(ctx context.Context, cfg config.Config, logger logging.ServiceLogger) (*Broker, error) {
	if err := config.ValidateConfig(&cfg); err != nil {
		return nil, errspkg.Wrap(errspkg.KindInvalidArgument, "broker.NewBroker", err)
	}
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With(logging.LogFields{"component": "broker"})
	logger.Info("creating broker", logging.LogFields{"config": cfg.String()})

	b := &Broker{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[string]map[string]*socket.Socket),
	}

	srv, err := socket.NewServer(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	b.srv = srv
	if err := srv.On(socket.EventConnection, b.onConnection); err != nil {
		srv.Dispose()
		return nil, err
	}

	if cfg.WebhookEnabled {
		hook, err := webhook.NewEndpoint(ctx, cfg, logger)
		if err != nil {
			srv.Dispose()
			return nil, err
		}
		b.hook = hook
		if err := hook.On(webhook.EventRawMessage, b.onWebhookFrame); err != nil {
			hook.Dispose()
			srv.Dispose()
			return nil, err
		}
	}

	if cfg.MetricsEnabled && cfg.MetricsPort > 0 {
		b.serveMetrics(cfg.MetricsPort)
	}
	return b, nil
}

// Listen binds any leg built lazily. Already-listening legs are no-ops.
func (b *Broker) Listen() error {
	if err := b.srv.Listen(); err != nil {
		return err
	}
	if b.hook != nil {
		return b.hook.Listen()
	}
	return nil
}

// Addr returns the socket listener's bound address, or nil before Listen.
func (b *Broker) Addr() *address.Address { return b.srv.Addr() }

// WebhookAddr returns the webhook listener's bound address, or nil when the
// webhook leg is disabled or not listening.
func (b *Broker) WebhookAddr() *address.Address {
	if b.hook == nil {
		return nil
	}
	return b.hook.Addr()
}

// ConnectionCount reports the number of live socket connections.
func (b *Broker) ConnectionCount() int { return b.srv.ConnectionCount() }

// SubscriberCount reports the number of connections subscribed to topic.
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// onConnection wires a fresh connection: a frame scanner feeding the router
// and a close handler that drops the connection's subscriptions. The server
// emits the connection event before the socket's pumps start, so both
// handlers are in place ahead of the first inbound chunk.
func (b *Broker) onConnection(ev *event.Event) error {
	sock, ok := ev.Payload().(*socket.Socket)
	if !ok || sock == nil {
		return nil
	}

	scanner := NewFrameScanner(b.cfg.MaxMessageSize)
	if err := sock.On(socket.EventData, func(dev *event.Event) error {
		chunk, ok := dev.Payload().([]byte)
		if !ok {
			return nil
		}
		frames, err := scanner.Feed(chunk)
		for _, frame := range frames {
			b.handleFrame(sock, frame)
		}
		if err != nil {
			b.logger.Error("poisoned stream, closing connection", err, logging.LogFields{"connection": sock.ID()})
			sock.Close()
		}
		return err
	}); err != nil {
		return err
	}
	return sock.On(socket.EventClose, func(*event.Event) error {
		b.dropConnection(sock)
		return nil
	})
}

// onWebhookFrame routes HTTP-ingested frames through the same path as
// socket frames. The endpoint has already answered the producer by the time
// this runs; routing failures only cost subscribers the message.
func (b *Broker) onWebhookFrame(ev *event.Event) error {
	frame, ok := ev.Payload().([]byte)
	if !ok {
		return nil
	}
	b.handleFrame(nil, frame)
	return nil
}

// handleFrame verifies one envelope frame and either updates the
// subscription table (control topics) or fans the frame out. source is nil
// for webhook-ingested frames, which cannot subscribe.
func (b *Broker) handleFrame(source *socket.Socket, frame []byte) {
	msg, err := envelope.Parse(frame, envelope.Options{
		EncryptionKey: b.cfg.EncryptionKey,
		Salt:          b.cfg.Salt,
	})
	if err != nil {
		b.logger.Error("dropping undecodable frame", errspkg.Normalize("broker.route", err), nil)
		return
	}

	switch msg.Topic {
	case SubscribeTopic:
		b.setSubscription(source, msg, true)
	case UnsubscribeTopic:
		b.setSubscription(source, msg, false)
	default:
		b.fanOut(msg.Topic, frame)
	}
}

func (b *Broker) setSubscription(source *socket.Socket, msg *envelope.Message, on bool) {
	topic, _ := msg.Payload.(string)
	if source == nil || topic == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		return
	}
	if on {
		if b.subs[topic] == nil {
			b.subs[topic] = make(map[string]*socket.Socket)
		}
		b.subs[topic][source.ID()] = source
	} else {
		delete(b.subs[topic], source.ID())
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
	}
	b.logger.Debug("subscription updated", logging.LogFields{
		"topic":      topic,
		"connection": source.ID(),
		"subscribed": on,
	})
}

// fanOut relays an already-encoded frame to every subscriber of topic,
// including the publishing connection if it subscribed to its own topic.
func (b *Broker) fanOut(topic string, frame []byte) {
	b.mu.Lock()
	targets := make([]*socket.Socket, 0, len(b.subs[topic]))
	for _, s := range b.subs[topic] {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	if len(targets) == 0 {
		b.logger.Debug("no subscribers", logging.LogFields{"topic": topic})
		return
	}
	encoded := EncodeFrame(frame)
	for _, s := range targets {
		if _, err := s.Write(encoded); err != nil {
			b.logger.Error("fan-out write failed", err, logging.LogFields{"connection": s.ID()})
		}
	}
}

func (b *Broker) dropConnection(sock *socket.Socket) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, conns := range b.subs {
		delete(conns, sock.ID())
		if len(conns) == 0 {
			delete(b.subs, topic)
		}
	}
}

func (b *Broker) serveMetrics(port int) {
	metrics.RegisterMetrics()
	mux := nethttp.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &nethttp.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	b.metricsServer = srv
	b.logger.Info("starting metrics server", logging.LogFields{"address": srv.Addr})
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			b.logger.Error("metrics server failed", err, logging.LogFields{"address": srv.Addr})
		}
	}()
}

// Close stops accepting new work on every leg. Live socket connections stay
// open until Dispose. Idempotent.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	var errs []error
	if b.metricsServer != nil {
		if err := b.metricsServer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.hook != nil {
		if err := b.hook.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.srv.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Dispose closes the listeners, force-closes every connection, and releases
// the broker.
func (b *Broker) Dispose() {
	b.Close()
	if b.hook != nil {
		b.hook.Dispose()
	}
	b.srv.Dispose()

	b.mu.Lock()
	b.subs = nil
	b.mu.Unlock()
}
