package broker

import (
	"context"
	"sync"
	"time"

	"github.com/couriermq/courier/internal/address"
	"github.com/couriermq/courier/internal/config"
	"github.com/couriermq/courier/internal/envelope"
	errspkg "github.com/couriermq/courier/internal/errors"
	"github.com/couriermq/courier/internal/event"
	"github.com/couriermq/courier/internal/ids"
	"github.com/couriermq/courier/internal/logging"
	"github.com/couriermq/courier/internal/metrics"
	"github.com/couriermq/courier/internal/socket"
)

// Control topics reserved for subscription management. Frames addressed to
// them steer broker routing instead of reaching subscribers.
const (
	SubscribeTopic   = "$courier/subscribe"
	UnsubscribeTopic = "$courier/unsubscribe"
)

// EventError is emitted with a normalized error payload when a frame cannot
// be decoded or the stream is poisoned.
const EventError = "error"

// Delivery is one message handed to a topic handler.
type Delivery struct {
	Topic   string
	Headers map[string]any
	Payload any
}

// DeliveryHandler consumes one delivery. Handlers run on the connection's
// read loop, so a slow handler delays later deliveries on the same
// connection.
type DeliveryHandler func(Delivery) error

// Consumer is the subscriber-side client: one dialed connection that
// reassembles frames, verifies envelopes, and dispatches deliveries by
// topic.
type Consumer struct {
	cfg     config.Config
	sock    *socket.Socket
	scanner *FrameScanner
	events  *event.Emitter
	logger  logging.ServiceLogger

	mu       sync.Mutex
	closed   bool
	handlers map[string][]event.Handler
}

// NewConsumer dials target and returns a connected consumer with no
// subscriptions.
func NewConsumer(ctx context.Context, target *address.Address, cfg config.Config, logger logging.ServiceLogger) (*Consumer, error) {
	if err := config.ValidateConfig(&cfg); err != nil {
		return nil, errspkg.Wrap(errspkg.KindInvalidArgument, "broker.NewConsumer", err)
	}
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = logging.Nop()
	}

	sock, err := socket.Dial(ctx, target, socket.SettingsFromConfig(cfg), logger)
	if err != nil {
		return nil, err
	}
	c := &Consumer{
		cfg:      cfg,
		sock:     sock,
		scanner:  NewFrameScanner(cfg.MaxMessageSize),
		events:   event.NewEmitter(),
		logger:   logger.With(logging.LogFields{"component": "consumer"}),
		handlers: make(map[string][]event.Handler),
	}
	if err := sock.On(socket.EventData, c.onData); err != nil {
		sock.Dispose()
		return nil, err
	}
	return c, nil
}

// Subscribe registers handler for topic. The first handler on a topic sends
// the subscribe control frame; further handlers share the subscription.
func (c *Consumer) Subscribe(topic string, handler DeliveryHandler) error {
	if topic == "" || handler == nil {
		return errspkg.New(errspkg.KindInvalidArgument, "broker.Subscribe", "topic and handler are required")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errspkg.New(errspkg.KindResourceDisposed, "broker.Subscribe", "consumer is closed")
	}
	c.mu.Unlock()

	wrapped := func(ev *event.Event) error {
		delivery, ok := ev.Payload().(Delivery)
		if !ok {
			return nil
		}
		return handler(delivery)
	}
	if err := c.events.On(topic, wrapped); err != nil {
		return err
	}

	c.mu.Lock()
	c.handlers[topic] = append(c.handlers[topic], wrapped)
	first := len(c.handlers[topic]) == 1
	c.mu.Unlock()

	if !first {
		return nil
	}
	return c.sendControl(SubscribeTopic, topic)
}

// Unsubscribe removes every handler for topic and tells the broker to stop
// routing it to this connection. A topic with no handlers is a no-op.
func (c *Consumer) Unsubscribe(topic string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errspkg.New(errspkg.KindResourceDisposed, "broker.Unsubscribe", "consumer is closed")
	}
	wrapped := c.handlers[topic]
	delete(c.handlers, topic)
	c.mu.Unlock()

	if len(wrapped) == 0 {
		return nil
	}
	for _, fn := range wrapped {
		if err := c.events.Off(topic, fn); err != nil {
			return err
		}
	}
	return c.sendControl(UnsubscribeTopic, topic)
}

// OnError registers a handler for decode and stream failures. The event
// payload is the normalized error.
func (c *Consumer) OnError(fn event.Handler) error {
	return c.events.On(EventError, fn)
}

// Err surfaces the connection's terminal error, if any.
func (c *Consumer) Err() error { return c.sock.Err() }

func (c *Consumer) sendControl(control, topic string) error {
	frame, err := envelope.Create(control, topic, envelope.Options{
		EncryptionKey: c.cfg.EncryptionKey,
		Salt:          c.cfg.Salt,
		SignAlgorithm: c.cfg.SignAlgorithm,
	})
	if err != nil {
		return err
	}
	_, err = c.sock.Write(EncodeFrame(frame))
	return err
}

func (c *Consumer) onData(ev *event.Event) error {
	chunk, ok := ev.Payload().([]byte)
	if !ok {
		return nil
	}
	frames, err := c.scanner.Feed(chunk)
	for _, frame := range frames {
		c.dispatch(frame)
	}
	if err != nil {
		// No way to find the next frame boundary after a bad length
		// prefix, so the connection is done.
		c.logger.Error("stream poisoned, closing connection", err, nil)
		c.events.EmitTo(EventError, err, c)
		c.sock.Close()
	}
	return err
}

func (c *Consumer) dispatch(frame []byte) {
	msg, err := envelope.Parse(frame, envelope.Options{
		EncryptionKey: c.cfg.EncryptionKey,
		Salt:          c.cfg.Salt,
	})
	if err != nil {
		normalized := errspkg.Normalize("broker.consume", err)
		c.logger.Error("dropping undecodable frame", normalized, nil)
		c.events.EmitTo(EventError, normalized, c)
		return
	}

	metrics.RecordConsume(msg.Topic)
	c.traceLatency(msg)
	delivery := Delivery{Topic: msg.Topic, Headers: msg.Headers, Payload: msg.Payload}
	if !c.events.EmitTo(msg.Topic, delivery, c) {
		c.logger.Debug("delivery without handler", logging.LogFields{"topic": msg.Topic})
	}
}

// traceLatency logs the publish-to-dispatch latency recovered from the
// messageId ULID. Messages without a parsable id are skipped.
func (c *Consumer) traceLatency(msg *envelope.Message) {
	id, ok := msg.Headers[HeaderMessageID].(string)
	if !ok {
		return
	}
	sent, err := ids.Timestamp(id)
	if err != nil {
		return
	}
	c.logger.Trace("delivery latency", logging.LogFields{
		"topic":   msg.Topic,
		"latency": time.Since(sent).String(),
	})
}

// Close tears the connection down and releases all handlers. Idempotent.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handlers = nil
	c.mu.Unlock()

	c.sock.Dispose()
	c.events.Dispose()
	return nil
}
