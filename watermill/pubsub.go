// Package watermill adapts courier's broker clients to the watermill
// message.Publisher and message.Subscriber contracts, and maps courier's
// ServiceLogger to watermill's LoggerAdapter in both directions.
package watermill

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/couriermq/courier/internal/address"
	"github.com/couriermq/courier/internal/broker"
	"github.com/couriermq/courier/internal/config"
	errspkg "github.com/couriermq/courier/internal/errors"
	"github.com/couriermq/courier/internal/ids"
	"github.com/couriermq/courier/internal/jsoncodec"
	"github.com/couriermq/courier/internal/logging"
)

// closeFlushTimeout bounds how long Close waits for queued frames to reach
// the network.
const closeFlushTimeout = 5 * time.Second

// Publisher implements message.Publisher over one dialed courier connection.
type Publisher struct {
	pub    *broker.Publisher
	logger logging.ServiceLogger
}

// NewPublisher dials target and returns a watermill-compatible publisher.
func NewPublisher(ctx context.Context, target *address.Address, cfg config.Config, logger logging.ServiceLogger) (*Publisher, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	pub, err := broker.NewPublisher(ctx, target, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		pub:    pub,
		logger: logger.With(logging.LogFields{"component": "watermill-publisher"}),
	}, nil
}

// Publish sends each message to topic in order. The watermill UUID rides in
// the messageId header and metadata entries become string headers.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		headers := make(map[string]any, len(msg.Metadata)+1)
		for k, v := range msg.Metadata {
			headers[k] = v
		}
		if msg.UUID != "" {
			headers[broker.HeaderMessageID] = msg.UUID
		}
		if err := p.pub.Publish(msg.Context(), topic, []byte(msg.Payload), headers); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes queued frames and tears the connection down. The flush is
// bounded so a dead broker cannot hang shutdown.
func (p *Publisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeFlushTimeout)
	defer cancel()
	if err := p.pub.Flush(ctx); err != nil {
		p.logger.Debug("flush before close interrupted", logging.LogFields{"error": err.Error()})
	}
	return p.pub.Close()
}

// Subscriber implements message.Subscriber over one dialed courier
// connection. Each topic supports one active subscription; deliveries go
// out one at a time and the next waits for the previous ack or nack, which
// backpressures the connection's read loop.
type Subscriber struct {
	con    *broker.Consumer
	logger logging.ServiceLogger

	mu      sync.Mutex
	active  map[string]bool
	closing chan struct{}
	closed  bool
}

// NewSubscriber dials target and returns a watermill-compatible subscriber
// with no subscriptions.
func NewSubscriber(ctx context.Context, target *address.Address, cfg config.Config, logger logging.ServiceLogger) (*Subscriber, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	con, err := broker.NewConsumer(ctx, target, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Subscriber{
		con:     con,
		logger:  logger.With(logging.LogFields{"component": "watermill-subscriber"}),
		active:  make(map[string]bool),
		closing: make(chan struct{}),
	}, nil
}

// Subscribe starts routing topic to the returned channel until ctx is
// cancelled or the subscriber closes, either of which closes the channel.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errspkg.New(errspkg.KindResourceDisposed, "watermill.Subscribe", "subscriber is closed")
	}
	if s.active[topic] {
		s.mu.Unlock()
		return nil, errspkg.New(errspkg.KindInvalidArgument, "watermill.Subscribe", "topic %q already has an active subscription", topic)
	}
	s.active[topic] = true
	s.mu.Unlock()

	in := make(chan *message.Message)
	out := make(chan *message.Message)

	if err := s.con.Subscribe(topic, func(d broker.Delivery) error {
		msg, err := toMessage(d)
		if err != nil {
			s.logger.Error("dropping unconvertible delivery", err, logging.LogFields{"topic": topic})
			return err
		}
		select {
		case in <- msg:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closing:
			return nil
		}
	}); err != nil {
		s.release(topic)
		return nil, err
	}

	go s.pump(ctx, topic, in, out)
	return out, nil
}

// pump owns out: it forwards deliveries one at a time and closes the
// channel on shutdown. The delivery handler only ever sends to in, so a
// closing channel can never race a sender.
func (s *Subscriber) pump(ctx context.Context, topic string, in, out chan *message.Message) {
	defer func() {
		s.release(topic)
		if err := s.con.Unsubscribe(topic); err != nil && !errspkg.IsKind(err, errspkg.KindResourceDisposed) {
			s.logger.Error("unsubscribe failed", err, logging.LogFields{"topic": topic})
		}
		close(out)
	}()

	for {
		var msg *message.Message
		select {
		case msg = <-in:
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		}

		select {
		case <-msg.Acked():
		case <-msg.Nacked():
			s.logger.Info("message nacked", logging.LogFields{"uuid": msg.UUID, "topic": topic})
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		}
	}
}

func (s *Subscriber) release(topic string) {
	s.mu.Lock()
	delete(s.active, topic)
	s.mu.Unlock()
}

// Close tears down the connection and closes every subscription channel.
// Idempotent.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.closing)
	return s.con.Close()
}

// toMessage converts one courier delivery to a watermill message. Byte and
// string payloads pass through; anything else is JSON-encoded. Headers
// become metadata, stringified where needed, except messageId which becomes
// the UUID.
func toMessage(d broker.Delivery) (*message.Message, error) {
	payload, err := payloadBytes(d.Payload)
	if err != nil {
		return nil, err
	}
	uuid, _ := d.Headers[broker.HeaderMessageID].(string)
	if uuid == "" {
		uuid = ids.NewID()
	}
	msg := message.NewMessage(uuid, payload)
	for k, v := range d.Headers {
		if k == broker.HeaderMessageID {
			continue
		}
		if sv, ok := v.(string); ok {
			msg.Metadata.Set(k, sv)
		} else {
			msg.Metadata.Set(k, fmt.Sprint(v))
		}
	}
	return msg, nil
}

func payloadBytes(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		return jsoncodec.Marshal(p)
	}
}
