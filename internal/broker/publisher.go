package broker

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

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

// HeaderMessageID carries the message identifier. Publish stamps a ULID when
// the caller does not provide one.
const HeaderMessageID = "messageId"

// HeaderEventSchema records the Go type name of payloads published through
// PublishProto.
const HeaderEventSchema = "eventSchema"

var tracer = otel.Tracer("courier-broker-tracer")

var protoJSONMarshalOptions = protojson.MarshalOptions{
	EmitUnpopulated: true,
}

// Publisher is the producer-side client: one dialed connection that signs,
// frames, and ships messages to a broker. Safe for concurrent use.
type Publisher struct {
	cfg    config.Config
	sock   *socket.Socket
	logger logging.ServiceLogger

	mu     sync.Mutex
	closed bool
	err    error
}

// NewPublisher dials target and returns a connected publisher.
func NewPublisher(ctx context.Context, target *address.Address, cfg config.Config, logger logging.ServiceLogger) (*Publisher, error) {
	if err := config.ValidateConfig(&cfg); err != nil {
		return nil, errspkg.Wrap(errspkg.KindInvalidArgument, "broker.NewPublisher", err)
	}
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = logging.Nop()
	}

	sock, err := socket.Dial(ctx, target, socket.SettingsFromConfig(cfg), logger)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		cfg:    cfg,
		sock:   sock,
		logger: logger.With(logging.LogFields{"component": "publisher"}),
	}
	// Write failures surface asynchronously on the connection; keep the
	// first one so Flush callers can tell a drained queue from a dropped one.
	if err := sock.On(socket.EventError, func(ev *event.Event) error {
		if connErr, ok := ev.Payload().(error); ok {
			p.mu.Lock()
			if p.err == nil {
				p.err = connErr
			}
			p.mu.Unlock()
		}
		return nil
	}); err != nil {
		sock.Dispose()
		return nil, err
	}
	return p, nil
}

// Publish signs and sends one message to topic. Headers are copied before
// stamping, so the caller's map is never mutated. A false backpressure
// verdict from the socket is not an error; the frame is queued and flushed
// in order.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any, headers map[string]any) error {
	if topic == "" {
		return errspkg.New(errspkg.KindInvalidArgument, "broker.Publish", "topic is required")
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errspkg.New(errspkg.KindResourceDisposed, "broker.Publish", "publisher is closed")
	}
	p.mu.Unlock()

	merged := make(map[string]any, len(headers)+1)
	for k, v := range headers {
		merged[k] = v
	}
	id, ok := merged[HeaderMessageID].(string)
	if !ok || id == "" {
		id = ids.NewID()
		merged[HeaderMessageID] = id
	}

	_, span := tracer.Start(ctx, "PublishMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("message.uuid", id),
		attribute.String("message.topic", topic),
	)

	frame, err := envelope.Create(topic, payload, envelope.Options{
		Headers:       merged,
		EncryptionKey: p.cfg.EncryptionKey,
		Salt:          p.cfg.Salt,
		SignAlgorithm: p.cfg.SignAlgorithm,
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	flushed, err := p.sock.Write(EncodeFrame(frame))
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !flushed {
		p.logger.Debug("publish queued behind backpressure", logging.LogFields{"topic": topic})
	}
	metrics.RecordPublish(topic, len(frame))
	p.logger.Debug("message published", logging.LogFields{
		"topic":     topic,
		"messageId": id,
		"bytes":     len(frame),
	})
	return nil
}

// PublishProto marshals event through protojson and publishes the JSON bytes
// as the payload. The eventSchema header is stamped with the concrete Go
// type so consumers can pick their unmarshal target.
func (p *Publisher) PublishProto(ctx context.Context, topic string, event proto.Message, headers map[string]any) error {
	if event == nil {
		return errspkg.New(errspkg.KindInvalidArgument, "broker.PublishProto", "event payload is required")
	}
	payload, err := protoJSONMarshalOptions.Marshal(event)
	if err != nil {
		return errspkg.Normalize("broker.PublishProto", err)
	}
	merged := make(map[string]any, len(headers)+1)
	for k, v := range headers {
		merged[k] = v
	}
	merged[HeaderEventSchema] = fmt.Sprintf("%T", event)
	return p.Publish(ctx, topic, payload, merged)
}

// Flush blocks until every queued frame has been handed to the network or
// ctx ends. Close drops whatever is still queued, so one-shot producers
// should flush before closing.
func (p *Publisher) Flush(ctx context.Context) error {
	return p.sock.Drain(ctx)
}

// Err surfaces the connection's first recorded failure: a write or read
// error, or the cancellation error unless suppressed. Nil while healthy.
func (p *Publisher) Err() error {
	p.mu.Lock()
	recorded := p.err
	p.mu.Unlock()
	if recorded != nil {
		return recorded
	}
	return p.sock.Err()
}

// Close tears the connection down. Idempotent.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.sock.Dispose()
	return nil
}
