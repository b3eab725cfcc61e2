// Package courier is a lightweight message broker and the transport it
// rides on: a tagged binary serialization, a signed and optionally
// encrypted message envelope, a cancellable TCP socket layer with masking
// and backpressure reporting, and an HTTP webhook endpoint that feeds the
// same topic routing as socket producers.
//
// The root package re-exports the pieces most applications need. A broker
// is one call, and clients dial it by address:
//
//	b, err := courier.NewBroker(ctx, courier.Config{Port: 4150}, logger)
//	pub, err := courier.NewPublisher(ctx, b.Addr(), cfg, logger)
//	con, err := courier.NewConsumer(ctx, b.Addr(), cfg, logger)
//	con.Subscribe("orders", func(d courier.Delivery) error { ... })
//	pub.Publish(ctx, "orders", payload, nil)
//
// # Wire format
//
// Values serialize to tagged fields: a one-byte tag, a base-128 varint
// length where the tag needs one, and the body. Strings, byte slices,
// integers, floats, booleans, nulls, arrays, and string-keyed objects all
// round-trip; custom types can participate through the reviver registry.
// wire.WriteBuffer and wire.ReadBuffer are the low-level surfaces, both
// re-exported here.
//
// # Envelope
//
// CreateFrame seals topic, headers, and payload into one frame: the
// payload is serialized, optionally AES-256-CBC encrypted with a key
// derived from the configured secret and salt, and signed (sha512 by
// default; see Algorithms). ParseFrame verifies and unpacks a frame and
// reports tampering as an invalid-signature error.
//
// # Sockets
//
// Dial and NewServer provide the TCP legs. A socket masks outbound bytes
// with the configured XOR mask, unmasks inbound chunks, reports
// backpressure through Write's flushed return, and surfaces lifecycle as
// events (data, flushing, close, error). Cancelling the construction
// context tears a socket or server down; Config.SuppressCancellationError
// keeps that teardown quiet.
//
// # Broker
//
// NewBroker fans published frames out to topic subscribers over
// length-prefixed socket frames. Publisher stamps ULID message ids and
// traces each publish; Consumer verifies envelopes and dispatches typed
// deliveries. With WebhookEnabled the broker also accepts bare envelope
// frames POSTed to /webhook and routes them identically, and with
// MetricsEnabled it exposes Prometheus metrics.
//
// # Watermill bridge
//
// The watermill subpackage adapts a courier connection to watermill's
// message.Publisher and message.Subscriber so courier can back a watermill
// router, and maps ServiceLogger to watermill's LoggerAdapter in both
// directions.
package courier
