package broker

import (
	"bytes"
	"context"
	"fmt"
	nethttp "net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/couriermq/courier/internal/config"
	"github.com/couriermq/courier/internal/envelope"
	errspkg "github.com/couriermq/courier/internal/errors"
	"github.com/couriermq/courier/internal/logging"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func loopbackConfig() config.Config {
	return config.Config{Host: "127.0.0.1", Port: 0}
}

func startBroker(t *testing.T, cfg config.Config) *Broker {
	t.Helper()
	b, err := NewBroker(context.Background(), cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(b.Dispose)
	return b
}

// dialPair connects a publisher and a consumer to b's bound address, reusing
// cfg for the clients so crypto settings match the broker.
func dialPair(t *testing.T, b *Broker, cfg config.Config) (*Publisher, *Consumer) {
	t.Helper()
	target := b.Addr()
	require.NotNil(t, target)

	pub, err := NewPublisher(context.Background(), target, cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { pub.Close() })

	con, err := NewConsumer(context.Background(), target, cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { con.Close() })
	return pub, con
}

func collect(t *testing.T, c *Consumer, topic string) chan Delivery {
	t.Helper()
	ch := make(chan Delivery, 8)
	require.NoError(t, c.Subscribe(topic, func(d Delivery) error {
		ch <- d
		return nil
	}))
	return ch
}

func recv(t *testing.T, ch chan Delivery) Delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return Delivery{}
	}
}

func TestPublishDelivery(t *testing.T) {
	cfg := loopbackConfig()
	b := startBroker(t, cfg)
	pub, con := dialPair(t, b, cfg)

	deliveries := collect(t, con, "orders")
	waitFor(t, "subscription", func() bool { return b.SubscriberCount("orders") == 1 })

	require.NoError(t, pub.Publish(context.Background(), "orders", "ping", map[string]any{"kind": "test"}))

	got := recv(t, deliveries)
	assert.Equal(t, "orders", got.Topic)
	assert.Equal(t, "ping", got.Payload)
	assert.Equal(t, "test", got.Headers["kind"])
	assert.NotEmpty(t, got.Headers[HeaderMessageID])
}

func TestFanOutReachesAllSubscribers(t *testing.T) {
	cfg := loopbackConfig()
	b := startBroker(t, cfg)
	pub, first := dialPair(t, b, cfg)

	second, err := NewConsumer(context.Background(), b.Addr(), cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	chFirst := collect(t, first, "fanout")
	chSecond := collect(t, second, "fanout")
	waitFor(t, "both subscriptions", func() bool { return b.SubscriberCount("fanout") == 2 })

	require.NoError(t, pub.Publish(context.Background(), "fanout", int64(7), nil))

	assert.Equal(t, int64(7), recv(t, chFirst).Payload)
	assert.Equal(t, int64(7), recv(t, chSecond).Payload)
}

func TestTopicIsolation(t *testing.T) {
	cfg := loopbackConfig()
	b := startBroker(t, cfg)
	pub, con := dialPair(t, b, cfg)

	other := collect(t, con, "other")
	marker := collect(t, con, "marker")
	waitFor(t, "subscriptions", func() bool {
		return b.SubscriberCount("other") == 1 && b.SubscriberCount("marker") == 1
	})

	// The connection delivers in order, so once the marker arrives any
	// misrouted frame would already be in the other channel.
	require.NoError(t, pub.Publish(context.Background(), "unwatched", "lost", nil))
	require.NoError(t, pub.Publish(context.Background(), "marker", "seen", nil))

	assert.Equal(t, "seen", recv(t, marker).Payload)
	assert.Empty(t, other)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	cfg := loopbackConfig()
	b := startBroker(t, cfg)
	pub, con := dialPair(t, b, cfg)

	muted := collect(t, con, "muted")
	marker := collect(t, con, "marker")
	waitFor(t, "subscriptions", func() bool {
		return b.SubscriberCount("muted") == 1 && b.SubscriberCount("marker") == 1
	})

	require.NoError(t, con.Unsubscribe("muted"))
	waitFor(t, "unsubscribe", func() bool { return b.SubscriberCount("muted") == 0 })

	require.NoError(t, pub.Publish(context.Background(), "muted", "dropped", nil))
	require.NoError(t, pub.Publish(context.Background(), "marker", "seen", nil))

	assert.Equal(t, "seen", recv(t, marker).Payload)
	assert.Empty(t, muted)
}

func TestPublishProto(t *testing.T) {
	cfg := loopbackConfig()
	b := startBroker(t, cfg)
	pub, con := dialPair(t, b, cfg)

	deliveries := collect(t, con, "events")
	waitFor(t, "subscription", func() bool { return b.SubscriberCount("events") == 1 })

	payload := structpb.NewStringValue("hello")
	require.NoError(t, pub.PublishProto(context.Background(), "events", payload, nil))

	got := recv(t, deliveries)
	raw, ok := got.Payload.([]byte)
	require.True(t, ok, "proto payloads travel as JSON bytes")
	assert.JSONEq(t, `"hello"`, string(raw))
	assert.Equal(t, fmt.Sprintf("%T", payload), got.Headers[HeaderEventSchema])
}

func TestEncryptedEndToEnd(t *testing.T) {
	cfg := loopbackConfig()
	cfg.EncryptionKey = config.Secret("0123456789abcdef")
	cfg.Salt = config.Secret("pepper")
	b := startBroker(t, cfg)
	pub, con := dialPair(t, b, cfg)

	deliveries := collect(t, con, "sealed")
	waitFor(t, "subscription", func() bool { return b.SubscriberCount("sealed") == 1 })

	require.NoError(t, pub.Publish(context.Background(), "sealed", "secret payload", nil))
	assert.Equal(t, "secret payload", recv(t, deliveries).Payload)
}

func TestUndecodableFrameDropped(t *testing.T) {
	cfg := loopbackConfig()
	b := startBroker(t, cfg)
	_, con := dialPair(t, b, cfg)

	deliveries := collect(t, con, "sealed")
	waitFor(t, "subscription", func() bool { return b.SubscriberCount("sealed") == 1 })

	// This publisher encrypts but the broker holds no key, so its frames
	// cannot be verified and are dropped at the broker.
	sealedCfg := cfg
	sealedCfg.EncryptionKey = config.Secret("0123456789abcdef")
	sealed, err := NewPublisher(context.Background(), b.Addr(), sealedCfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { sealed.Close() })
	require.NoError(t, sealed.Publish(context.Background(), "sealed", "unreadable", nil))

	plain, err := NewPublisher(context.Background(), b.Addr(), cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { plain.Close() })
	require.NoError(t, plain.Publish(context.Background(), "sealed", "readable", nil))

	assert.Equal(t, "readable", recv(t, deliveries).Payload)
	assert.Empty(t, deliveries)
}

func TestWebhookIngestReachesSubscribers(t *testing.T) {
	cfg := loopbackConfig()
	cfg.WebhookEnabled = true
	cfg.WebhookPort = 0
	b := startBroker(t, cfg)
	_, con := dialPair(t, b, cfg)

	deliveries := collect(t, con, "ingested")
	waitFor(t, "subscription", func() bool { return b.SubscriberCount("ingested") == 1 })

	frame, err := envelope.Create("ingested", "via http", envelope.Options{})
	require.NoError(t, err)

	hookAddr := b.WebhookAddr()
	require.NotNil(t, hookAddr)
	resp, err := nethttp.Post(
		fmt.Sprintf("http://%s%s", hookAddr.HostPort(), "/webhook"),
		"application/octet-stream",
		bytes.NewReader(frame),
	)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, nethttp.StatusAccepted, resp.StatusCode)

	got := recv(t, deliveries)
	assert.Equal(t, "ingested", got.Topic)
	assert.Equal(t, "via http", got.Payload)
}

func TestSubscriptionDropsOnConsumerClose(t *testing.T) {
	cfg := loopbackConfig()
	b := startBroker(t, cfg)
	_, con := dialPair(t, b, cfg)

	collect(t, con, "ephemeral")
	waitFor(t, "subscription", func() bool { return b.SubscriberCount("ephemeral") == 1 })

	require.NoError(t, con.Close())
	waitFor(t, "subscription cleanup", func() bool { return b.SubscriberCount("ephemeral") == 0 })
}

func TestClosedClientsRefuse(t *testing.T) {
	cfg := loopbackConfig()
	b := startBroker(t, cfg)
	pub, con := dialPair(t, b, cfg)

	require.NoError(t, pub.Close())
	err := pub.Publish(context.Background(), "any", "x", nil)
	assert.True(t, errspkg.IsKind(err, errspkg.KindResourceDisposed))

	require.NoError(t, con.Close())
	err = con.Subscribe("any", func(Delivery) error { return nil })
	assert.True(t, errspkg.IsKind(err, errspkg.KindResourceDisposed))
	err = con.Unsubscribe("any")
	assert.True(t, errspkg.IsKind(err, errspkg.KindResourceDisposed))

	assert.NoError(t, pub.Close())
	assert.NoError(t, con.Close())
}

func TestPublishValidation(t *testing.T) {
	cfg := loopbackConfig()
	b := startBroker(t, cfg)
	pub, _ := dialPair(t, b, cfg)

	err := pub.Publish(context.Background(), "", "payload", nil)
	assert.True(t, errspkg.IsKind(err, errspkg.KindInvalidArgument))

	err = pub.PublishProto(context.Background(), "events", nil, nil)
	assert.True(t, errspkg.IsKind(err, errspkg.KindInvalidArgument))
}

func TestLazyBrokerListensOnDemand(t *testing.T) {
	cfg := loopbackConfig()
	cfg.Lazy = true
	cfg.WebhookEnabled = true
	cfg.WebhookPort = 0
	b := startBroker(t, cfg)

	assert.Nil(t, b.Addr())
	assert.Nil(t, b.WebhookAddr())

	require.NoError(t, b.Listen())
	assert.NotNil(t, b.Addr())
	assert.NotNil(t, b.WebhookAddr())
}

func TestPublisherFlushAfterPublish(t *testing.T) {
	cfg := loopbackConfig()
	b := startBroker(t, cfg)
	pub, con := dialPair(t, b, cfg)

	deliveries := collect(t, con, "flush.check")
	waitFor(t, "subscription", func() bool { return b.SubscriberCount("flush.check") == 1 })

	require.NoError(t, pub.Publish(context.Background(), "flush.check", "bye", nil))
	require.NoError(t, pub.Flush(context.Background()))
	require.NoError(t, pub.Err())

	got := recv(t, deliveries)
	assert.Equal(t, "bye", got.Payload)
}

func TestPublisherSurfacesCancellation(t *testing.T) {
	cfg := loopbackConfig()
	b := startBroker(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	pub, err := NewPublisher(ctx, b.Addr(), cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { pub.Close() })

	require.NoError(t, pub.Err())
	cancel()
	waitFor(t, "cancellation to surface", func() bool {
		return errspkg.IsKind(pub.Err(), errspkg.KindCancelled)
	})
}
