package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterMetricsIsIdempotent(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()
}

func TestRecordersPopulateDefaultRegistry(t *testing.T) {
	ConnectionOpened("server")
	ConnectionClosed("server")
	RecordSocketBytes("in", 128)
	RecordWebhookRequest("POST", 202, 15*time.Millisecond)
	RecordPublish("orders", 512)
	RecordConsume("orders")

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	want := map[string]bool{
		"courier_socket_connections_open":          false,
		"courier_socket_bytes_total":               false,
		"courier_webhook_requests_total":           false,
		"courier_webhook_request_duration_seconds": false,
		"courier_broker_messages_published_total":  false,
		"courier_broker_messages_consumed_total":   false,
		"courier_broker_message_bytes":             false,
	}
	for _, family := range families {
		if _, tracked := want[family.GetName()]; tracked {
			want[family.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric family %q not registered", name)
		}
	}
}
