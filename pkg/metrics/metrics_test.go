package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollectorsExposed(t *testing.T) {
	m := New()

	m.ObserveHTTPRequest("GET", "/api/profiles", 200, 5*time.Millisecond)
	m.RecordRateLimited("auth")
	m.ConnectionOpened()
	m.RecordTerminalBytes("output", 128)
	m.StreamOpened()
	m.RecordStreamMessage("terminal:input", "in")
	m.ObserveAssistRequest("translate", "success", 200*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"termgate_http_requests_total",
		"termgate_rate_limited_total",
		"termgate_ssh_connections_active",
		"termgate_terminal_bytes_total",
		"termgate_streams_active",
		"termgate_stream_messages_total",
		"termgate_assist_requests_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %s", want)
		}
	}
}

func TestNilReceiverIsNoOp(t *testing.T) {
	var m *Metrics
	m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.StreamOpened()
	m.RecordStreamMessage("x", "in")
}
