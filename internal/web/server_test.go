package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"navfuse/internal/feed"
	"navfuse/internal/gnss"
	"navfuse/internal/hub"
	"navfuse/internal/imu"
	"navfuse/internal/metrics"
	"navfuse/internal/pps"
)

func testHandler(t *testing.T, h *hub.Hub) http.Handler {
	t.Helper()
	m := metrics.New()
	logs := NewLogBuffer(100)
	lat := 35.681236
	src := Sources{
		GNSS: func() (gnss.Fix, bool) {
			return gnss.Fix{FixQuality: 1, LatDeg: &lat}, true
		},
		Clock:       func() pps.Snapshot { return pps.Snapshot{Synchronized: true, Pulses: 42} },
		IMU:         func() imu.Snapshot { return imu.Snapshot{Samples: 7} },
		Subscribers: h.Count,
	}
	return Handler(h, src, logs, m)
}

func TestStatusEndpoint(t *testing.T) {
	h := hub.New(hub.Config{}, metrics.New())
	srv := httptest.NewServer(testHandler(t, h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	var got StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.GNSS == nil || got.GNSS.FixQuality != 1 {
		t.Fatalf("gnss=%+v", got.GNSS)
	}
	if got.Clock == nil || !got.Clock.Synchronized || got.Clock.Pulses != 42 {
		t.Fatalf("clock=%+v", got.Clock)
	}
	if got.IMU == nil || got.IMU.Samples != 7 {
		t.Fatalf("imu=%+v", got.IMU)
	}
}

func TestStatusEndpoint_MethodNotAllowed(t *testing.T) {
	h := hub.New(hub.Config{}, metrics.New())
	srv := httptest.NewServer(testHandler(t, h))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/status", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want 405", resp.StatusCode)
	}
}

func TestLogsEndpoint(t *testing.T) {
	h := hub.New(hub.Config{}, metrics.New())
	m := metrics.New()
	logs := NewLogBuffer(100)
	_, _ = logs.Write([]byte("first line\nsecond line\n"))
	srv := httptest.NewServer(Handler(h, Sources{}, logs, m))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/logs?tail=1")
	if err != nil {
		t.Fatalf("GET /api/logs: %v", err)
	}
	defer resp.Body.Close()

	var got logsResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Lines) != 1 || got.Lines[0] != "second line" {
		t.Fatalf("lines=%v", got.Lines)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := hub.New(hub.Config{}, metrics.New())
	srv := httptest.NewServer(testHandler(t, h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestWebSocket_ReceivesPublishedMessages(t *testing.T) {
	h := hub.New(hub.Config{}, metrics.New())
	srv := httptest.NewServer(testHandler(t, h))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Subscription happens inside the upgrade handler; wait for it.
	deadline := time.Now().Add(time.Second)
	for h.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Publish(feed.Message{Kind: feed.KindGNSS, Payload: []byte(`{"type":"gnss","fix_quality":1}`)})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if mt != websocket.TextMessage {
		t.Fatalf("message type=%d", mt)
	}
	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "gnss" {
		t.Fatalf("payload=%s", payload)
	}
}

func TestWebSocket_DisconnectRemovesSubscriber(t *testing.T) {
	h := hub.New(hub.Config{}, metrics.New())
	srv := httptest.NewServer(testHandler(t, h))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for h.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for h.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
