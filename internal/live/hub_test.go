package live

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"streetlight-server/internal/modules/airquality/types"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readPayload(t *testing.T, conn *websocket.Conn) types.Payload {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var p types.Payload
	if err := json.Unmarshal(msg, &p); err != nil {
		t.Fatalf("decode %q: %v", msg, err)
	}
	return p
}

func TestHub_SendsCurrentThenBroadcasts(t *testing.T) {
	current := types.Snapshot{Window: []int{300}, Latest: 300, Classification: types.Classification{Index: 95, Category: types.Moderate}}
	hub := NewHub(func() types.Snapshot { return current }, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv)
	first := readPayload(t, conn)
	if first.LatestMQ != 300 || first.AQILevel != "Moderate" || first.AQIColor != "yellow" {
		t.Fatalf("initial payload = %+v", first)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	next := types.Snapshot{Window: []int{300, 700}, Latest: 700, Classification: types.Classification{Index: 220, Category: types.VeryUnhealthy}}
	if err := hub.Publish(context.Background(), next); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	got := readPayload(t, conn)
	if got.LatestMQ != 700 || got.AQI != 220 || got.AQIColor != "red" || len(got.MQValues) != 2 {
		t.Fatalf("broadcast payload = %+v", got)
	}
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dial(t, srv)
	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	hub.Close()
	if hub.Len() != 0 {
		t.Fatalf("Len after Close = %d", hub.Len())
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("read succeeded after hub closed")
	}
	if hub.Name() != "websocket" {
		t.Errorf("Name() = %q", hub.Name())
	}
}
