package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/securescan/internal/progress"
	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) serverMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg serverMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestWS_JoinReceivesProgress(t *testing.T) {
	s, _, _ := newTestServer(t)
	conn := dialWS(t, s)

	if err := conn.WriteJSON(clientMessage{Event: "join-scan", ScanID: "scan-1"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	// Give the subscription a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)

	s.bus.Publish(progress.Event{ScanID: "scan-1", Status: "scanning", Progress: 44})

	msg := readMessage(t, conn)
	if msg.Event != progress.TypeProgress {
		t.Fatalf("event = %q, want scan-progress", msg.Event)
	}
	data, ok := msg.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %T", msg.Data)
	}
	if data["scanId"] != "scan-1" || data["progress"] != float64(44) {
		t.Errorf("payload = %v", data)
	}
}

func TestWS_LateJoinerGetsCachedEvent(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.bus.Publish(progress.Event{ScanID: "scan-2", Status: "crawling", Progress: 30})

	conn := dialWS(t, s)
	if err := conn.WriteJSON(clientMessage{Event: "join-scan", ScanID: "scan-2"}); err != nil {
		t.Fatalf("join: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Event != progress.TypeProgress {
		t.Fatalf("event = %q", msg.Event)
	}
	data := msg.Data.(map[string]any)
	if data["progress"] != float64(30) {
		t.Errorf("cached progress = %v, want 30", data["progress"])
	}
}

func TestWS_LeaveStopsDelivery(t *testing.T) {
	s, _, _ := newTestServer(t)
	conn := dialWS(t, s)

	_ = conn.WriteJSON(clientMessage{Event: "join-scan", ScanID: "scan-3"})
	time.Sleep(50 * time.Millisecond)
	_ = conn.WriteJSON(clientMessage{Event: "leave-scan", ScanID: "scan-3"})
	time.Sleep(50 * time.Millisecond)

	s.bus.Publish(progress.Event{ScanID: "scan-3", Progress: 10})

	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg serverMessage
	if err := conn.ReadJSON(&msg); err == nil {
		t.Fatalf("received %+v after leaving the scan", msg)
	}
}

func TestWS_ErrorBroadcast(t *testing.T) {
	s, _, _ := newTestServer(t)
	conn := dialWS(t, s)

	_ = conn.WriteJSON(clientMessage{Event: "join-scan", ScanID: "scan-4"})
	time.Sleep(50 * time.Millisecond)

	s.bus.PublishError("scan-4", "Unable to scan the target")

	msg := readMessage(t, conn)
	if msg.Event != progress.TypeError {
		t.Fatalf("event = %q, want scan-error", msg.Event)
	}
	data := msg.Data.(map[string]any)
	if data["message"] != "Unable to scan the target" {
		t.Errorf("payload = %v", data)
	}
}
