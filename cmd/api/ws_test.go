package main

import (
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CoursePilotAI/coursepilot-mvp/pkg/metrics"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestWS_ChatRoundtrip(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t, true, 0))
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("What is a derivative?")); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}

	got := string(data)
	if !strings.HasPrefix(got, botPrefix) {
		t.Fatalf("reply %q lacks bot prefix", got)
	}
	if !strings.Contains(got, "A derivative measures change.") {
		t.Errorf("unexpected reply: %q", got)
	}
}

func TestWS_MultipleQuestionsOneConnection(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t, true, 0))
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("q")); err != nil {
			t.Fatal(err)
		}
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}
}

func TestConnManager_RemoveIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t, true, 0))
	defer srv.Close()

	reg := metrics.New()
	m := newConnManager(slog.Default(), reg)

	conn := dialWS(t, srv)
	m.add(conn)
	m.remove(conn)
	m.remove(conn) // second removal of the same connection is a no-op
	m.closeAll()

	if got := reg.Gauge("ws_connections", "").Value(); got != 0 {
		t.Fatalf("gauge = %d", got)
	}
}
