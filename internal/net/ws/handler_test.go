package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rust-and-ruin/server/internal/config"
	"rust-and-ruin/server/internal/coordinator"
	"rust-and-ruin/server/internal/protocol"
	"rust-and-ruin/server/internal/storage"
)

func newTestConn(t *testing.T) (*websocket.Conn, *coordinator.Coordinator) {
	t.Helper()
	coord := coordinator.New(coordinator.Config{
		Store:  storage.NewMemory(),
		Tables: config.DefaultTables(),
		Seed:   7,
		Oracle: coordinator.OracleFunc(func(ctx context.Context, accountID string) ([]string, error) {
			return nil, nil
		}),
	})
	handler := NewHandler(coord, nil)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		handler.Serve(r.Context(), conn)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("expected dial to succeed, got %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, coord
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a frame, got %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("expected JSON frame, got %v", err)
	}
	return fields
}

func envelopeType(t *testing.T, fields map[string]json.RawMessage) string {
	t.Helper()
	var kind string
	if err := json.Unmarshal(fields["type"], &kind); err != nil {
		t.Fatalf("expected type tag, got %v", err)
	}
	return kind
}

func send(t *testing.T, conn *websocket.Conn, msg protocol.Inbound) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("expected write to succeed, got %v", err)
	}
}

func TestServeGreetsWithConnectionStatus(t *testing.T) {
	conn, _ := newTestConn(t)
	fields := readEnvelope(t, conn)
	if kind := envelopeType(t, fields); kind != "connection_status" {
		t.Fatalf("expected connection_status greeting, got %q", kind)
	}
}

func TestAuthenticateAndSubscribeFlow(t *testing.T) {
	conn, _ := newTestConn(t)
	readEnvelope(t, conn) // greeting

	send(t, conn, protocol.Inbound{Type: protocol.InboundAuthenticate, AccountID: "acct-1"})
	fields := readEnvelope(t, conn)
	if kind := envelopeType(t, fields); kind != "connection_status" {
		t.Fatalf("expected authenticated status, got %q", kind)
	}
	var authenticated bool
	if err := json.Unmarshal(fields["authenticated"], &authenticated); err != nil || !authenticated {
		t.Fatalf("expected authenticated flag set, got %s", fields["authenticated"])
	}

	send(t, conn, protocol.Inbound{Type: protocol.InboundSubscribe, Events: []string{"world_state"}})
	kinds := []string{
		envelopeType(t, readEnvelope(t, conn)),
		envelopeType(t, readEnvelope(t, conn)),
		envelopeType(t, readEnvelope(t, conn)),
	}
	want := []string{"player_state", "world_state", "subscription_confirmed"}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected frame sequence %v, got %v", want, kinds)
		}
	}
}

func TestSubscribeBeforeAuthenticateRejected(t *testing.T) {
	conn, _ := newTestConn(t)
	readEnvelope(t, conn) // greeting

	send(t, conn, protocol.Inbound{Type: protocol.InboundSubscribe, Events: []string{"world_state"}})
	fields := readEnvelope(t, conn)
	if kind := envelopeType(t, fields); kind != "error" {
		t.Fatalf("expected error frame, got %q", kind)
	}
	var code string
	if err := json.Unmarshal(fields["code"], &code); err != nil || code != "session_unauthenticated" {
		t.Fatalf("expected session_unauthenticated code, got %s", fields["code"])
	}
}

func TestPingAnswersPong(t *testing.T) {
	conn, _ := newTestConn(t)
	readEnvelope(t, conn) // greeting

	send(t, conn, protocol.Inbound{Type: protocol.InboundPing, SentAt: time.Now().UnixMilli()})
	fields := readEnvelope(t, conn)
	if kind := envelopeType(t, fields); kind != "pong" {
		t.Fatalf("expected pong, got %q", kind)
	}
}

func TestMalformedMessageKeepsConnectionAlive(t *testing.T) {
	conn, _ := newTestConn(t)
	readEnvelope(t, conn) // greeting

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{broken")); err != nil {
		t.Fatalf("expected write to succeed, got %v", err)
	}
	fields := readEnvelope(t, conn)
	if kind := envelopeType(t, fields); kind != "error" {
		t.Fatalf("expected error frame for malformed message, got %q", kind)
	}

	// The connection still answers after the bad frame.
	send(t, conn, protocol.Inbound{Type: protocol.InboundPing})
	fields = readEnvelope(t, conn)
	if kind := envelopeType(t, fields); kind != "pong" {
		t.Fatalf("expected pong after recovery, got %q", kind)
	}
}

func TestUnknownMessageTypeAnswersError(t *testing.T) {
	conn, _ := newTestConn(t)
	readEnvelope(t, conn) // greeting

	send(t, conn, protocol.Inbound{Type: "teleport"})
	fields := readEnvelope(t, conn)
	if kind := envelopeType(t, fields); kind != "error" {
		t.Fatalf("expected error frame for unknown type, got %q", kind)
	}
}

func TestDisconnectDetachesSession(t *testing.T) {
	conn, coord := newTestConn(t)
	readEnvelope(t, conn) // greeting
	if coord.Registry().Count() != 1 {
		t.Fatalf("expected 1 live session, got %d", coord.Registry().Count())
	}
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for coord.Registry().Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected session detached after disconnect, got %d", coord.Registry().Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
