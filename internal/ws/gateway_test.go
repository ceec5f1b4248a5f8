package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"notekeeper/api/internal/notify"
)

func setupTestGateway(t *testing.T) (*Gateway, *notify.Registry, *websocket.Conn, string) {
	t.Helper()

	registry := notify.NewRegistry()
	gateway := NewGateway(registry)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gateway.Handle(w, r, "usr-1")
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	connectionID := readRegisteredFrame(t, conn)
	return gateway, registry, conn, connectionID
}

func readRegisteredFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	var f struct {
		Event   string `json:"event"`
		Payload struct {
			ConnectionID string `json:"connectionId"`
		} `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read registered frame: %v", err)
	}
	if f.Event != "registered" {
		t.Fatalf("expected registered frame first, got %q", f.Event)
	}
	if f.Payload.ConnectionID == "" {
		t.Fatal("expected a connection id in the registered payload")
	}
	return f.Payload.ConnectionID
}

func TestHandleRegistersConnection(t *testing.T) {
	_, registry, _, connectionID := setupTestGateway(t)

	conns := registry.ConnectionsFor("usr-1")
	if len(conns) != 1 || conns[0] != connectionID {
		t.Fatalf("expected registry to hold %s for usr-1, got %v", connectionID, conns)
	}
}

func TestSendDeliversEvent(t *testing.T) {
	gateway, _, conn, connectionID := setupTestGateway(t)

	if err := gateway.Send(connectionID, notify.NoteChanged{NoteID: "note-1", OwnerID: "usr-1", Heading: "Groceries"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var f struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read event frame: %v", err)
	}
	if f.Event != "noteChanged" {
		t.Fatalf("expected noteChanged, got %q", f.Event)
	}

	var payload notify.NoteChanged
	if err := json.Unmarshal(f.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.NoteID != "note-1" || payload.Heading != "Groceries" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestSendToUnknownConnectionFails(t *testing.T) {
	gateway, _, _, _ := setupTestGateway(t)

	if err := gateway.Send("conn-nope", notify.AccessDenied{NoteID: "note-1"}); err == nil {
		t.Fatal("expected an error for an unknown connection")
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	gateway, registry, conn, connectionID := setupTestGateway(t)

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(registry.ConnectionsFor("usr-1")) == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if conns := registry.ConnectionsFor("usr-1"); len(conns) != 0 {
		t.Fatalf("expected no connections after disconnect, got %v", conns)
	}

	if err := gateway.Send(connectionID, notify.AccessDenied{NoteID: "note-1"}); err == nil {
		t.Fatal("expected Send to fail after disconnect")
	}
}
