package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mapwatch/mapwatch/internal/classify"
	"github.com/mapwatch/mapwatch/internal/snapshot"
	wsHub "github.com/mapwatch/mapwatch/internal/ws"
)

const testInterval = 20 * time.Millisecond

func newStore(t *testing.T, ids ...string) *snapshot.Store {
	t.Helper()
	st := snapshot.New(5 * time.Minute)
	for _, id := range ids {
		st.Put(snapshot.Entry{
			EntityID:    id,
			DisplayName: id,
			Verdict:     classify.Verdict{Severity: classify.SeverityNormal, Summary: "ok: 3"},
		})
	}
	return st
}

// startHub serves the hub over httptest and runs its broadcast loop.
func startHub(t *testing.T, st *snapshot.Store) (wsURL string, hub *wsHub.Hub) {
	t.Helper()

	hub = wsHub.New(st, testInterval)
	ctx, cancel := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return msg
}

func TestConnectReceivesImmediateSnapshot(t *testing.T) {
	wsURL, _ := startHub(t, newStore(t, "core-fw"))

	conn := dial(t, wsURL)
	msg := readMessage(t, conn)

	var m wsHub.Message
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Event != "snapshot" {
		t.Errorf("event: got %q, want snapshot", m.Event)
	}
	if len(m.Data) != 1 || m.Data[0].EntityID != "core-fw" {
		t.Errorf("data: got %+v, want one core-fw entry", m.Data)
	}
}

func TestBroadcastReflectsStoreUpdates(t *testing.T) {
	st := newStore(t, "core-fw")
	wsURL, _ := startHub(t, st)

	conn := dial(t, wsURL)
	readMessage(t, conn) // initial snapshot

	st.Put(snapshot.Entry{
		EntityID:    "core-fw",
		DisplayName: "core-fw",
		Verdict:     classify.Verdict{Severity: classify.SeverityError, Summary: "errors: 2"},
	})

	// The next tick should carry the error state.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var m wsHub.Message
		if err := json.Unmarshal(readMessage(t, conn), &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if len(m.Data) == 1 && m.Data[0].Severity == "error" {
			return
		}
	}
	t.Fatal("never observed the error state over the socket")
}

func TestCountTracksClients(t *testing.T) {
	wsURL, hub := startHub(t, newStore(t, "core-fw"))

	conn := dial(t, wsURL)
	waitFor(t, func() bool { return hub.Count() == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.Count() == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}
