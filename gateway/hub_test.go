package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quizduel-server/pool"
	"quizduel-server/presence"
)

type fakeResolver struct {
	rating  float64
	byToken map[string]string
}

func (r fakeResolver) ResolveToken(_ context.Context, token string) (string, string, float64, error) {
	userID, ok := r.byToken[token]
	if !ok {
		return "", "", 0, errors.New("unknown token")
	}
	return userID, userID, r.rating, nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func setupTestServer(t *testing.T, resolver fakeResolver) (*httptest.Server, *presence.Registry) {
	t.Helper()
	p := pool.New()
	reg := presence.New(p)
	hub := NewHub(resolver, reg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return string(msg)
}

func TestGatewayValidTokenQueuesUser(t *testing.T) {
	resolver := fakeResolver{rating: 1000, byToken: map[string]string{"tok-a": "alice"}}
	srv, _ := setupTestServer(t, resolver)

	conn := dial(t, srv)
	defer conn.Close()

	if got := readText(t, conn); got != "Connected" {
		t.Fatalf("expected Connected, got %q", got)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("tok-a")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if got := readText(t, conn); got != "token accepted" {
		t.Fatalf("expected token accepted, got %q", got)
	}
	if got := readText(t, conn); got != "Search started" {
		t.Fatalf("expected Search started, got %q", got)
	}
}

func TestGatewayInvalidTokenClosesChannel(t *testing.T) {
	resolver := fakeResolver{rating: 1000, byToken: map[string]string{}}
	srv, _ := setupTestServer(t, resolver)

	conn := dial(t, srv)
	defer conn.Close()

	readText(t, conn) // Connected

	if err := conn.WriteMessage(websocket.TextMessage, []byte("garbage")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if got := readText(t, conn); got != "invalid token" {
		t.Fatalf("expected invalid token, got %q", got)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the channel to close after an invalid token")
	}
}

func TestGatewaySecondConnectionAlreadyInMatch(t *testing.T) {
	resolver := fakeResolver{rating: 1000, byToken: map[string]string{"tok-a": "alice"}}
	srv, reg := setupTestServer(t, resolver)

	conn := dial(t, srv)
	defer conn.Close()
	readText(t, conn)
	conn.WriteMessage(websocket.TextMessage, []byte("tok-a"))
	readText(t, conn) // token accepted
	readText(t, conn) // Search started

	reg.MarkInMatch("alice")

	conn2 := dial(t, srv)
	defer conn2.Close()
	readText(t, conn2) // Connected
	conn2.WriteMessage(websocket.TextMessage, []byte("tok-a"))
	readText(t, conn2) // token accepted

	if got := readText(t, conn2); got != "already in a match" {
		t.Fatalf("expected already in a match, got %q", got)
	}
}
