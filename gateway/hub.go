// Package gateway accepts duplex text connections, resolves the first
// frame to a verified identity, and forwards everything after that into
// the presence/matchmaking/match subsystem (spec.md §4.1), generalizing
// the teacher's ws.Hub/ws.Client from a JSON envelope protocol to raw
// UTF-8 text frames.
package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"quizduel-server/auth"
	"quizduel-server/presence"
	"quizduel-server/wsutil"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub tracks live connections for graceful shutdown and wires newly
// upgraded connections to auth resolution and presence.
type Hub struct {
	AuthResolver auth.Resolver
	Presence     *presence.Registry
	log          *slog.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
}

// NewHub builds a Hub against the given identity resolver and presence
// registry.
func NewHub(resolver auth.Resolver, reg *presence.Registry, log *slog.Logger) *Hub {
	return &Hub{
		AuthResolver: resolver,
		Presence:     reg,
		log:          log,
		clients:      make(map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
	}
}

// Run tracks connection bookkeeping until ctx is cancelled, mirroring the
// teacher's Hub.Run(ctx) shutdown pattern.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.log.Info("gateway shutting down")
			return
		case c := <-h.register:
			h.clients[c] = true
			h.log.Debug("client connected", "total", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				h.log.Debug("client disconnected", "total", len(h.clients))
			}
		}
	}
}

// ServeWS upgrades an HTTP request to a websocket connection and spawns
// its pump goroutines. "Connected" is sent immediately at upgrade, ahead
// of auth resolution, per spec.md §4.1.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn, h.log)
	h.register <- c
	// Fire-and-forget: the client was just created, its send channel can't
	// be closed yet, and nothing downstream needs to know this queued.
	wsutil.SafeSend(c.send, []byte("Connected"))

	go c.WritePump()
	go c.ReadPump()
}
