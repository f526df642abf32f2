package gateway

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quizduel-server/duel"
	"quizduel-server/match"
	"quizduel-server/wsutil"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBufferSize = 16
)

var errConnClosed = errors.New("gateway: connection closed")

// Client is the duplex text channel the gateway hands to the rest of the
// core once authenticated. It implements match.Conn (and match.Binder)
// so a matchmaker pairing can route inbound frames straight into the
// owning match without the match package knowing anything about
// websockets (generalizes the teacher's ws.Client to the raw-text-frame
// protocol of spec.md §4.1).
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  *slog.Logger

	UserID        string
	Name          string
	Rating        float64
	authenticated bool

	mu     sync.Mutex
	m      *match.Match
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, log *slog.Logger) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		log:  log,
	}
}

// BindMatch implements match.Binder: once the matchmaker pairs this
// client's identity into a match, its read pump starts forwarding
// classified inbound frames there.
func (c *Client) BindMatch(m *match.Match) {
	c.mu.Lock()
	c.m = m
	c.mu.Unlock()
}

func (c *Client) boundMatch() *match.Match {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m
}

// SendText implements match.Conn. Unlike wsutil.SafeSend (fire-and-forget),
// the match runner's handshake needs to know whether delivery actually
// queued — a failed write before the match truly starts means that
// participant never entered it (spec.md §4.5 "Startup handshake").
func (c *Client) SendText(text string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errConnClosed
	}
	if !wsutil.TrySend(c.send, []byte(text)) {
		return errConnClosed
	}
	return nil
}

// Close implements match.Conn. Idempotent: the handshake failure path,
// the match-end paths, and the read pump's own defer can all race to
// call it.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump pumps inbound frames from the websocket connection. The first
// frame is always the auth token; every frame after that is either
// forwarded to the bound match or, pre-match, ignored (spec.md §4.1).
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		if c.UserID != "" {
			c.hub.Presence.Detach(c.UserID)
			if m := c.boundMatch(); m != nil {
				m.PushEvent(duel.Event{UserID: c.UserID, Kind: duel.EventDisconnected, ReceivedAt: time.Now()})
			}
		}
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read error", "error", err)
			}
			return
		}

		if !c.authenticated {
			c.handleAuthFrame(string(raw))
			continue
		}

		if m := c.boundMatch(); m != nil {
			m.PushEvent(classify(c.UserID, string(raw)))
		}
		// Pre-match, authenticated frames are queue-control chatter outside
		// spec.md's reserved set and are simply ignored until pairing.
	}
}

// WritePump pumps queued outbound frames to the websocket connection,
// with the teacher's ping/pong keepalive cadence.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
