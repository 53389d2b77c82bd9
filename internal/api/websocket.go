package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/JuniperInterlinear/core/ref"
	"github.com/FocuswithJustin/JuniperInterlinear/core/xref"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/logging"
	"github.com/FocuswithJustin/JuniperInterlinear/internal/server"
)

// wsResolveTimeout bounds one selection resolution end to end. The
// resolver's own per-collaborator timeout is tighter; this is the backstop
// for the whole call.
const wsResolveTimeout = 10 * time.Second

// SelectionMessage is the inbound message: a reader selected a token.
type SelectionMessage struct {
	Type     string `json:"type"` // "select"
	Ref      string `json:"ref"`
	Position int    `json:"position"`
	Text     string `json:"text,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ResultMessage answers one selection with its resolved interaction.
type ResultMessage struct {
	Type   string       `json:"type"` // "result"
	Result *xref.Result `json:"result"`
}

// ErrorMessage reports a per-message failure back to the sending client.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

// ProgressMessage is a broadcast progress update for index-build jobs.
type ProgressMessage struct {
	Type      string         `json:"type"`      // "progress", "complete", "error"
	Operation string         `json:"operation"` // "index-build"
	Stage     string         `json:"stage,omitempty"`
	Progress  int            `json:"progress"` // 0-100
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Client is one WebSocket connection.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *messageRateBucket
}

// Hub maintains active WebSocket connections, broadcasts job progress, and
// answers selection messages against the owning server's resolver.
type Hub struct {
	server     *Server
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub bound to the server whose resolver answers
// selections.
func NewHub(s *Server) *Hub {
	return &Hub{
		server:     s,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run handles client registration and broadcasting until the process
// exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logging.WebSocketEvent("client_connected", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logging.WebSocketEvent("client_disconnected", len(h.clients))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client channel full, disconnect.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a progress message to every connected client.
func (h *Hub) Broadcast(msg ProgressMessage) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error("failed to marshal progress message", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		logging.Warn("broadcast channel full, dropping message")
	}
}

// Progress broadcasts an index-build progress update.
func (h *Hub) Progress(operation, stage, message string, progress int) {
	h.Broadcast(ProgressMessage{
		Type:      "progress",
		Operation: operation,
		Stage:     stage,
		Progress:  progress,
		Message:   message,
	})
}

// Complete broadcasts an index-build completion.
func (h *Hub) Complete(operation, message string, data map[string]any) {
	h.Broadcast(ProgressMessage{
		Type:      "complete",
		Operation: operation,
		Progress:  100,
		Message:   message,
		Data:      data,
	})
}

// Fail broadcasts an index-build failure.
func (h *Hub) Fail(operation, message string) {
	h.Broadcast(ProgressMessage{
		Type:      "error",
		Operation: operation,
		Message:   message,
	})
}

// readPump reads selection messages and answers each on the client's own
// send channel. A client exceeding its message rate is told so and has the
// message dropped; malformed messages get an error reply, not a
// disconnect.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxWSMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error("websocket unexpected close", "error", err)
			}
			break
		}

		if !c.limiter.allow() {
			c.reply(ErrorMessage{Type: "error", Message: "message rate limit exceeded"})
			continue
		}

		var sel SelectionMessage
		if err := json.Unmarshal(data, &sel); err != nil || sel.Type != "select" {
			c.reply(ErrorMessage{Type: "error", Message: "expected a select message"})
			continue
		}
		c.handleSelection(sel)
	}
}

// handleSelection resolves one selection and replies to the sender only.
func (c *Client) handleSelection(sel SelectionMessage) {
	vref, err := ref.ParseRef(server.SanitizeUserInput(sel.Ref))
	if err != nil {
		c.reply(ErrorMessage{Type: "error", Message: "invalid ref: " + sel.Ref})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsResolveTimeout)
	defer cancel()

	result, err := c.hub.server.resolver.Resolve(ctx, xref.Request{
		Ref:      vref,
		Position: sel.Position,
		Text:     server.SanitizeUserInput(sel.Text),
		Limit:    sel.Limit,
	})
	if err != nil {
		c.reply(ErrorMessage{Type: "error", Message: err.Error()})
		return
	}
	c.reply(ResultMessage{Type: "result", Result: result})
}

// reply queues a message for this client, dropping it if the client has
// stopped draining.
func (c *Client) reply(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error("failed to marshal websocket reply", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump writes queued messages to the connection and keeps it alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush any additional queued messages.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket upgrades the connection and registers the client. Origin
// and authentication are checked before the upgrade; the per-client
// message rate limit applies after.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Auth.Enabled && !wsAuthorized(r, s.cfg.Auth) {
		logging.SecurityEvent("unauthorized_request", "websocket", "path", r.URL.Path)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkWSOrigin(s.cfg.AllowedOrigins),
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:     s.hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		limiter: newMessageRateBucket(wsMessagesPerSecond),
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
