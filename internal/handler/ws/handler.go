// Package ws drives the real-time chat protocol: for every inbound message
// the connection emits a typing frame, then exactly one message or error
// frame, in that order.
package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/kaiwenz/ai-chatbot/backend/internal/coordinator"
	"github.com/kaiwenz/ai-chatbot/backend/internal/generator"
	"github.com/kaiwenz/ai-chatbot/backend/internal/session"
)

const (
	readDeadline = 60 * time.Second
	pingInterval = 54 * time.Second
)

// connState tracks where a connection is in the protocol.
type connState int

const (
	stateIdle connState = iota
	stateAwaitingGeneration
	stateClosed
)

// Handler upgrades chat websocket connections.
type Handler struct {
	coord    *coordinator.Coordinator
	upgrader websocket.Upgrader
}

// New creates the websocket handler.
func New(coord *coordinator.Coordinator) *Handler {
	return &Handler{
		coord: coord,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", h.handleChat)
}

type inboundFrame struct {
	Type        string   `json:"type"`
	Message     string   `json:"message"`
	Temperature *float64 `json:"temperature"`
	MaxLength   *int     `json:"max_length"`
}

type typingFrame struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"isTyping"`
}

type messageFrame struct {
	Type      string `json:"type"`
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
	IsTyping  bool   `json:"isTyping"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// connection is the per-connection protocol state. The read loop is the
// only goroutine advancing the state machine, so inbound frames arriving
// mid-generation simply queue and run after the in-flight turn; none are
// dropped. The write mutex keeps ping frames from interleaving with
// protocol frames.
type connection struct {
	conn      *websocket.Conn
	sessionID string

	writeMu sync.Mutex
	state   connState
}

func (c *connection) setState(state connState) {
	c.writeMu.Lock()
	c.state = state
	c.writeMu.Unlock()
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := session.Resolve(r.URL.Query().Get("session_id"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[ws] new connection session=%s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &connection{conn: conn, sessionID: sessionID, state: stateIdle}

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})
	go h.pingLoop(ctx, c)

	h.readLoop(ctx, c)
	c.setState(stateClosed)
	log.Printf("[ws] connection closed session=%s", sessionID)
}

func (h *Handler) readLoop(ctx context.Context, c *connection) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			var frame inboundFrame
			if err := c.conn.ReadJSON(&frame); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[ws] read error session=%s: %v", c.sessionID, err)
				}
				return
			}
			c.conn.SetReadDeadline(time.Now().Add(readDeadline))

			if frame.Type != "" && frame.Type != "message" {
				c.write(errorFrame{Type: "error", Error: "unsupported frame type: " + frame.Type})
				continue
			}

			h.handleMessage(ctx, c, frame)
			// Generation may have eaten most of the deadline.
			c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		}
	}
}

// handleMessage runs one turn: typing, then message or error, never both
// and never out of order.
func (h *Handler) handleMessage(ctx context.Context, c *connection, frame inboundFrame) {
	c.setState(stateAwaitingGeneration)
	defer c.setState(stateIdle)

	c.write(typingFrame{Type: "typing", IsTyping: true})

	params := generator.DefaultParams()
	if frame.Temperature != nil {
		params.Temperature = *frame.Temperature
	}
	if frame.MaxLength != nil {
		params.MaxLength = *frame.MaxLength
	}

	turn, err := h.coord.Submit(ctx, c.sessionID, frame.Message, params)
	if err != nil {
		c.write(errorFrame{Type: "error", Error: errorText(err)})
		return
	}

	c.write(messageFrame{
		Type:      "message",
		Response:  turn.Content,
		Timestamp: turn.CreatedAt.Format(time.RFC3339),
		IsTyping:  false,
	})
}

func errorText(err error) string {
	var cerr *coordinator.Error
	if errors.As(err, &cerr) {
		return cerr.Reason
	}
	return "failed to generate response"
}

func (c *connection) write(frame any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.state == stateClosed {
		return
	}
	if err := c.conn.WriteJSON(frame); err != nil {
		log.Printf("[ws] write failed session=%s: %v", c.sessionID, err)
	}
}

func (h *Handler) pingLoop(ctx context.Context, c *connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
