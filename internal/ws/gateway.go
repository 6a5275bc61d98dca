package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/avetra/storegate/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// ChatMessage is the payload relayed between clients. From and Role
// are stamped by the gateway from the verified token, never trusted
// from the client.
type ChatMessage struct {
	From   uint64 `json:"from"`
	Role   string `json:"role"`
	Body   string `json:"body"`
	SentAt string `json:"sent_at"`
}

// Gateway upgrades authenticated requests to chat connections.
// Authentication happens once, at handshake time, by verifying the
// access token from the handshake's cookie header; a request without
// a valid token is rejected with 401 before any upgrade, so no
// message is ever exchanged with an unauthenticated peer.
type Gateway struct {
	hub      *Hub
	issuer   *session.Issuer
	upgrader websocket.Upgrader
	seq      atomic.Uint64
}

func NewGateway(hub *Hub, iss *session.Issuer) *Gateway {
	return &Gateway{
		hub:    hub,
		issuer: iss,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cookie auth carries the trust decision; cross-origin
			// browser pages still need the cookie to connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle authenticates the handshake and runs the connection.
func (g *Gateway) Handle(c echo.Context) error {
	ck, err := c.Cookie(session.AccessCookie)
	if err != nil || ck.Value == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing token"})
	}
	claims, err := g.issuer.Verify(ck.Value)
	if err != nil {
		if errors.Is(err, session.ErrExpiredToken) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token expired", "code": "token_expired"})
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}

	conn, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote its own error response.
		return nil
	}

	client := &Client{
		ID:     fmt.Sprintf("%d-%d", claims.UserID, g.seq.Add(1)),
		UserID: claims.UserID,
		Role:   claims.Role,
		Send:   make(chan []byte, 64),
	}
	g.hub.Register(client)

	go g.writePump(conn, client)
	g.readPump(conn, client)
	return nil
}

// readPump relays inbound messages to the hub until the connection
// drops. Runs on the handler goroutine.
func (g *Gateway) readPump(conn *websocket.Conn, client *Client) {
	defer func() {
		g.hub.Unregister(client)
		_ = conn.Close()
	}()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws-gateway: read error for client %s: %v", client.ID, err)
			}
			return
		}
		var in struct {
			Body string `json:"body"`
		}
		if err := json.Unmarshal(raw, &in); err != nil || in.Body == "" {
			continue
		}
		out, err := json.Marshal(ChatMessage{
			From:   client.UserID,
			Role:   string(client.Role),
			Body:   in.Body,
			SentAt: time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			continue
		}
		g.hub.Broadcast(out)
	}
}

// writePump drains the client's send channel and keeps the
// connection alive with pings.
func (g *Gateway) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case payload, ok := <-client.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
