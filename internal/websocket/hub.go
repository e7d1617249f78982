package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/typeers/backend/internal/auth"
	"github.com/typeers/backend/internal/logger"
	"github.com/typeers/backend/internal/models"
)

// Event types pushed to clients.
const (
	EventCampaignApproved = "campaign:approved"
	EventRewardClaimed    = "reward:claimed"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4 * 1024
)

// Message represents a WebSocket message
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ClaimEvent is broadcast to a campaign room after each successful claim.
type ClaimEvent struct {
	CampaignID string `json:"campaign_id"`
	ClaimCount int    `json:"claim_count"`
	MaxClaims  int    `json:"max_claims"`
}

// Client represents a WebSocket client
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	rooms  map[string]bool
}

type broadcastMessage struct {
	room string // empty for everyone
	data []byte
}

// Hub fans campaign events out to connected clients. Clients join one room
// per campaign they are watching.
type Hub struct {
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	broadcast  chan broadcastMessage
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewHub creates a new Hub. allowedOrigin "" or "*" accepts any origin.
func NewHub(allowedOrigin string) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan broadcastMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		quit:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedOrigin == "" || allowedOrigin == "*" || origin == "" || origin == allowedOrigin
		},
	}
	return h
}

// CampaignRoom is the room name for one campaign's events.
func CampaignRoom(campaignID string) string {
	return "campaign:" + campaignID
}

// Run starts the Hub main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Debug().Str("user_id", client.userID).Msg("ws client connected")

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.rooms = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Stop disconnects every client and ends Run.
func (h *Hub) Stop() {
	close(h.quit)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	for room := range client.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	logger.Debug().Str("user_id", client.userID).Msg("ws client disconnected")
}

func (h *Hub) deliver(msg broadcastMessage) {
	var slow []*Client

	h.mu.RLock()
	targets := h.clients
	if msg.room != "" {
		targets = h.rooms[msg.room]
	}
	for client := range targets {
		select {
		case client.send <- msg.data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.remove(client)
	}
}

func (h *Hub) publish(room, msgType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		logger.Warn().Err(err).Str("type", msgType).Msg("ws encode failed")
		return
	}
	select {
	case h.broadcast <- broadcastMessage{room: room, data: data}:
	default:
		logger.Warn().Str("type", msgType).Msg("ws broadcast queue full, event dropped")
	}
}

// CampaignApproved announces a newly playable campaign to everyone.
func (h *Hub) CampaignApproved(c *models.Campaign) {
	h.publish("", EventCampaignApproved, c.Summary())
}

// RewardClaimed updates watchers of a campaign with its new claim count.
func (h *Hub) RewardClaimed(c *models.Campaign, claimCount int) {
	h.publish(CampaignRoom(c.ID), EventRewardClaimed, ClaimEvent{
		CampaignID: c.ID,
		ClaimCount: claimCount,
		MaxClaims:  c.MaxClaims,
	})
}

// JoinRoom adds a client to a room
func (h *Hub) JoinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	client.rooms[room] = true
}

// LeaveRoom removes a client from a room
func (h *Hub) LeaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request. A ?token= query parameter identifies the
// viewer; anonymous viewers may watch public campaign events.
func (h *Hub) ServeWS(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := ""
		if token := c.Query("token"); token != "" {
			claims, err := tokens.Validate(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid token",
					"code":  models.ErrorCode(models.ErrNotAuthenticated),
				})
				return
			}
			userID = claims.UserID
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.FromContext(c.Request.Context()).Warn().Err(err).Msg("ws upgrade failed")
			return
		}

		client := &Client{
			hub:    h,
			conn:   conn,
			send:   make(chan []byte, 64),
			userID: userID,
			rooms:  make(map[string]bool),
		}
		h.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug().Err(err).Str("user_id", c.userID).Msg("ws read error")
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
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
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// handleMessage processes incoming WebSocket messages
func (c *Client) handleMessage(data []byte) {
	var msg struct {
		Type       string `json:"type"`
		CampaignID string `json:"campaign_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "ping":
		c.reply(`{"type":"pong"}`)
	case "join":
		if id := strings.TrimSpace(msg.CampaignID); id != "" {
			c.hub.JoinRoom(c, CampaignRoom(id))
			c.reply(`{"type":"joined"}`)
		}
	case "leave":
		if id := strings.TrimSpace(msg.CampaignID); id != "" {
			c.hub.LeaveRoom(c, CampaignRoom(id))
		}
	}
}

// reply queues a direct response. The hub may already have closed send.
func (c *Client) reply(s string) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- []byte(s):
	default:
	}
}
