package presence

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"torb/logger"
	"torb/model"
	"torb/repository"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendQueueSize  = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// UserPresence is one entry in the broadcast roster.
type UserPresence struct {
	Username string `json:"username"`
	TrackID  string `json:"track_id,omitempty"`
	Online   bool   `json:"online"`
}

// inbound is what connected clients may send: currently only global chat.
type inbound struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Hub tracks connected users and their now-playing state, and fans
// presence rosters and chat messages out to every connection.
type Hub struct {
	chats repository.ChatRepository

	mu        sync.Mutex
	clients   map[string]*client
	presences map[string]string // username -> now-playing track id, "" when idle
}

// NewHub creates a Hub. chats may be nil; inbound chat is then broadcast
// without persistence.
func NewHub(chats repository.ChatRepository) *Hub {
	return &Hub{
		chats:     chats,
		clients:   make(map[string]*client),
		presences: make(map[string]string),
	}
}

// HandleConnection upgrades the request and services the connection until
// the client goes away. username must arrive already authenticated.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request, username string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed",
			logger.String("username", username),
			logger.ErrorField(err),
		)
		return
	}

	c := &client{
		hub:      h,
		username: username,
		conn:     conn,
		send:     make(chan []byte, sendQueueSize),
	}

	h.register(c)
	go c.writePump()
	go c.readPump()

	h.BroadcastPresence()
}

// SetNowPlaying records what a user is listening to and broadcasts the
// updated roster. An empty trackID clears the user's now-playing state.
func (h *Hub) SetNowPlaying(username, trackID string) {
	h.mu.Lock()
	h.presences[username] = trackID
	h.mu.Unlock()
	h.BroadcastPresence()
}

// BroadcastPresence sends the current roster to every connection.
func (h *Hub) BroadcastPresence() {
	h.mu.Lock()
	users := make([]UserPresence, 0, len(h.presences))
	for username, trackID := range h.presences {
		_, online := h.clients[username]
		if !online && trackID == "" {
			continue
		}
		users = append(users, UserPresence{Username: username, TrackID: trackID, Online: online})
	}
	h.mu.Unlock()

	h.broadcast(map[string]interface{}{"type": "presence", "users": users})
}

// BroadcastChat fans a chat message out to every connection.
func (h *Hub) BroadcastChat(msg *model.ChatMessage) {
	h.broadcast(map[string]interface{}{"type": "chat", "payload": msg})
}

// OnlineCount reports the number of connected users.
func (h *Hub) OnlineCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Error("failed to marshal broadcast message", logger.ErrorField(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for username, c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow consumer; drop the connection rather than block the hub.
			logger.Warn("dropping slow websocket consumer", logger.String("username", username))
			close(c.send)
			delete(h.clients, username)
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	if existing, ok := h.clients[c.username]; ok {
		close(existing.send)
	}
	h.clients[c.username] = c
	if _, ok := h.presences[c.username]; !ok {
		h.presences[c.username] = ""
	}
	h.mu.Unlock()

	logger.Info("user connected", logger.String("username", c.username))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if current, ok := h.clients[c.username]; ok && current == c {
		close(c.send)
		delete(h.clients, c.username)
	}
	h.mu.Unlock()

	logger.Info("user disconnected", logger.String("username", c.username))
	h.BroadcastPresence()
}

// handleInbound processes one message from a connected client.
func (h *Hub) handleInbound(c *client, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Debug("ignoring malformed websocket message",
			logger.String("username", c.username),
			logger.ErrorField(err),
		)
		return
	}

	switch msg.Type {
	case "chat":
		if msg.Content == "" {
			return
		}
		chat := &model.ChatMessage{
			Sender:    c.username,
			Content:   msg.Content,
			CreatedAt: time.Now(),
		}
		if h.chats != nil {
			if err := h.chats.CreateMessage(context.Background(), chat); err != nil {
				logger.Error("failed to persist chat message",
					logger.String("sender", c.username),
					logger.ErrorField(err),
				)
				return
			}
		}
		h.BroadcastChat(chat)
	default:
		logger.Debug("ignoring unknown websocket message type",
			logger.String("username", c.username),
			logger.String("type", msg.Type),
		)
	}
}
