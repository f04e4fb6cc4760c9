package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rampline/progression/internal/domain"
)

// Message types
const (
	MessageTypeProgressUpdate    = "progress_update"
	MessageTypeLevelUp           = "level_up"
	MessageTypeBadgeAwarded      = "badge_awarded"
	MessageTypeLeaderboardUpdate = "leaderboard_update"
	MessageTypeSubscribe         = "subscribe"
	MessageTypeUnsubscribe       = "unsubscribe"
	MessageTypePing              = "ping"
	MessageTypePong              = "pong"
	MessageTypeError             = "error"
)

// TopicLeaderboard receives leaderboard refreshes; per-skater updates go to
// SkaterTopic(id) subscribers
const TopicLeaderboard = "leaderboard"

// SkaterTopic returns the subscription topic for one skater's updates
func SkaterTopic(skaterID string) string {
	return fmt.Sprintf("skater:%s", skaterID)
}

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ProgressUpdate carries a skater's new XP position for broadcast
type ProgressUpdate struct {
	SkaterID string               `json:"skater_id"`
	XP       int64                `json:"xp"`
	Progress domain.LevelProgress `json:"progress"`
}

// LevelUpUpdate announces a skater reaching a new level
type LevelUpUpdate struct {
	SkaterID string `json:"skater_id"`
	Level    int    `json:"level"`
}

// BadgeUpdate announces a newly earned badge
type BadgeUpdate struct {
	SkaterID string       `json:"skater_id"`
	Badge    domain.Badge `json:"badge"`
}

// LeaderboardUpdate contains leaderboard data for broadcast
type LeaderboardUpdate struct {
	Entries      []domain.RankEntry `json:"entries"`
	TotalSkaters int64              `json:"total_skaters"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by topic
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Inbound messages from clients
	broadcast chan *Message

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	topic  string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				// Remove from all topic subscriptions
				for topic, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, topic)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.topic]; !ok {
				h.clients[req.topic] = make(map[*Client]bool)
			}
			h.clients[req.topic][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "topic", req.topic)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.topic]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.topic)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "topic", req.topic)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to all subscribed clients
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	// If message has a topic, only send to subscribed clients
	if message.Topic != "" {
		if clients, ok := h.clients[message.Topic]; ok {
			for client := range clients {
				select {
				case client.send <- data:
				default:
					// Client's buffer is full, skip
					h.logger.Warn("client buffer full, skipping", "client_id", client.id)
				}
			}
		}
	} else {
		// Broadcast to all clients
		for client := range h.allClients {
			select {
			case client.send <- data:
			default:
				h.logger.Warn("client buffer full, skipping", "client_id", client.id)
			}
		}
	}
}

// enqueue offers a message to the broadcast channel without blocking
func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastProgress sends a skater's new XP position to their subscribers
func (h *Hub) BroadcastProgress(skaterID string, xp int64, progress domain.LevelProgress) {
	h.enqueue(&Message{
		Type:  MessageTypeProgressUpdate,
		Topic: SkaterTopic(skaterID),
		Data: ProgressUpdate{
			SkaterID: skaterID,
			XP:       xp,
			Progress: progress,
		},
		Timestamp: time.Now(),
	})
}

// BroadcastLevelUp announces a skater's new level
func (h *Hub) BroadcastLevelUp(skaterID string, level int) {
	h.enqueue(&Message{
		Type:  MessageTypeLevelUp,
		Topic: SkaterTopic(skaterID),
		Data: LevelUpUpdate{
			SkaterID: skaterID,
			Level:    level,
		},
		Timestamp: time.Now(),
	})
}

// BroadcastBadge announces a newly earned badge
func (h *Hub) BroadcastBadge(skaterID string, badge domain.Badge) {
	h.enqueue(&Message{
		Type:  MessageTypeBadgeAwarded,
		Topic: SkaterTopic(skaterID),
		Data: BadgeUpdate{
			SkaterID: skaterID,
			Badge:    badge,
		},
		Timestamp: time.Now(),
	})
}

// BroadcastLeaderboard sends fresh leaderboard entries to board subscribers
func (h *Hub) BroadcastLeaderboard(entries []domain.RankEntry, totalSkaters int64) {
	h.enqueue(&Message{
		Type:  MessageTypeLeaderboardUpdate,
		Topic: TopicLeaderboard,
		Data: LeaderboardUpdate{
			Entries:      entries,
			TotalSkaters: totalSkaters,
		},
		Timestamp: time.Now(),
	})
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a topic subscription
func (h *Hub) Subscribe(client *Client, topic string) {
	h.subscribe <- &subscriptionRequest{
		client: client,
		topic:  topic,
	}
}

// Unsubscribe removes a client from a topic subscription
func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.unsubscribe <- &subscriptionRequest{
		client: client,
		topic:  topic,
	}
}

// GetSubscriberCount returns the number of subscribers for a topic
func (h *Hub) GetSubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[topic]; ok {
		return len(clients)
	}
	return 0
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
