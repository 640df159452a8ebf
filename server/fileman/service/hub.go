package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	commonlog "interview_server/server/common/log"
)

type WSClient struct {
	UserID string
	Conn   *websocket.Conn
	mu     sync.Mutex
}

func (c *WSClient) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(v)
}

// Hub pushes file events to connected websocket clients. Events arrive on a
// redis pub/sub channel so every fileman instance delivers to its own
// connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*WSClient]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: map[string]map[*WSClient]struct{}{}}
}

func (h *Hub) Register(userID string, conn *websocket.Conn) *WSClient {
	client := &WSClient{UserID: userID, Conn: conn}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = map[*WSClient]struct{}{}
	}
	h.clients[userID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.UserID)
	}
}

// Run consumes the redis file-events channel until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, rdb *redis.Client) {
	if rdb == nil {
		return
	}
	sub := rdb.Subscribe(ctx, fileEventsChannel)
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var event FileEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				commonlog.Warnf("decode file event from redis: %v", err)
				continue
			}
			h.deliver(event)
		}
	}
}

func (h *Hub) deliver(event FileEvent) {
	h.mu.RLock()
	targets := make([]*WSClient, 0)
	for _, userID := range event.RecipientIDs {
		for client := range h.clients[userID] {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if err := client.WriteJSON(event); err != nil {
			commonlog.Debugf("drop ws client for user %s: %v", client.UserID, err)
			_ = client.Conn.Close()
			h.Unregister(client)
		}
	}
}
