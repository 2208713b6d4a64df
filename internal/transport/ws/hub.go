// Package ws 通过 websocket 把新收到的 webhook 推送给对应 owner 的订阅者。
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tvhook/internal/logger"
)

// EventWebhookReceived 是每条被接受的告警推送的事件类型。
const EventWebhookReceived = "webhook_received"

// Event is the frame pushed to subscribers.
type Event struct {
	Type    string    `json:"type"`
	OwnerID string    `json:"owner_id"`
	At      time.Time `json:"at"`
	Data    any       `json:"data"`
}

type envelope struct {
	owner string
	data  []byte
}

// Hub 维护按 owner 划分的订阅者，所有注册、注销与广播都在 Run 的单个 goroutine 内完成。
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.RWMutex
	count   int
	dropped int64
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run 阻塞直到 ctx 结束，退出时关闭所有客户端。
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.setCount(0)
			return nil
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount(len(h.clients))
			logger.Debugf("ws: 客户端接入 owner=%s total=%d", c.owner, len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.setCount(len(h.clients))
		case msg := <-h.broadcast:
			for c := range h.clients {
				if c.owner != msg.owner {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					// slow client
					delete(h.clients, c)
					close(c.send)
					h.mu.Lock()
					h.dropped++
					h.mu.Unlock()
				}
			}
			h.setCount(len(h.clients))
		}
	}
}

// Publish 将事件异步推送给 owner 的订阅者；广播队列已满时丢弃。
func (h *Hub) Publish(owner, eventType string, data any) {
	payload, err := json.Marshal(Event{Type: eventType, OwnerID: owner, At: time.Now().UTC(), Data: data})
	if err != nil {
		logger.Warnf("ws: 序列化事件失败: %v", err)
		return
	}
	select {
	case h.broadcast <- envelope{owner: owner, data: payload}:
	case <-h.done:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
		logger.Warnf("ws: 广播队列已满，丢弃事件 owner=%s type=%s", owner, eventType)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
