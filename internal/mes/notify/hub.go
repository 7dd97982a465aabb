// Package notify 库存变更推送：本地 SSE 连接管理与跨实例的 Redis 转发
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"go.uber.org/zap"
)

// EventInventoryUpdate 库存变更事件名
const EventInventoryUpdate = "inventory_update"

// Event 一条 SSE 事件
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client 一个 SSE 连接
type Client struct {
	ID     string
	UserID string
	Events chan Event
}

// Hub 管理本实例的 SSE 连接
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub 创建 Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register 注册连接
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("SSE client registered",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID),
		zap.Int("total", len(h.clients)),
	)
}

// Unregister 注销连接并关闭其事件通道
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("SSE client unregistered", zap.String("client_id", clientID), zap.Int("total", len(h.clients)))
	}
}

// Count 当前连接数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast 广播事件，缓冲区满的连接跳过
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("SSE client buffer full, skipping event", zap.String("client_id", client.ID))
		}
	}
}

// Publish 将变更事件广播给本实例所有连接
func (h *Hub) Publish(ctx context.Context, e entity.ChangeEvent) error {
	ev, err := inventoryEvent(e)
	if err != nil {
		return err
	}
	h.Broadcast(ev)
	return nil
}

func inventoryEvent(e entity.ChangeEvent) (Event, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Event{}, fmt.Errorf("marshal change event: %w", err)
	}
	return Event{EventType: EventInventoryUpdate, Data: string(data)}, nil
}
