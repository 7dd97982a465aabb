package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel Redis 发布频道
const DefaultChannel = "mes:inventory_update"

// Notifier 变更事件发布者
type Notifier interface {
	Publish(ctx context.Context, e entity.ChangeEvent) error
}

// Multi 依次发布到多个 Notifier，返回第一个错误
type Multi []Notifier

// Publish 发布事件
func (m Multi) Publish(ctx context.Context, e entity.ChangeEvent) error {
	var first error
	for _, n := range m {
		if err := n.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RedisNotifier 通过 Redis pub/sub 把事件发给所有实例
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisNotifier 创建 Redis 发布者
func NewRedisNotifier(client *redis.Client, channel string, logger *zap.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{client: client, channel: channel, logger: logger}
}

// Publish 发布事件到频道
func (n *RedisNotifier) Publish(ctx context.Context, e entity.ChangeEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Relay 订阅频道并把收到的事件转发到本地 Hub，ctx 取消时退出
func (n *RedisNotifier) Relay(ctx context.Context, hub *Hub) error {
	sub := n.client.Subscribe(ctx, n.channel)
	defer sub.Close()

	// 等待订阅确认
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	n.logger.Info("Relaying change events", zap.String("channel", n.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e entity.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				n.logger.Warn("Invalid change event payload", zap.Error(err))
				continue
			}
			if err := hub.Publish(ctx, e); err != nil {
				n.logger.Warn("Relay change event failed", zap.Error(err))
			}
		}
	}
}
