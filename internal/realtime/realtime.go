package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/hansonjs80-design/PTperfect/internal/models"
)

// BedChange 床位变更推送消息
// ClientID 为发布方实例标识，订阅方据此丢弃自己的回声
type BedChange struct {
	ClientID string     `json:"client_id"`
	Bed      models.Bed `json:"bed"`
}

// Publisher 床位变更发布器（每次本地写入后广播整行）
type Publisher struct {
	client   *redis.Client
	channel  string
	clientID string
	logger   *zap.Logger
}

// NewPublisher 创建发布器
func NewPublisher(client *redis.Client, channel, clientID string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:   client,
		channel:  channel,
		clientID: clientID,
		logger:   logger,
	}
}

// PublishBed 广播床位变更
func (p *Publisher) PublishBed(ctx context.Context, bed models.Bed) error {
	msg := BedChange{
		ClientID: p.clientID,
		Bed:      bed,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal bed change: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish bed change: %w", err)
	}

	return nil
}

// Subscriber 床位变更订阅器
type Subscriber struct {
	client   *redis.Client
	channel  string
	clientID string
	logger   *zap.Logger
}

// NewSubscriber 创建订阅器
func NewSubscriber(client *redis.Client, channel, clientID string, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		client:   client,
		channel:  channel,
		clientID: clientID,
		logger:   logger,
	}
}

// Run 订阅循环，收到远端床位变更后交给 handler 合并
// 阻塞直到 ctx 取消；自己发布的消息在此处丢弃
func (s *Subscriber) Run(ctx context.Context, handler func(models.Bed)) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// 确认订阅建立
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	s.logger.Info("Realtime subscription established",
		zap.String("channel", s.channel),
	)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var change BedChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				s.logger.Warn("Failed to unmarshal bed change, skipping",
					zap.Error(err),
				)
				continue
			}

			if change.ClientID == s.clientID {
				continue
			}

			handler(change.Bed)
		}
	}
}
