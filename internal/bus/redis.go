package bus

import (
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis"
)

// RedisPublisher publishes JSON payloads on "<prefix>.<topic>" channels.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

var _ Publisher = (*RedisPublisher)(nil)

func NewRedisPublisher(addr, password string, db int, prefix string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping().Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}
	return &RedisPublisher{client: client, prefix: prefix}, nil
}

func (p *RedisPublisher) Publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	channel := topic
	if p.prefix != "" {
		channel = p.prefix + "." + topic
	}
	return p.client.Publish(channel, data).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
