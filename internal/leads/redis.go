package leads

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ListPusher is the part of a redis client the sink needs.
type ListPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisSink appends each lead as JSON to a redis list for downstream
// workers (mailers, CRM import).
type RedisSink struct {
	client ListPusher
	key    string
}

func NewRedisSink(client ListPusher, key string) *RedisSink {
	return &RedisSink{client: client, key: key}
}

func (*RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, l Lead) error {
	payload, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal lead: %w", err)
	}
	if err := s.client.RPush(ctx, s.key, payload).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", s.key, err)
	}
	return nil
}
