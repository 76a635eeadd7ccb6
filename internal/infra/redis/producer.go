package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"inverter-drive/internal/config"
	"inverter-drive/internal/infra/mq"
)

// streamClient is the part of *redis.Client the producer uses.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// StreamProducer appends messages to a Redis stream with XADD.
type StreamProducer struct {
	rdb    streamClient
	stream string
	maxLen int64
	logger *zap.Logger
}

var _ mq.Producer = (*StreamProducer)(nil)

func NewStreamProducer(rc config.RedisConfig, sc config.RedisStreamConfig, logger *zap.Logger) (*StreamProducer, error) {
	if rc.Addr == "" {
		return nil, fmt.Errorf("redis: addr is empty")
	}
	if sc.Stream == "" {
		return nil, fmt.Errorf("redis: stream is empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	logger.Info("Initialized Redis stream producer", zap.String("addr", rc.Addr), zap.String("stream", sc.Stream))
	return &StreamProducer{rdb: rdb, stream: sc.Stream, maxLen: sc.MaxLen, logger: logger}, nil
}

// Produce 写入 topic 对应的 stream, topic 为空时使用默认 stream
func (p *StreamProducer) Produce(ctx context.Context, topic string, key string, data interface{}) error {
	args, err := p.xaddArgs(topic, key, data)
	if err != nil {
		return err
	}
	if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("XADD %s: %w", args.Stream, err)
	}
	return nil
}

func (p *StreamProducer) xaddArgs(topic, key string, data interface{}) (*redis.XAddArgs, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}
	stream := p.stream
	if topic != "" {
		stream = topic
	}
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"key": key, "message": string(body)},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	return args, nil
}

func (p *StreamProducer) Close() {
	if err := p.rdb.Close(); err != nil {
		p.logger.Error("Failed to close Redis client", zap.Error(err))
	}
}
