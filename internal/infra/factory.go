package infra

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"inverter-drive/internal/config"
	"inverter-drive/internal/infra/kafka"
	"inverter-drive/internal/infra/mq"
	"inverter-drive/internal/infra/rabbitmq"
	"inverter-drive/internal/infra/redis"
)

// NewProducer 按 message_queue.type 选择实现, 未启用时返回 NoOpProducer
func NewProducer(cfg config.MessageQueueConfig, redisCfg config.RedisConfig, logger *zap.Logger) (mq.Producer, error) {
	if !cfg.Enabled {
		logger.Info("Message queue disabled")
		return mq.NewNoOpProducer(), nil
	}
	switch strings.ToLower(cfg.Type) {
	case "", mq.TypeNone:
		return mq.NewNoOpProducer(), nil
	case mq.TypeKafka:
		return kafka.NewKafkaProducer(cfg.Kafka, logger)
	case mq.TypeRabbitMQ:
		return rabbitmq.NewRabbitMQProducer(cfg.RabbitMQ, logger)
	case mq.TypeRedis:
		return redis.NewStreamProducer(redisCfg, cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unknown message queue type %q", cfg.Type)
	}
}
