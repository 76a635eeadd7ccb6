package mq

import (
	"context"
)

// Producer defines the interface for message queue producers
type Producer interface {
	Produce(ctx context.Context, topic string, key string, data interface{}) error
	Close()
}

// Queue types accepted in message_queue.type.
const (
	TypeNone     = "none"
	TypeKafka    = "kafka"
	TypeRabbitMQ = "rabbitmq"
	TypeRedis    = "redis"
)

// NoOpProducer is used when the message queue is disabled
type NoOpProducer struct{}

func NewNoOpProducer() *NoOpProducer {
	return &NoOpProducer{}
}

func (p *NoOpProducer) Produce(ctx context.Context, topic string, key string, data interface{}) error {
	return nil
}

func (p *NoOpProducer) Close() {}
