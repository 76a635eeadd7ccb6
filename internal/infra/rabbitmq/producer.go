package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"inverter-drive/internal/config"
	"inverter-drive/internal/infra/mq"
)

const reconnectDelay = 5 * time.Second

type RabbitMQProducer struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	cfg        config.RabbitMQConfig
	url        string
	logger     *zap.Logger
	mu         sync.Mutex
	isClosed   bool
	reconnectC chan struct{}
	done       chan struct{}
}

var _ mq.Producer = (*RabbitMQProducer)(nil)

// NewRabbitMQProducer 不阻塞: 首次连接在后台进行, 失败后由重连循环接管
func NewRabbitMQProducer(cfg config.RabbitMQConfig, logger *zap.Logger) (*RabbitMQProducer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq: url is empty")
	}
	p := &RabbitMQProducer{
		cfg:        cfg,
		url:        buildURL(cfg.URL, cfg.VirtualHost),
		logger:     logger,
		reconnectC: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	go func() {
		p.logger.Info("Attempting initial RabbitMQ connection", zap.String("url", maskURL(p.url)))
		if err := p.connect(); err != nil {
			p.logger.Warn("Initial RabbitMQ connection failed (will retry in background)", zap.Error(err))
			p.signalReconnect()
		}
	}()
	go p.handleReconnect()

	return p, nil
}

// buildURL 把 virtual host 拼进连接地址, "/dev" 转义为 "%2fdev"
func buildURL(rawURL, vhost string) string {
	if vhost == "" {
		return rawURL
	}
	if strings.HasPrefix(vhost, "/") {
		vhost = "%2f" + vhost[1:]
	}
	scheme := strings.Index(rawURL, "://")
	if scheme < 0 {
		return strings.TrimSuffix(rawURL, "/") + "/" + vhost
	}
	hostStart := scheme + 3
	if slash := strings.Index(rawURL[hostStart:], "/"); slash >= 0 {
		// 已有路径时替换为 vhost
		return rawURL[:hostStart+slash] + "/" + vhost
	}
	return rawURL + "/" + vhost
}

func maskURL(raw string) string {
	if u, err := amqp.ParseURI(raw); err == nil {
		u.Password = "******"
		return u.String()
	}
	return raw
}

func (p *RabbitMQProducer) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed {
		return fmt.Errorf("producer closed")
	}

	p.logger.Debug("Connecting to RabbitMQ", zap.String("url", maskURL(p.url)))
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	// topic exchange, 路由键默认 drive.<id>.<type>
	err = ch.ExchangeDeclare(
		p.cfg.Exchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if p.cfg.QueueName != "" {
		p.logger.Debug("Declaring RabbitMQ queue",
			zap.String("queue", p.cfg.QueueName),
			zap.String("exchange", p.cfg.Exchange),
			zap.String("routing_key", p.cfg.RoutingKey))
		if _, err = ch.QueueDeclare(p.cfg.QueueName, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("failed to declare queue: %w", err)
		}
		if err = ch.QueueBind(p.cfg.QueueName, p.cfg.RoutingKey, p.cfg.Exchange, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("failed to bind queue: %w", err)
		}
	}

	p.conn = conn
	p.ch = ch

	go func() {
		if err := <-conn.NotifyClose(make(chan *amqp.Error, 1)); err != nil {
			p.logger.Warn("RabbitMQ connection closed", zap.Error(err))
		}
		p.signalReconnect()
	}()

	p.logger.Info("Connected to RabbitMQ", zap.String("exchange", p.cfg.Exchange))
	return nil
}

func (p *RabbitMQProducer) signalReconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed {
		return
	}
	select {
	case p.reconnectC <- struct{}{}:
	default:
	}
}

func (p *RabbitMQProducer) handleReconnect() {
	for {
		select {
		case <-p.done:
			return
		case <-p.reconnectC:
		}
		p.logger.Warn("RabbitMQ connection lost, attempting to reconnect...")
		for {
			err := p.connect()
			if err == nil {
				p.logger.Info("Reconnected to RabbitMQ")
				break
			}
			p.logger.Error("Failed to reconnect to RabbitMQ", zap.Error(err))
			select {
			case <-p.done:
				return
			case <-time.After(reconnectDelay):
			}
		}
	}
}

// Produce 发布到 exchange。topic 非空时作为路由键, 否则使用配置的路由键;
// key 放在消息头 "key" 中。
func (p *RabbitMQProducer) Produce(ctx context.Context, topic string, key string, data interface{}) error {
	p.mu.Lock()
	if p.isClosed {
		p.mu.Unlock()
		return fmt.Errorf("connection is closed")
	}
	if p.ch == nil || p.ch.IsClosed() {
		p.mu.Unlock()
		p.signalReconnect()
		return fmt.Errorf("RabbitMQ not connected")
	}
	ch := p.ch
	p.mu.Unlock()

	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	routingKey := p.cfg.RoutingKey
	if topic != "" {
		routingKey = topic
	}

	err = ch.PublishWithContext(ctx,
		p.cfg.Exchange, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Headers:     amqp.Table{"key": key},
			Body:        body,
			Timestamp:   time.Now(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	p.logger.Debug("Published message to RabbitMQ", zap.String("exchange", p.cfg.Exchange), zap.String("routing_key", routingKey))
	return nil
}

func (p *RabbitMQProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed {
		return
	}
	p.isClosed = true
	close(p.done)
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
