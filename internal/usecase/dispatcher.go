package usecase

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"inverter-drive/internal/drive"
)

// DispatcherConfig 分发器配置
type DispatcherConfig struct {
	DriveID      string
	Topic        string
	Workers      int // 1 keeps messages in tick order
	QueueSize    int
	PublishEvery int // publish every Nth sample
}

// DataDispatcher 将仿真采样和故障事件异步投递到消息队列
type DataDispatcher struct {
	dataChan chan MQPayload
	producer DataProducer
	logger   *zap.Logger
	cfg      DispatcherConfig

	seen    atomic.Uint64
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ drive.Sink = (*DataDispatcher)(nil)

// NewDataDispatcher 创建一个新的数据分发器
func NewDataDispatcher(producer DataProducer, cfg DispatcherConfig, logger *zap.Logger) *DataDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.PublishEvery <= 0 {
		cfg.PublishEvery = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DataDispatcher{
		dataChan: make(chan MQPayload, cfg.QueueSize), // 带缓冲 Channel，防止阻塞
		producer: producer,
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 启动 worker 协程池
func (d *DataDispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Info("DataDispatcher started",
		zap.Int("workers", d.cfg.Workers),
		zap.Int("publish_every", d.cfg.PublishEvery))
}

// Stop 停止接收新数据, 等待已排队的数据发送完毕
func (d *DataDispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.dataChan)
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
	d.logger.Info("DataDispatcher stopped", zap.Uint64("dropped", d.dropped.Load()))
}

// Accept 实现 drive.Sink, 按 PublishEvery 抽样
func (d *DataDispatcher) Accept(s drive.Sample) {
	n := d.seen.Add(1)
	if (n-1)%uint64(d.cfg.PublishEvery) != 0 {
		return
	}
	d.Dispatch(MQPayload{Type: PayloadSample, DriveID: d.cfg.DriveID, Data: s})
}

// OnFault 转发故障状态变化, 不抽样
func (d *DataDispatcher) OnFault(t drive.FaultTransition) {
	d.Dispatch(MQPayload{Type: PayloadFault, DriveID: d.cfg.DriveID, Data: t})
}

// Dispatch 将数据投递到缓冲通道 (非阻塞，如果满则丢弃并记录)
func (d *DataDispatcher) Dispatch(p MQPayload) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.dataChan <- p:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("DataDispatcher channel full, dropping data", zap.String("type", p.Type))
		return false
	}
}

// Dropped 返回因队列满而丢弃的消息数
func (d *DataDispatcher) Dropped() uint64 { return d.dropped.Load() }

func (d *DataDispatcher) worker() {
	defer d.wg.Done()
	for p := range d.dataChan {
		d.process(p)
	}
}

func (d *DataDispatcher) process(p MQPayload) {
	if err := d.producer.Produce(d.ctx, d.cfg.Topic, d.cfg.DriveID, p); err != nil {
		d.logger.Error("DataDispatcher failed to send data", zap.Error(err), zap.String("type", p.Type))
	}
}
