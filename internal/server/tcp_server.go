package server

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"

	"inverter-drive/internal/config"
	protocol "inverter-drive/internal/protocol/drivelink"
	handler "inverter-drive/internal/usecase/drivelink"
)

// connContext 保存每个连接的状态
type connContext struct {
	buffer  []byte
	scanner *protocol.PacketScanner
	addr    string
	authed  bool
}

// GnetConnWrapper 适配 usecase.Conn。写操作走 AsyncWrite,
// 因此可以在事件循环之外 (采样推送) 安全调用。
type GnetConnWrapper struct {
	conn gnet.Conn
	addr string
}

func (w *GnetConnWrapper) RemoteAddr() string {
	return w.addr
}

func (w *GnetConnWrapper) Close() error {
	return w.conn.Close()
}

func (w *GnetConnWrapper) Write(b []byte) (n int, err error) {
	if err := w.conn.AsyncWrite(b, nil); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (w *GnetConnWrapper) SetAuthenticated(v bool) {
	if ctx, ok := w.conn.Context().(*connContext); ok {
		ctx.authed = v
	}
}

func (w *GnetConnWrapper) IsAuthenticated() bool {
	if ctx, ok := w.conn.Context().(*connContext); ok {
		return ctx.authed
	}
	return false
}

type TCPServer struct {
	gnet.BuiltinEventEngine

	addr             string
	multicore        bool
	heartbeatTimeout time.Duration
	logger           *zap.Logger
	handler          *handler.Handler
}

func NewTCPServer(cfg *config.Config, logger *zap.Logger, h *handler.Handler) *TCPServer {
	return &TCPServer{
		addr:             fmt.Sprintf("tcp://%s:%d", cfg.Server.Host, cfg.Server.Port),
		multicore:        cfg.Server.Multicore,
		heartbeatTimeout: cfg.Server.HeartbeatTimeout,
		logger:           logger,
		handler:          h,
	}
}

func (s *TCPServer) OnBoot(eng gnet.Engine) (action gnet.Action) {
	s.logger.Info("TCP Server is booting", zap.String("address", s.addr))
	return
}

func (s *TCPServer) OnOpen(c gnet.Conn) (out []byte, action gnet.Action) {
	s.logger.Info("New connection opened", zap.String("remote_addr", c.RemoteAddr().String()))

	// 初始化连接上下文
	c.SetContext(&connContext{
		buffer:  make([]byte, 0, 4096),
		scanner: protocol.NewPacketScanner(protocol.HeaderLength + protocol.MaxDataLength + 1),
		addr:    c.RemoteAddr().String(),
	})
	return
}

func (s *TCPServer) OnTraffic(c gnet.Conn) (action gnet.Action) {
	ctx := c.Context().(*connContext)

	// 读取新数据
	buf, _ := c.Next(-1)
	if len(buf) == 0 {
		return
	}
	// 追加到连接缓冲区
	ctx.buffer = append(ctx.buffer, buf...)

	wrapper := &GnetConnWrapper{conn: c, addr: ctx.addr}
	for {
		advance, token, err := ctx.scanner.SplitFunc(ctx.buffer, false)
		if err != nil {
			s.logger.Error("Packet split error", zap.Error(err), zap.String("addr", ctx.addr))
			return gnet.Close
		}
		if advance == 0 {
			// 需要更多数据
			break
		}
		if token != nil {
			// token 引用连接缓冲区, Decode 前先复制
			frame := append([]byte(nil), token...)
			pkt, err := protocol.Decode(frame)
			if err != nil {
				s.logger.Warn("Failed to decode packet", zap.Error(err), zap.String("addr", ctx.addr))
			} else if err := s.handler.HandleMessage(wrapper, pkt); err != nil {
				s.logger.Warn("Handle message failed", zap.Error(err), zap.String("addr", ctx.addr))
			}
		}
		// 跳过垃圾数据或推进到下一帧
		ctx.buffer = ctx.buffer[advance:]
	}
	return
}

func (s *TCPServer) OnClose(c gnet.Conn, err error) (action gnet.Action) {
	s.logger.Info("Connection closed", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
	if ctx, ok := c.Context().(*connContext); ok {
		s.handler.OnClose(ctx.addr)
	}
	return
}

// OnTick 定期清理心跳超时的会话
func (s *TCPServer) OnTick() (delay time.Duration, action gnet.Action) {
	if s.heartbeatTimeout <= 0 {
		return time.Minute, gnet.None
	}
	s.handler.SessionMgr.CheckHeartbeat(s.heartbeatTimeout)
	return s.heartbeatTimeout / 2, gnet.None
}

func (s *TCPServer) OnShutdown(eng gnet.Engine) {
	s.logger.Info("TCP Server is shutting down")
}

// Start blocks until the engine stops.
func (s *TCPServer) Start(ctx context.Context) error {
	s.logger.Info("Starting TCP Server", zap.String("addr", s.addr))
	return gnet.Run(s, s.addr,
		gnet.WithMulticore(s.multicore),
		gnet.WithLogger(s.logger.Sugar()),
		gnet.WithReusePort(true),
		gnet.WithTicker(true),
	)
}

func (s *TCPServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping TCP Server...")
	return gnet.Stop(ctx, s.addr)
}
