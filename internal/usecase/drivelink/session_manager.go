package drivelink

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"inverter-drive/internal/drive"
	protocol "inverter-drive/internal/protocol/drivelink"
	"inverter-drive/internal/usecase"
)

// Session 代表一个已登入的客户端连接
type Session struct {
	Addr      string
	Conn      usecase.Conn
	LoginTime time.Time // 登入时间

	lastActive atomic.Int64  // unix nano
	every      atomic.Uint32 // 0 = not subscribed
}

func (s *Session) touch(now time.Time) { s.lastActive.Store(now.UnixNano()) }

// LastActive 最后活跃时间
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

// Subscribed reports the sample decimation, 0 when not subscribed.
func (s *Session) Subscribed() uint16 { return uint16(s.every.Load()) }

// SessionManager 管理客户端会话, 同时作为采样 Sink 向订阅者推送数据
type SessionManager struct {
	sessions sync.Map // map[string]*Session (remote addr -> Session)
	driveID  string
	logger   *zap.Logger
	now      func() time.Time
	dropped  atomic.Uint64
}

var _ drive.Sink = (*SessionManager)(nil)

// NewSessionManager 创建一个新的会话管理器
func NewSessionManager(driveID string, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		driveID: driveID,
		logger:  logger,
		now:     time.Now,
	}
}

// Add 为连接创建或替换会话
func (sm *SessionManager) Add(conn usecase.Conn) *Session {
	now := sm.now()
	session := &Session{Addr: conn.RemoteAddr(), Conn: conn, LoginTime: now}
	session.touch(now)
	sm.sessions.Store(session.Addr, session)
	sm.logger.Info("[SessionManager] Session Added", zap.String("remote_addr", session.Addr))
	return session
}

// Remove 删除会话并关闭连接
func (sm *SessionManager) Remove(addr string) {
	if val, ok := sm.sessions.LoadAndDelete(addr); ok {
		sess := val.(*Session)
		sm.logger.Info("[SessionManager] Session Removed", zap.String("remote_addr", sess.Addr))
		_ = sess.Conn.Close()
	}
}

// Forget 删除会话但不关闭连接 (连接已由对端关闭)
func (sm *SessionManager) Forget(addr string) {
	if _, ok := sm.sessions.LoadAndDelete(addr); ok {
		sm.logger.Info("[SessionManager] Session Closed", zap.String("remote_addr", addr))
	}
}

// Get 获取会话
func (sm *SessionManager) Get(addr string) (*Session, bool) {
	val, ok := sm.sessions.Load(addr)
	if !ok {
		return nil, false
	}
	return val.(*Session), true
}

// UpdateLastActive 更新会话的心跳时间
func (sm *SessionManager) UpdateLastActive(addr string) {
	if sess, ok := sm.Get(addr); ok {
		sess.touch(sm.now())
	}
}

// Subscribe 开始推送采样, every 为抽样间隔
func (sm *SessionManager) Subscribe(addr string, every uint16) bool {
	sess, ok := sm.Get(addr)
	if !ok {
		return false
	}
	if every == 0 {
		every = 1
	}
	sess.every.Store(uint32(every))
	sm.logger.Info("[SessionManager] Subscribed", zap.String("remote_addr", addr), zap.Uint16("every", every))
	return true
}

func (sm *SessionManager) Unsubscribe(addr string) {
	if sess, ok := sm.Get(addr); ok {
		sess.every.Store(0)
	}
}

// Count 返回当前会话数
func (sm *SessionManager) Count() int {
	n := 0
	sm.sessions.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// CheckHeartbeat 检查过期的会话并关闭它们。
func (sm *SessionManager) CheckHeartbeat(timeout time.Duration) {
	now := sm.now()
	sm.sessions.Range(func(key, value interface{}) bool {
		sess := value.(*Session)
		if idle := now.Sub(sess.LastActive()); idle > timeout {
			sm.logger.Info("[SessionManager] Session Timeout", zap.String("remote_addr", sess.Addr), zap.Duration("inactive_duration", idle))
			sm.Remove(sess.Addr)
		}
		return true // 继续遍历
	})
}

// Accept 实现 drive.Sink: 按各订阅者的抽样间隔编码并异步写出。
// 编码结果在同一 tick 的订阅者之间共享。
func (sm *SessionManager) Accept(s drive.Sample) {
	var frame []byte
	sm.sessions.Range(func(_, value interface{}) bool {
		sess := value.(*Session)
		every := uint64(sess.every.Load())
		if every == 0 || s.Tick%every != 0 {
			return true
		}
		if frame == nil {
			var err error
			if frame, err = sm.encodeSample(s); err != nil {
				sm.logger.Error("Failed to encode sample", zap.Error(err))
				return false
			}
		}
		if _, err := sess.Conn.Write(frame); err != nil {
			sm.dropped.Add(1)
			sm.logger.Warn("Failed to push sample", zap.String("remote_addr", sess.Addr), zap.Error(err))
		}
		return true
	})
}

// Dropped 返回推送失败的帧数
func (sm *SessionManager) Dropped() uint64 { return sm.dropped.Load() }

func (sm *SessionManager) encodeSample(s drive.Sample) ([]byte, error) {
	data := &protocol.SampleData{
		CollectTime: sm.now(),
		Units:       []protocol.SampleUnit{protocol.NewSampleUnit(s)},
	}
	body, err := data.Encode()
	if err != nil {
		return nil, err
	}
	return protocol.EncodePacket(&protocol.Packet{
		Command:    protocol.CmdSample,
		Response:   protocol.RespCommand,
		DriveID:    sm.driveID,
		Encryption: protocol.EncNone,
		DataUnit:   body,
	})
}
