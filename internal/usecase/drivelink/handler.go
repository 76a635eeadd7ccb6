package drivelink

import (
	"encoding/hex"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"inverter-drive/internal/drive"
	"inverter-drive/internal/params"
	protocol "inverter-drive/internal/protocol/drivelink"
	"inverter-drive/internal/simulator"
	"inverter-drive/internal/usecase"
)

// ErrNotAuthenticated 未登入的连接发送了控制命令
var ErrNotAuthenticated = errors.New("drivelink: not authenticated")

// DriveController 是处理器可以操作的仿真运行器
type DriveController interface {
	ApplyParams(updates []params.Update) error
	InjectFault(kind drive.FaultKind) error
	ClearFault()
	ResetController()
	Status() simulator.Status
}

type Handler struct {
	SessionMgr *SessionManager
	Drive      DriveController
	Auth       AuthService
	logger     *zap.Logger
	now        func() time.Time
}

func NewHandler(sm *SessionManager, ctrl DriveController, auth AuthService, logger *zap.Logger) *Handler {
	return &Handler{
		SessionMgr: sm,
		Drive:      ctrl,
		Auth:       auth,
		logger:     logger,
		now:        time.Now,
	}
}

// HandleMessage 处理单个解析后的报文
func (h *Handler) HandleMessage(conn usecase.Conn, packet *protocol.Packet) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			h.logger.Error("Panic in HandleMessage",
				zap.Any("recover", r),
				zap.String("remote_addr", conn.RemoteAddr()),
				zap.String("stack", string(stack)))
			err = fmt.Errorf("internal server error: %v", r)
		}
	}()

	if packet.Command == protocol.CmdLogin {
		return h.handleLogin(conn, packet)
	}
	if !conn.IsAuthenticated() {
		h.logger.Warn("Refused command: not logged in",
			zap.String("remote_addr", conn.RemoteAddr()),
			zap.Uint8("command", packet.Command))
		h.reply(conn, packet, false, nil)
		return ErrNotAuthenticated
	}
	h.SessionMgr.UpdateLastActive(conn.RemoteAddr())

	switch packet.Command {
	case protocol.CmdSubscribe:
		return h.handleSubscribe(conn, packet)
	case protocol.CmdUnsubscribe:
		h.SessionMgr.Unsubscribe(conn.RemoteAddr())
		h.reply(conn, packet, true, nil)
		return nil
	case protocol.CmdHeartbeat:
		h.reply(conn, packet, true, nil)
		return nil
	case protocol.CmdSetParams:
		return h.handleSetParams(conn, packet)
	case protocol.CmdFault:
		return h.handleFault(conn, packet)
	case protocol.CmdStatus:
		return h.handleStatus(conn, packet)
	default:
		h.logger.Warn("Received unknown command",
			zap.String("remote_addr", conn.RemoteAddr()),
			zap.Uint8("command", packet.Command))
		h.reply(conn, packet, false, nil)
		return nil
	}
}

// OnClose 连接关闭时清理会话
func (h *Handler) OnClose(addr string) {
	h.SessionMgr.Forget(addr)
}

func (h *Handler) handleLogin(conn usecase.Conn, packet *protocol.Packet) error {
	loginData, err := protocol.ParseLogin(packet.DataUnit)
	if err != nil {
		h.reply(conn, packet, false, nil)
		return fmt.Errorf("登入解析失败: %w", err)
	}

	h.logger.Info("Login Request",
		zap.String("username", loginData.Username),
		zap.String("remote_addr", conn.RemoteAddr()),
		zap.String("raw_hex", hex.EncodeToString(packet.DataUnit[:protocol.LoginDataLength-20])))

	// 认证校验
	if h.Auth != nil {
		if err := h.Auth.Login(loginData.Username, loginData.Password); err != nil {
			h.logger.Warn("Auth failed", zap.String("username", loginData.Username), zap.Error(err))
			h.reply(conn, packet, false, nil)
			return fmt.Errorf("鉴权失败: %w", err)
		}
	}

	conn.SetAuthenticated(true)
	h.SessionMgr.Add(conn)
	h.reply(conn, packet, true, nil)
	return nil
}

func (h *Handler) handleSubscribe(conn usecase.Conn, packet *protocol.Packet) error {
	sub, err := protocol.ParseSubscribe(packet.DataUnit)
	if err != nil {
		h.reply(conn, packet, false, nil)
		return fmt.Errorf("订阅解析失败: %w", err)
	}
	ok := h.SessionMgr.Subscribe(conn.RemoteAddr(), sub.Every)
	h.reply(conn, packet, ok, nil)
	return nil
}

func (h *Handler) handleSetParams(conn usecase.Conn, packet *protocol.Packet) error {
	pd, err := protocol.ParseParams(packet.DataUnit)
	if err != nil {
		h.reply(conn, packet, false, nil)
		return fmt.Errorf("参数解析失败: %w", err)
	}
	updates := make([]params.Update, 0, len(pd.Entries))
	for _, e := range pd.Entries {
		updates = append(updates, params.Update{ID: e.ID, Value: e.Value})
	}
	if err := h.Drive.ApplyParams(updates); err != nil {
		h.logger.Warn("Parameter write rejected", zap.String("remote_addr", conn.RemoteAddr()), zap.Error(err))
		h.reply(conn, packet, false, nil)
		return nil
	}
	h.logger.Info("Parameters updated", zap.String("remote_addr", conn.RemoteAddr()), zap.Int("count", len(updates)))
	h.reply(conn, packet, true, nil)
	return nil
}

func (h *Handler) handleFault(conn usecase.Conn, packet *protocol.Packet) error {
	fd, err := protocol.ParseFault(packet.DataUnit)
	if err != nil {
		h.reply(conn, packet, false, nil)
		return fmt.Errorf("故障命令解析失败: %w", err)
	}

	logger := h.logger.With(zap.String("remote_addr", conn.RemoteAddr()), zap.Stringer("action", fd.Action))
	ok := true
	switch fd.Action {
	case protocol.FaultInject:
		if err := h.Drive.InjectFault(fd.Kind); err != nil {
			logger.Warn("Fault injection rejected", zap.Stringer("fault", fd.Kind), zap.Error(err))
			ok = false
		} else {
			logger.Info("Fault injected", zap.Stringer("fault", fd.Kind))
		}
	case protocol.FaultClear:
		h.Drive.ClearFault()
		logger.Info("Fault cleared")
	case protocol.FaultResetController:
		h.Drive.ResetController()
		logger.Info("Controller reset")
	}
	h.reply(conn, packet, ok, nil)
	return nil
}

func (h *Handler) handleStatus(conn usecase.Conn, packet *protocol.Packet) error {
	st := h.Drive.Status()
	data := &protocol.StatusData{
		CollectTime:         h.now(),
		Tick:                st.Tick,
		SimTime:             st.SimTime,
		Speed:               st.Speed,
		Torque:              st.Torque,
		MotorTemperature:    st.MotorTemperature,
		InverterTemperature: st.InverterTemperature,
		Fault:               st.Fault,
		Mode:                st.Mode,
		ThermalTrip:         st.ThermalTrip,
	}
	h.reply(conn, packet, true, data.Encode())
	return nil
}

func (h *Handler) reply(conn usecase.Conn, req *protocol.Packet, ok bool, data []byte) {
	respBytes, err := protocol.BuildResponse(req, ok, data)
	if err != nil {
		h.logger.Error("Failed to build response", zap.Error(err), zap.Uint8("command", req.Command))
		return
	}
	if _, err := conn.Write(respBytes); err != nil {
		h.logger.Error("Failed to send response", zap.Error(err), zap.Uint8("command", req.Command))
	}
}
