package drivelink

import (
	"errors"
	"fmt"

	"inverter-drive/internal/config"
)

// AuthService 定义认证服务接口
type AuthService interface {
	// Login 验证用户名和密码 (平台登入 0x05)
	Login(username, password string) error
}

// InMemoryAuthService 基于内存的简单认证服务
type InMemoryAuthService struct {
	// 用户: Username -> Password
	users map[string]string
}

// NewInMemoryAuthService 使用配置中的用户构建, 未配置时保留 admin/admin
func NewInMemoryAuthService(authCfg config.AuthConfig) *InMemoryAuthService {
	users := make(map[string]string)
	if len(authCfg.Users) == 0 {
		users["admin"] = "admin"
	}
	for _, u := range authCfg.Users {
		users[u.Username] = u.Password
	}
	return &InMemoryAuthService{users: users}
}

func (s *InMemoryAuthService) Login(username, password string) error {
	expectedPwd, ok := s.users[username]
	if !ok {
		return fmt.Errorf("未知用户: %s", username)
	}
	if expectedPwd != password {
		return errors.New("密码错误")
	}
	return nil
}
