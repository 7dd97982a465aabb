package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// TokenOptions 令牌签发参数
type TokenOptions struct {
	Secret string
	Issuer string
	Expire time.Duration
}

// Token 登录结果
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        *UserInfo `json:"user"`
}

// UserInfo 对外暴露的用户信息
type UserInfo struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// AuthService 认证服务
type AuthService struct {
	users  *UserStore
	opts   TokenOptions
	logger *zap.Logger
	now    func() time.Time
}

// NewAuthService 创建认证服务
func NewAuthService(users *UserStore, opts TokenOptions, logger *zap.Logger) *AuthService {
	if opts.Expire <= 0 {
		opts.Expire = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{users: users, opts: opts, logger: logger, now: time.Now}
}

// Login 校验密码并签发令牌
func (s *AuthService) Login(username, password string) (*Token, error) {
	u, ok := s.users.Verify(username, password)
	if !ok {
		s.logger.Warn("Login failed", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}
	token, err := s.generateToken(u)
	if err != nil {
		return nil, err
	}
	s.logger.Info("User logged in", zap.String("username", username))
	return token, nil
}

// CurrentUser 按用户名返回用户信息
func (s *AuthService) CurrentUser(username string) (*UserInfo, bool) {
	u, ok := s.users.Get(username)
	if !ok {
		return nil, false
	}
	return infoOf(u), true
}

func (s *AuthService) generateToken(u User) (*Token, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   u.Username,
		"uid":   u.Username,
		"name":  u.DisplayName,
		"roles": []string{u.Role},
		"iss":   s.opts.Issuer,
		"iat":   now.Unix(),
		"exp":   now.Add(s.opts.Expire).Unix(),
		"jti":   uuid.New().String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.opts.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &Token{
		AccessToken: signed,
		ExpiresIn:   int64(s.opts.Expire.Seconds()),
		User:        infoOf(u),
	}, nil
}

func infoOf(u User) *UserInfo {
	return &UserInfo{Username: u.Username, DisplayName: u.DisplayName, Role: u.Role}
}
