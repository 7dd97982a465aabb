// Package auth 本地用户与登录令牌
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// 默认管理员，用户文件不存在时创建
const (
	DefaultAdminUser     = "admin"
	DefaultAdminPassword = "admin123"
)

var ErrUserExists = errors.New("user already exists")

// User 用户记录，密码只保存 bcrypt 哈希
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	DisplayName  string `json:"display_name"`
	Role         string `json:"role"`
}

// UserStore JSON 文件中的用户表
type UserStore struct {
	path   string
	mu     sync.RWMutex
	users  map[string]User
	logger *zap.Logger
}

// OpenUserStore 读取用户文件，不存在时写入默认管理员
func OpenUserStore(path string, logger *zap.Logger) (*UserStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &UserStore{path: path, users: make(map[string]User), logger: logger}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if _, err := s.Add(DefaultAdminUser, DefaultAdminPassword, "管理员", "admin"); err != nil {
			return nil, err
		}
		logger.Warn("Users file missing, default admin created", zap.String("path", path))
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read users file: %w", err)
	}

	var list []User
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	for _, u := range list {
		s.users[u.Username] = u
	}
	return s, nil
}

// Add 新增用户并持久化
func (s *UserStore) Add(username, password, displayName, role string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return nil, ErrUserExists
	}
	u := User{Username: username, PasswordHash: string(hash), DisplayName: displayName, Role: role}
	s.users[username] = u
	if err := s.save(); err != nil {
		delete(s.users, username)
		return nil, err
	}
	return &u, nil
}

// Get 按用户名查找
func (s *UserStore) Get(username string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	return u, ok
}

// Verify 校验密码，失败返回 false
func (s *UserStore) Verify(username, password string) (User, bool) {
	u, ok := s.Get(username)
	if !ok {
		return User{}, false
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, false
	}
	return u, true
}

func (s *UserStore) save() error {
	list := make([]User, 0, len(s.users))
	for _, u := range s.users {
		list = append(list, u)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Username < list[j].Username })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal users: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create users dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write users file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace users file: %w", err)
	}
	return nil
}
