package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"go.uber.org/zap"
)

// DefaultAuditMaxEntries 审计日志保留条数
const DefaultAuditMaxEntries = 500

// AuditFileRepository 审计日志文件：JSON 数组，最新在前，超过上限截断
type AuditFileRepository struct {
	path   string
	max    int
	logger *zap.Logger

	mu sync.Mutex
}

// NewAuditFileRepository 创建审计日志文件仓库
func NewAuditFileRepository(path string, max int, logger *zap.Logger) *AuditFileRepository {
	if max <= 0 {
		max = DefaultAuditMaxEntries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditFileRepository{path: path, max: max, logger: logger}
}

// Path 日志文件路径
func (r *AuditFileRepository) Path() string { return r.path }

// Append 插入到最前并截断到上限
func (r *AuditFileRepository) Append(ctx context.Context, e entity.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.read()
	if err != nil {
		return err
	}
	entries = append([]entity.AuditEntry{e}, entries...)
	if len(entries) > r.max {
		entries = entries[:r.max]
	}
	return r.write(entries)
}

// List 全部记录，最新在前
func (r *AuditFileRepository) List(ctx context.Context) ([]entity.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read()
}

// ListByPart 某铸件类型的记录，limit <= 0 表示不限
func (r *AuditFileRepository) ListByPart(ctx context.Context, partType string, limit int) ([]entity.AuditEntry, error) {
	return r.filter(func(e entity.AuditEntry) bool { return e.PartType == partType }, limit)
}

// ListByItem 某条目的记录
func (r *AuditFileRepository) ListByItem(ctx context.Context, partType, itemID string, limit int) ([]entity.AuditEntry, error) {
	return r.filter(func(e entity.AuditEntry) bool {
		return e.PartType == partType && e.ItemID == itemID
	}, limit)
}

func (r *AuditFileRepository) filter(match func(entity.AuditEntry) bool, limit int) ([]entity.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.read()
	if err != nil {
		return nil, err
	}
	out := make([]entity.AuditEntry, 0)
	for _, e := range entries {
		if !match(e) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// read 文件不存在视为空；内容损坏时记录日志并视为空，下次写入覆盖
func (r *AuditFileRepository) read() ([]entity.AuditEntry, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []entity.AuditEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		r.logger.Warn("Audit log corrupted, starting fresh", zap.String("path", r.path), zap.Error(err))
		return nil, nil
	}
	return entries, nil
}

func (r *AuditFileRepository) write(entries []entity.AuditEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal audit log: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write audit log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace audit log: %w", err)
	}
	return nil
}
