package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/repository"
	"go.uber.org/zap"
)

// 查询默认条数
const (
	DefaultAuditLimit     = 50
	DefaultItemAuditLimit = 100
	recentActivityLimit   = 20
	recentActivityWindow  = 7 * 24 * time.Hour
)

// AuditService 审计日志：文件为准，配置数据库时同步归档
type AuditService struct {
	file    *repository.AuditFileRepository
	archive *repository.AuditArchiveRepository
	logger  *zap.Logger
	now     func() time.Time
}

// NewAuditService 创建审计服务，archive 可为 nil
func NewAuditService(file *repository.AuditFileRepository, archive *repository.AuditArchiveRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{file: file, archive: archive, logger: logger, now: time.Now}
}

// Append 写入审计日志；归档失败只记录日志
func (s *AuditService) Append(ctx context.Context, e entity.AuditEntry) error {
	if err := s.file.Append(ctx, e); err != nil {
		return err
	}
	if s.archive != nil {
		archived := e
		if err := s.archive.Create(ctx, &archived); err != nil {
			s.logger.Warn("Audit archive failed", zap.String("id", e.ID), zap.Error(err))
		}
	}
	return nil
}

// Log 某铸件类型的修改记录
func (s *AuditService) Log(ctx context.Context, partType string, limit int) ([]entity.AuditEntry, error) {
	if partType == "" {
		return nil, fmt.Errorf("%w: 铸件类型不能为空", ErrValidation)
	}
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	return s.file.ListByPart(ctx, partType, limit)
}

// ItemLog 某条目的修改记录
func (s *AuditService) ItemLog(ctx context.Context, partType, itemID string, limit int) ([]entity.AuditEntry, error) {
	if partType == "" || itemID == "" {
		return nil, fmt.Errorf("%w: 铸件类型与条目不能为空", ErrValidation)
	}
	if limit <= 0 {
		limit = DefaultItemAuditLimit
	}
	return s.file.ListByItem(ctx, partType, itemID, limit)
}

// Stats 修改次数、涉及条目数、操作人数、近7天最近20条
func (s *AuditService) Stats(ctx context.Context, partType string) (*entity.AuditStats, error) {
	entries, err := s.file.ListByPart(ctx, partType, 0)
	if err != nil {
		return nil, err
	}

	items := make(map[string]bool)
	users := make(map[string]bool)
	cutoff := s.now().Add(-recentActivityWindow)
	stats := &entity.AuditStats{TotalEdits: len(entries), RecentActivity: make([]entity.AuditEntry, 0)}
	for _, e := range entries {
		items[e.ItemID] = true
		users[e.User] = true
		if len(stats.RecentActivity) < recentActivityLimit && !e.Time().Before(cutoff) {
			stats.RecentActivity = append(stats.RecentActivity, e)
		}
	}
	stats.UniqueItems = len(items)
	stats.UniqueUsers = len(users)

	if s.archive != nil {
		counts, err := s.archive.CountByPart(ctx)
		if err != nil {
			s.logger.Warn("Audit archive count failed", zap.Error(err))
		} else {
			stats.ArchivedEdits = counts[partType]
		}
	}
	return stats, nil
}

// ArchivePage 归档库分页结果
type ArchivePage struct {
	Items    []entity.AuditEntry `json:"items"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// ArchiveLog 从归档库分页查询某条目的全部修改记录
func (s *AuditService) ArchiveLog(ctx context.Context, partType, itemID string, page, pageSize int) (*ArchivePage, error) {
	if s.archive == nil {
		return nil, fmt.Errorf("%w: 未配置审计归档库", ErrNotFound)
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = DefaultAuditLimit
	}
	items, total, err := s.archive.FindByItem(ctx, partType, itemID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("query audit archive: %w", err)
	}
	return &ArchivePage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}
