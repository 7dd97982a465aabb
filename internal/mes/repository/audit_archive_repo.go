package repository

import (
	"context"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AuditArchiveRepository 审计日志归档（Postgres，不截断）
type AuditArchiveRepository struct {
	db *gorm.DB
}

func NewAuditArchiveRepository(db *gorm.DB) *AuditArchiveRepository {
	return &AuditArchiveRepository{db: db}
}

// AutoMigrate 建表
func (r *AuditArchiveRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&entity.AuditEntry{})
}

// Create 归档一条记录，相同 ID 重复写入时忽略
func (r *AuditArchiveRepository) Create(ctx context.Context, e *entity.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(e).Error
}

// FindByItem 查询某条目的历史，分页
func (r *AuditArchiveRepository) FindByItem(ctx context.Context, partType, itemID string, page, pageSize int) ([]entity.AuditEntry, int64, error) {
	var items []entity.AuditEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.AuditEntry{}).
		Where("part_type = ? AND item_id = ?", partType, itemID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	err := query.
		Order("timestamp DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// CountByPart 各铸件类型的累计修改次数
func (r *AuditArchiveRepository) CountByPart(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		PartType string
		Count    int64
	}
	err := r.db.WithContext(ctx).Model(&entity.AuditEntry{}).
		Select("part_type, COUNT(*) AS count").
		Group("part_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.PartType] = row.Count
	}
	return out, nil
}
