package entity

import "time"

// AuditTimeLayout 审计日志时间格式
const AuditTimeLayout = "2006-01-02 15:04:05"

// AuditEntry 单次修改记录，写入后不可变
type AuditEntry struct {
	ID        string `json:"id" gorm:"primaryKey;size:36"`
	Timestamp string `json:"timestamp" gorm:"size:19;index"`
	User      string `json:"user" gorm:"size:100"`
	PartType  string `json:"part" gorm:"size:50;index:idx_mes_audit_item"`
	ItemID    string `json:"item_id" gorm:"size:64;index:idx_mes_audit_item"`
	Field     string `json:"field" gorm:"size:100"`
	OldValue  int    `json:"old_value"`
	NewValue  int    `json:"new_value"`
}

func (AuditEntry) TableName() string {
	return "mes_audit_entries"
}

// Time 解析时间戳，格式错误返回零值
func (e AuditEntry) Time() time.Time {
	t, err := time.ParseInLocation(AuditTimeLayout, e.Timestamp, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AuditStats 某铸件类型的审计统计
type AuditStats struct {
	TotalEdits     int          `json:"total_edits"`
	UniqueItems    int          `json:"unique_items"`
	UniqueUsers    int          `json:"unique_users"`
	RecentActivity []AuditEntry `json:"recent_activity"`
	ArchivedEdits  int64        `json:"archived_edits,omitempty"` // 归档库中的总修改次数，不受文件条数上限影响
}

// ChangeEvent 变更推送事件
type ChangeEvent struct {
	PartType  string `json:"part_type"`
	ItemID    string `json:"item_id"`
	Field     string `json:"field"`
	OldValue  int    `json:"old_value"`
	NewValue  int    `json:"new_value"`
	Actor     string `json:"actor"`
	Timestamp string `json:"timestamp"`
}

// ChangeEventFrom 由审计记录生成推送事件
func ChangeEventFrom(e AuditEntry) ChangeEvent {
	return ChangeEvent{
		PartType:  e.PartType,
		ItemID:    e.ItemID,
		Field:     e.Field,
		OldValue:  e.OldValue,
		NewValue:  e.NewValue,
		Actor:     e.User,
		Timestamp: e.Timestamp,
	}
}
