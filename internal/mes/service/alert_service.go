package service

import (
	"context"

	"github.com/Hsinwei-29/mes/internal/shared/feishu"
	"go.uber.org/zap"
)

// AlertOptions 飞书推送目标：ChatID 走应用凭证，WebhookURL 走群机器人
type AlertOptions struct {
	ChatID     string
	WebhookURL string
	Link       string // 卡片按钮跳转地址
}

// AlertService 缺料预警推送
type AlertService struct {
	client    *feishu.FeishuClient
	opts      AlertOptions
	shortage  *ShortageService
	inventory *InventoryService
	logger    *zap.Logger
}

// NewAlertService 创建预警服务，client 为 nil 时推送为空操作
func NewAlertService(client *feishu.FeishuClient, opts AlertOptions, shortage *ShortageService, inventory *InventoryService, logger *zap.Logger) *AlertService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertService{client: client, opts: opts, shortage: shortage, inventory: inventory, logger: logger}
}

// Enabled 是否配置了推送目标
func (s *AlertService) Enabled() bool {
	return s.client != nil && (s.opts.ChatID != "" || s.opts.WebhookURL != "")
}

// AlertSummary 推送内容摘要
type AlertSummary struct {
	Sent      bool `json:"sent"`
	Shortages int  `json:"shortages"`
	ZeroStock int  `json:"zero_stock"`
}

// SendShortageAlert 推送最终缺料 > 0 的行与零库存机型
func (s *AlertService) SendShortageAlert(ctx context.Context) (*AlertSummary, error) {
	short := s.shortage.Short()
	zero := s.inventory.ZeroStock()
	summary := &AlertSummary{Shortages: len(short), ZeroStock: len(zero)}
	if !s.Enabled() {
		s.logger.Debug("Feishu alert skipped, not configured")
		return summary, nil
	}

	items := make([]feishu.ShortageItem, 0, len(short))
	for _, l := range short {
		items = append(items, feishu.ShortageItem{
			WorkOrder:  l.WorkOrderID,
			Customer:   l.Customer,
			PartType:   l.PartType,
			PartNumber: l.PartNumber,
			Start:      formatDate(l.ProductionStart),
			Shortfall:  l.FinalShortfall,
		})
	}
	names := make([]string, 0, len(zero))
	for _, m := range zero {
		names = append(names, m.Name)
	}
	card := feishu.NewShortageAlertCard(items, len(short), names, s.opts.Link)

	var err error
	if s.opts.WebhookURL != "" {
		err = s.client.SendWebhookCard(ctx, s.opts.WebhookURL, card)
	} else {
		err = s.client.SendCard(ctx, s.opts.ChatID, card)
	}
	if err != nil {
		s.logger.Error("Feishu alert failed", zap.Error(err))
		return summary, err
	}
	summary.Sent = true
	s.logger.Info("Feishu alert sent", zap.Int("shortages", summary.Shortages), zap.Int("zero_stock", summary.ZeroStock))
	return summary, nil
}
