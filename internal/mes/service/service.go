package service

import (
	"errors"

	"github.com/Hsinwei-29/mes/internal/mes/cache"
	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/extractor"
	"github.com/Hsinwei-29/mes/internal/mes/ident"
	"github.com/Hsinwei-29/mes/internal/mes/reconcile"
	"github.com/Hsinwei-29/mes/internal/mes/repository"
	"github.com/Hsinwei-29/mes/internal/mes/workbook"
	"github.com/Hsinwei-29/mes/internal/shared/feishu"
	"go.uber.org/zap"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// 缓存名称
const (
	CacheInventory  = "inventory"
	CacheWorkOrders = "work_orders"
	CachePicking    = "picking"
	CacheShortage   = "shortage"
)

// SourceOptions 三份源文件及解析参数
type SourceOptions struct {
	CastingFile       string
	WorkOrderFile     string
	PickingFile       string
	WorkOrderEncoding string

	PartTypes       []entity.PartTypeConfig
	ModelSuffixes   []string
	WorkOrderFilter extractor.WorkOrderFilter
	WorkOrderCols   []workbook.ColumnSpec
	PickingCols     []workbook.ColumnSpec
	Shortage        reconcile.Options
}

// Sources 各提取器的缓存入口，启动时创建一次后注入各服务
type Sources struct {
	opts     SourceOptions
	models   *ident.ModelNormalizer
	registry *cache.Registry
	logger   *zap.Logger

	Inventory  *cache.Memo[*extractor.InventorySet]
	WorkOrders *cache.Memo[*extractor.WorkOrderSet]
	Picking    *cache.Memo[*extractor.PickingSet]
	Shortage   *cache.Memo[reconcile.Result]
}

// NewSources 创建缓存入口并注册到 registry
func NewSources(opts SourceOptions, observer cache.Observer, logger *zap.Logger) *Sources {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts.PartTypes) == 0 {
		opts.PartTypes = entity.DefaultPartTypes()
	}
	if opts.Shortage.PrefixLength <= 0 {
		opts.Shortage.PrefixLength = ident.DefaultPrefixLength
	}
	if opts.Shortage.StockBasis == "" {
		opts.Shortage.StockBasis = reconcile.StockAllStages
	}

	s := &Sources{
		opts:     opts,
		models:   ident.NewModelNormalizer(opts.ModelSuffixes),
		registry: cache.NewRegistry(),
		logger:   logger,
	}

	inv := extractor.NewInventoryExtractor(opts.PartTypes, s.models, logger)
	wo := extractor.NewWorkOrderExtractor(opts.WorkOrderFilter, opts.WorkOrderCols, opts.WorkOrderEncoding, logger)
	pick := extractor.NewPickingExtractor(opts.PartTypes, opts.PickingCols, logger)

	s.Inventory = cache.NewMemo(CacheInventory, []string{opts.CastingFile}, func() *extractor.InventorySet {
		return inv.Load(opts.CastingFile)
	}, logger).WithObserver(observer)
	s.WorkOrders = cache.NewMemo(CacheWorkOrders, []string{opts.WorkOrderFile}, func() *extractor.WorkOrderSet {
		return wo.Load(opts.WorkOrderFile)
	}, logger).WithObserver(observer)
	s.Picking = cache.NewMemo(CachePicking, []string{opts.PickingFile}, func() *extractor.PickingSet {
		return pick.Load(opts.PickingFile)
	}, logger).WithObserver(observer)

	// 缺料结果依赖三份文件，任一变化即整体重算
	s.Shortage = cache.NewMemo(CacheShortage,
		[]string{opts.CastingFile, opts.WorkOrderFile, opts.PickingFile},
		s.computeShortage, logger).WithObserver(observer)

	s.registry.Register(s.Inventory, s.WorkOrders, s.Picking, s.Shortage)
	return s
}

func (s *Sources) computeShortage() reconcile.Result {
	res := reconcile.Compute(s.Inventory.Get(), s.WorkOrders.Get(), s.Picking.Get(), s.opts.Shortage)
	for _, c := range res.Diagnostics.Collisions {
		s.logger.Warn("Part number prefix collision",
			zap.String("prefix", c.Prefix),
			zap.String("kept", c.Kept),
			zap.String("shadowed", c.Shadow),
		)
	}
	if n := len(res.Diagnostics.SharedOrderIDs); n > 0 {
		s.logger.Warn("Work orders share an order id", zap.Strings("order_ids", res.Diagnostics.SharedOrderIDs))
	}
	s.logger.Info("Shortage computed",
		zap.Int("lines", len(res.Lines)),
		zap.Int("unmatched_orders", res.Diagnostics.UnmatchedOrders),
		zap.Int("unmatched_material", res.Diagnostics.UnmatchedMaterial),
	)
	return res
}

// Options 解析参数
func (s *Sources) Options() SourceOptions { return s.opts }

// Models 机型名规范化器
func (s *Sources) Models() *ident.ModelNormalizer { return s.models }

// Registry 缓存注册表
func (s *Sources) Registry() *cache.Registry { return s.registry }

// PartType 按名称或代码查找铸件类型
func (s *Sources) PartType(key string) (entity.PartTypeConfig, bool) {
	for _, p := range s.opts.PartTypes {
		if p.Matches(key) {
			return p, true
		}
	}
	return entity.PartTypeConfig{}, false
}

// Invalidate 失效指定缓存，names 为空时全部失效
func (s *Sources) Invalidate(names ...string) []string {
	done := s.registry.Invalidate(names...)
	s.logger.Info("Cache invalidated", zap.Strings("caches", done))
	return done
}

// WarmStats 预热结果
type WarmStats struct {
	InventoryRows int `json:"inventory_rows"`
	Models        int `json:"models"`
	WorkOrders    int `json:"work_orders"`
	PickingLines  int `json:"picking_lines"`
	ShortageLines int `json:"shortage_lines"`
}

// Warm 依次加载所有缓存
func (s *Sources) Warm() WarmStats {
	inv := s.Inventory.Get()
	st := WarmStats{
		Models:        len(inv.Models),
		WorkOrders:    len(s.WorkOrders.Get().Orders),
		PickingLines:  len(s.Picking.Get().Lines),
		ShortageLines: len(s.Shortage.Get().Lines),
	}
	for _, p := range inv.Parts {
		st.InventoryRows += len(p.Rows)
	}
	return st
}

// Services 服务集合
type Services struct {
	Sources   *Sources
	Inventory *InventoryService
	Orders    *OrderService
	Shortage  *ShortageService
	Mutation  *MutationService
	Audit     *AuditService
	Alert     *AlertService
}

// Deps 服务依赖，除 Sources 与 AuditFile 外均可为 nil
type Deps struct {
	Sources      *Sources
	AuditFile    *repository.AuditFileRepository
	AuditArchive *repository.AuditArchiveRepository
	Backup       Backup
	Observer     MutationObserver
	Feishu       *feishu.FeishuClient
	Alert        AlertOptions
	Logger       *zap.Logger
}

// NewServices 创建服务集合
func NewServices(d Deps) *Services {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	audit := NewAuditService(d.AuditFile, d.AuditArchive, logger)
	inventory := NewInventoryService(d.Sources)
	shortage := NewShortageService(d.Sources, logger)

	return &Services{
		Sources:   d.Sources,
		Inventory: inventory,
		Orders:    NewOrderService(d.Sources),
		Shortage:  shortage,
		Mutation:  NewMutationService(d.Sources, audit, d.Backup, d.Observer, logger),
		Audit:     audit,
		Alert:     NewAlertService(d.Feishu, d.Alert, shortage, inventory, logger),
	}
}
