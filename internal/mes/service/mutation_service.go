package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/extractor"
	"github.com/Hsinwei-29/mes/internal/mes/ident"
	"github.com/Hsinwei-29/mes/internal/mes/workbook"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Backup 写入前备份源文件
type Backup interface {
	Backup(ctx context.Context, path string) (string, error)
}

// AuditRecorder 审计日志写入
type AuditRecorder interface {
	Append(ctx context.Context, e entity.AuditEntry) error
}

// MutationObserver 修改结果统计
type MutationObserver interface {
	ObserveMutation(op, outcome string)
}

// 修改操作
const (
	OpUpdateField = "update_field"
	OpStockIn     = "stock_in"
	OpStockOut    = "stock_out"
)

// MutationService 盘点表单元格修改、入库、出库。
// 进程内串行；多进程同时写同一文件仍是后写覆盖
type MutationService struct {
	sources  *Sources
	audit    AuditRecorder
	backup   Backup
	observer MutationObserver
	logger   *zap.Logger
	now      func() time.Time

	mu sync.Mutex
}

// NewMutationService 创建修改服务，backup / observer 可为 nil
func NewMutationService(sources *Sources, audit AuditRecorder, backup Backup, observer MutationObserver, logger *zap.Logger) *MutationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MutationService{
		sources:  sources,
		audit:    audit,
		backup:   backup,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

// UpdateRequest 单元格修改请求
type UpdateRequest struct {
	PartType  string `json:"part_type"`
	ItemID    string `json:"item_id"`
	Field     string `json:"field" binding:"required"`
	Value     int    `json:"value"`
	ModelName string `json:"model_name"`
	Actor     string `json:"-"`
}

// UpdateResult 修改结果
type UpdateResult struct {
	ItemID   string            `json:"item_id"`
	Field    string            `json:"field"`
	OldValue int               `json:"old_value"`
	NewValue int               `json:"new_value"`
	NewTotal int               `json:"new_total"`
	Created  bool              `json:"created"`
	Entry    entity.AuditEntry `json:"audit"`
}

// StockRequest 入库/出库请求；品号与机型都为空时入库取首行，出库按表内顺序多行扣减
type StockRequest struct {
	PartType   string `json:"part_type"`
	PartNumber string `json:"part_number"`
	ModelName  string `json:"model_name"`
	Quantity   int    `json:"quantity" binding:"required"`
	Actor      string `json:"-"`
}

// StockMove 单行变动
type StockMove struct {
	ItemID    string `json:"item_id"`
	ModelName string `json:"model_name"`
	OldValue  int    `json:"old_value"`
	NewValue  int    `json:"new_value"`
	NewTotal  int    `json:"new_total"`
}

// StockResult 入库/出库结果
type StockResult struct {
	PartType string              `json:"part_type"`
	Stage    string              `json:"stage"`
	Quantity int                 `json:"quantity"`
	Moves    []StockMove         `json:"moves"`
	Entries  []entity.AuditEntry `json:"audit"`
}

// UpdateField 修改某行某工序数量并重算总数
func (s *MutationService) UpdateField(ctx context.Context, req UpdateRequest) (res *UpdateResult, err error) {
	defer func() { s.observe(OpUpdateField, err) }()

	cfg, ok := s.sources.PartType(req.PartType)
	if !ok {
		return nil, fmt.Errorf("%w: 未知铸件类型 %q", ErrValidation, req.PartType)
	}
	stage, ok := cfg.Stage(strings.TrimSpace(req.Field))
	if !ok {
		return nil, fmt.Errorf("%w: %s 没有工序 %q", ErrValidation, cfg.Name, req.Field)
	}
	if stage.Role == entity.RoleTotal {
		return nil, fmt.Errorf("%w: 总数由系统计算，不可直接修改", ErrValidation)
	}
	if req.Value < 0 {
		return nil, fmt.Errorf("%w: 数量不能为负数", ErrValidation)
	}
	itemID := ident.Normalize(req.ItemID)
	model := strings.TrimSpace(req.ModelName)
	if itemID == "" && model == "" {
		return nil, fmt.Errorf("%w: 品号与机型不能同时为空", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sh, err := s.open(cfg)
	if err != nil {
		return nil, err
	}
	defer sh.f.Close()

	row, created, err := sh.resolve(itemID, model, true)
	if err != nil {
		return nil, err
	}

	old := row.Qty(stage.Label)
	if err := sh.setQty(row, stage, req.Value); err != nil {
		return nil, err
	}
	entry := s.newEntry(req.Actor, cfg.Name, itemKey(*row), stage.Label, old, req.Value)

	if err := s.commit(ctx, sh, []entity.AuditEntry{entry}); err != nil {
		return nil, err
	}

	s.logger.Info("Inventory cell updated",
		zap.String("part_type", cfg.Name),
		zap.String("item_id", entry.ItemID),
		zap.String("field", stage.Label),
		zap.Int("old_value", old),
		zap.Int("new_value", req.Value),
		zap.Int("new_total", row.Total),
		zap.Bool("created", created),
		zap.String("actor", entry.User),
	)
	return &UpdateResult{
		ItemID:   entry.ItemID,
		Field:    stage.Label,
		OldValue: old,
		NewValue: req.Value,
		NewTotal: row.Total,
		Created:  created,
		Entry:    entry,
	}, nil
}

// StockIn 入库：数量加到素材工序
func (s *MutationService) StockIn(ctx context.Context, req StockRequest) (res *StockResult, err error) {
	defer func() { s.observe(OpStockIn, err) }()

	cfg, err := s.validateStock(req)
	if err != nil {
		return nil, err
	}
	stage := cfg.Raw()

	s.mu.Lock()
	defer s.mu.Unlock()

	sh, err := s.open(cfg)
	if err != nil {
		return nil, err
	}
	defer sh.f.Close()

	pn := ident.Normalize(req.PartNumber)
	model := strings.TrimSpace(req.ModelName)

	var row *entity.InventoryRow
	if pn == "" && model == "" {
		if len(sh.rows) == 0 {
			return nil, fmt.Errorf("%w: %s 没有可入库的行", ErrNotFound, cfg.Name)
		}
		row = &sh.rows[0]
	} else if row, _, err = sh.resolve(pn, model, true); err != nil {
		return nil, err
	}

	old := row.Qty(stage.Label)
	if err := sh.setQty(row, stage, old+req.Quantity); err != nil {
		return nil, err
	}
	entry := s.newEntry(req.Actor, cfg.Name, itemKey(*row), stage.Label, old, old+req.Quantity)
	if err := s.commit(ctx, sh, []entity.AuditEntry{entry}); err != nil {
		return nil, err
	}

	s.logger.Info("Stock in",
		zap.String("part_type", cfg.Name),
		zap.String("item_id", entry.ItemID),
		zap.Int("quantity", req.Quantity),
		zap.String("actor", entry.User),
	)
	return &StockResult{
		PartType: cfg.Name,
		Stage:    stage.Label,
		Quantity: req.Quantity,
		Moves:    []StockMove{moveOf(*row, stage.Label, old)},
		Entries:  []entity.AuditEntry{entry},
	}, nil
}

// StockOut 出库：从成品工序扣减，数量不足时整体拒绝
func (s *MutationService) StockOut(ctx context.Context, req StockRequest) (res *StockResult, err error) {
	defer func() { s.observe(OpStockOut, err) }()

	cfg, err := s.validateStock(req)
	if err != nil {
		return nil, err
	}
	stage := cfg.Finished()

	s.mu.Lock()
	defer s.mu.Unlock()

	sh, err := s.open(cfg)
	if err != nil {
		return nil, err
	}
	defer sh.f.Close()

	pn := ident.Normalize(req.PartNumber)
	model := strings.TrimSpace(req.ModelName)

	// 指定品号/机型：单行扣减；否则按表内顺序依次扣减
	var targets []*entity.InventoryRow
	if pn != "" || model != "" {
		row, _, err := sh.resolve(pn, model, false)
		if err != nil {
			return nil, err
		}
		targets = []*entity.InventoryRow{row}
	} else {
		for i := range sh.rows {
			if sh.rows[i].Qty(stage.Label) > 0 {
				targets = append(targets, &sh.rows[i])
			}
		}
	}

	available := 0
	for _, r := range targets {
		available += max(0, r.Qty(stage.Label))
	}
	if available < req.Quantity {
		return nil, fmt.Errorf("%w: %s %s 可用 %d，需出库 %d", ErrInsufficientStock, cfg.Name, stage.Label, available, req.Quantity)
	}

	res = &StockResult{PartType: cfg.Name, Stage: stage.Label, Quantity: req.Quantity}
	remaining := req.Quantity
	for _, r := range targets {
		if remaining == 0 {
			break
		}
		old := r.Qty(stage.Label)
		take := min(old, remaining)
		if take <= 0 {
			continue
		}
		if err := sh.setQty(r, stage, old-take); err != nil {
			return nil, err
		}
		remaining -= take
		res.Moves = append(res.Moves, moveOf(*r, stage.Label, old))
		res.Entries = append(res.Entries, s.newEntry(req.Actor, cfg.Name, itemKey(*r), stage.Label, old, old-take))
	}

	if err := s.commit(ctx, sh, res.Entries); err != nil {
		return nil, err
	}

	s.logger.Info("Stock out",
		zap.String("part_type", cfg.Name),
		zap.Int("quantity", req.Quantity),
		zap.Int("rows", len(res.Moves)),
		zap.String("actor", req.Actor),
	)
	return res, nil
}

func (s *MutationService) validateStock(req StockRequest) (entity.PartTypeConfig, error) {
	cfg, ok := s.sources.PartType(req.PartType)
	if !ok {
		return cfg, fmt.Errorf("%w: 未知铸件类型 %q", ErrValidation, req.PartType)
	}
	if req.Quantity <= 0 {
		return cfg, fmt.Errorf("%w: 数量必须大于0", ErrValidation)
	}
	return cfg, nil
}

// commit 备份、原子保存、失效缓存、写审计日志
func (s *MutationService) commit(ctx context.Context, sh *sheetState, entries []entity.AuditEntry) error {
	path := s.sources.Options().CastingFile

	if s.backup != nil {
		if key, err := s.backup.Backup(ctx, path); err != nil {
			s.logger.Warn("Workbook backup failed", zap.String("path", path), zap.Error(err))
		} else {
			s.logger.Debug("Workbook backed up", zap.String("key", key))
		}
	}

	if err := workbook.SaveAtomic(sh.f, path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	s.sources.Registry().InvalidatePath(path)

	for _, e := range entries {
		if err := s.audit.Append(ctx, e); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}
	}
	return nil
}

func (s *MutationService) newEntry(actor, partType, itemID, field string, old, value int) entity.AuditEntry {
	if actor == "" {
		actor = "unknown"
	}
	return entity.AuditEntry{
		ID:        uuid.New().String(),
		Timestamp: s.now().Format(entity.AuditTimeLayout),
		User:      actor,
		PartType:  partType,
		ItemID:    itemID,
		Field:     field,
		OldValue:  old,
		NewValue:  value,
	}
}

func (s *MutationService) observe(op string, err error) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveMutation(op, Outcome(err))
}

// Outcome 错误分类，用于指标与响应码
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	}
	return "error"
}

// itemKey 审计记录中的条目标识：品号，占位品号时用机型
func itemKey(r entity.InventoryRow) string {
	if ident.IsPlaceholder(r.PartNumber) {
		return r.ModelName
	}
	return r.PartNumber
}

func moveOf(r entity.InventoryRow, label string, old int) StockMove {
	return StockMove{
		ItemID:    itemKey(r),
		ModelName: r.ModelName,
		OldValue:  old,
		NewValue:  r.Qty(label),
		NewTotal:  r.Total,
	}
}

// sheetState 打开的盘点工作表
type sheetState struct {
	f       *excelize.File
	cfg     entity.PartTypeConfig
	models  *ident.ModelNormalizer
	sheet   string
	rows    []entity.InventoryRow
	nextRow int
}

func (s *MutationService) open(cfg entity.PartTypeConfig) (*sheetState, error) {
	f, err := workbook.Open(s.sources.Options().CastingFile)
	if err != nil {
		return nil, err
	}
	sheet, err := workbook.SheetName(f, cfg.Sheet, cfg.SheetName)
	if err != nil {
		f.Close()
		return nil, err
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	sh := &sheetState{
		f:       f,
		cfg:     cfg,
		models:  s.sources.Models(),
		sheet:   sheet,
		nextRow: max(len(raw), 1) + 1,
	}
	for i := 1; i < len(raw); i++ {
		if r, ok := extractor.ParseInventoryRow(cfg, sh.models, raw[i], i+1); ok {
			sh.rows = append(sh.rows, r)
		}
	}
	return sh, nil
}

// resolve 定位行：品号精确匹配 → 机型匹配 → （允许时）追加占位行
func (sh *sheetState) resolve(itemID, model string, allowAppend bool) (*entity.InventoryRow, bool, error) {
	if itemID != "" && !ident.IsPlaceholder(itemID) {
		for i := range sh.rows {
			if sh.rows[i].PartNumber == itemID {
				return &sh.rows[i], false, nil
			}
		}
	}

	canonical := sh.models.Canonical(model)
	if canonical != "" {
		for i := range sh.rows {
			if sh.rows[i].ModelName == canonical {
				return &sh.rows[i], false, nil
			}
		}
	}

	if !allowAppend || canonical == "" {
		return nil, false, fmt.Errorf("%w: %s 找不到品号 %q / 机型 %q", ErrNotFound, sh.cfg.Name, itemID, model)
	}
	row, err := sh.appendRow(model)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func (sh *sheetState) appendRow(model string) (*entity.InventoryRow, error) {
	rowNum := sh.nextRow
	sh.nextRow++

	if err := sh.f.SetCellValue(sh.sheet, workbook.CellName(0, rowNum), entity.PlaceholderPartNumber); err != nil {
		return nil, fmt.Errorf("write part number: %w", err)
	}
	if err := sh.f.SetCellValue(sh.sheet, workbook.CellName(1, rowNum), model); err != nil {
		return nil, fmt.Errorf("write model: %w", err)
	}

	counted := sh.cfg.Counted()
	r := entity.InventoryRow{
		PartType:   sh.cfg.Name,
		PartNumber: entity.PlaceholderPartNumber,
		ModelName:  sh.models.Canonical(model),
		RawModel:   model,
		Stages:     make([]entity.StageValue, 0, len(counted)),
		SheetRow:   rowNum,
	}
	for _, st := range counted {
		r.Stages = append(r.Stages, entity.StageValue{Label: st.Label})
		if err := sh.f.SetCellInt(sh.sheet, workbook.CellName(st.Column, rowNum), 0); err != nil {
			return nil, fmt.Errorf("write %s: %w", st.Label, err)
		}
	}
	sh.rows = append(sh.rows, r)
	return &sh.rows[len(sh.rows)-1], sh.writeTotal(&sh.rows[len(sh.rows)-1])
}

// setQty 写入工序数量并重算总数
func (sh *sheetState) setQty(r *entity.InventoryRow, stage entity.Stage, qty int) error {
	if err := sh.f.SetCellInt(sh.sheet, workbook.CellName(stage.Column, r.SheetRow), qty); err != nil {
		return fmt.Errorf("write %s: %w", stage.Label, err)
	}
	for i := range r.Stages {
		if r.Stages[i].Label == stage.Label {
			r.Stages[i].Qty = qty
		}
	}
	return sh.writeTotal(r)
}

func (sh *sheetState) writeTotal(r *entity.InventoryRow) error {
	total := 0
	for _, st := range r.Stages {
		total += st.Qty
	}
	r.Total = total
	if err := sh.f.SetCellInt(sh.sheet, workbook.CellName(sh.cfg.Total().Column, r.SheetRow), total); err != nil {
		return fmt.Errorf("write total: %w", err)
	}
	return nil
}
