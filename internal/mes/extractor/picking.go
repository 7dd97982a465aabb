package extractor

import (
	"strings"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/ident"
	"github.com/Hsinwei-29/mes/internal/mes/workbook"
	"go.uber.org/zap"
)

// 拨料表逻辑列
const (
	ColOrder       = "order"
	ColMaterial    = "material"
	ColDescription = "description"
	ColDemand      = "demand"
	ColPicked      = "picked"
	ColPending     = "pending"
	ColRequiredBy  = "required_by"
)

// DefaultPickingColumns 成品拨料表列规则，固定位置对应 SAP 导出格式
func DefaultPickingColumns() []workbook.ColumnSpec {
	return []workbook.ColumnSpec{
		{Key: ColOrder, Exact: []string{"訂單"}, Keywords: []string{"訂單", "Order"}, Fallback: 0},
		{Key: ColDescription, Exact: []string{"物料說明"}, Keywords: []string{"說明", "Description"}, Fallback: 5},
		{Key: ColMaterial, Exact: []string{"物料"}, Keywords: []string{"物料", "Material"}, Fallback: 1},
		{Key: ColDemand, Exact: []string{"需求數量 (EINHEIT)"}, Keywords: []string{"需求數量"}, Fallback: -1},
		{Key: ColPicked, Exact: []string{"領料數量 (EINHEIT)"}, Keywords: []string{"領料數量", "已領"}, Fallback: -1},
		{Key: ColPending, Exact: []string{"未結數量 (EINHEIT)"}, Keywords: []string{"未結"}, Fallback: 4},
		{Key: ColRequiredBy, Exact: []string{"需求日期"}, Keywords: []string{"需求日期", "日期"}, Fallback: 8},
	}
}

// Classifier 物料说明关键字 -> 铸件类型，按配置顺序首个命中生效
type Classifier struct {
	partTypes []entity.PartTypeConfig
}

// NewClassifier 创建分类器
func NewClassifier(partTypes []entity.PartTypeConfig) *Classifier {
	return &Classifier{partTypes: partTypes}
}

// Classify 返回铸件类型名，未命中返回空串
func (c *Classifier) Classify(desc string) string {
	if desc == "" {
		return ""
	}
	for _, pt := range c.partTypes {
		if !containsAny(desc, pt.Keywords) {
			continue
		}
		if containsAny(desc, pt.Excludes) {
			continue
		}
		return pt.Name
	}
	return ""
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// PickingSet 拨料表解析结果
type PickingSet struct {
	Lines  []entity.PickingLine             `json:"lines"`
	Demand map[string]*entity.PickingDemand `json:"demand"` // 订单 -> 需求
}

// PickingExtractor 成品拨料表提取器
type PickingExtractor struct {
	classifier *Classifier
	partTypes  []entity.PartTypeConfig
	columns    []workbook.ColumnSpec
	logger     *zap.Logger
}

// NewPickingExtractor 创建拨料表提取器，columns 为 nil 时使用默认列规则
func NewPickingExtractor(partTypes []entity.PartTypeConfig, columns []workbook.ColumnSpec, logger *zap.Logger) *PickingExtractor {
	if columns == nil {
		columns = DefaultPickingColumns()
	}
	return &PickingExtractor{
		classifier: NewClassifier(partTypes),
		partTypes:  partTypes,
		columns:    columns,
		logger:     logger,
	}
}

// Load 解析拨料表第一个工作表
func (e *PickingExtractor) Load(path string) *PickingSet {
	set := &PickingSet{Demand: make(map[string]*entity.PickingDemand)}

	sheet, err := workbook.ReadSheet(path, 0, "")
	if err != nil {
		e.logger.Warn("Picking source unreadable", zap.String("path", path), zap.Error(err))
		return set
	}

	cols := workbook.ResolveColumns(sheet.Header(), e.columns)
	for _, key := range []string{ColOrder, ColMaterial} {
		if !cols.Has(key) {
			e.logger.Warn("Picking column unresolved", zap.String("path", path), zap.String("column", key))
			return set
		}
	}

	for i := 1; i < len(sheet.Rows); i++ {
		row := sheet.Rows[i]
		line := entity.PickingLine{
			OrderID:     ident.Normalize(cols.Get(row, ColOrder)),
			Material:    ident.Normalize(cols.Get(row, ColMaterial)),
			Description: cols.Get(row, ColDescription),
			DemandQty:   workbook.Qty(cols.Get(row, ColDemand)),
			PickedQty:   workbook.Qty(cols.Get(row, ColPicked)),
			PendingQty:  workbook.Qty(cols.Get(row, ColPending)),
			RequiredBy:  workbook.DatePtr(cols.Get(row, ColRequiredBy)),
		}
		if line.OrderID == "" || line.Material == "" {
			continue
		}
		line.PartType = e.classifier.Classify(line.Description)
		set.Lines = append(set.Lines, line)
		e.accumulate(set, line)
	}

	e.logger.Debug("Picking loaded", zap.Int("lines", len(set.Lines)), zap.Int("orders", len(set.Demand)))
	return set
}

// accumulate 未结数量 > 0 的行计入订单需求
func (e *PickingExtractor) accumulate(set *PickingSet, line entity.PickingLine) {
	if line.PendingQty <= 0 {
		return
	}
	d, ok := set.Demand[line.OrderID]
	if !ok {
		d = &entity.PickingDemand{OrderID: line.OrderID, Quantities: make(map[string]int, len(e.partTypes))}
		for _, pt := range e.partTypes {
			d.Quantities[pt.Name] = 0
		}
		set.Demand[line.OrderID] = d
	}
	if line.PartType != "" {
		d.Quantities[line.PartType] += line.PendingQty
	}
	if line.RequiredBy != nil {
		d.Dates = append(d.Dates, *line.RequiredBy)
	}
}
