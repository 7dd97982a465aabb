// Package extractor 把三份外部工作簿解析为内存记录集。
// 读取失败只记录日志并返回空结果，调用方无法也无需区分“无数据”与“不可读”
package extractor

import (
	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/ident"
	"github.com/Hsinwei-29/mes/internal/mes/workbook"
	"go.uber.org/zap"
)

// PartInventory 单个铸件类型的盘点数据
type PartInventory struct {
	Config entity.PartTypeConfig `json:"config"`
	Rows   []entity.InventoryRow `json:"rows"`
}

// Total 全部行总数之和
func (p *PartInventory) Total() int {
	sum := 0
	for _, r := range p.Rows {
		sum += r.Total
	}
	return sum
}

// InventorySet 铸件盘点表解析结果
type InventorySet struct {
	Parts  []PartInventory      `json:"parts"`
	Models []entity.ModelRecord `json:"models"`
}

// Part 按名称或代码查找铸件类型
func (s *InventorySet) Part(key string) (*PartInventory, bool) {
	for i := range s.Parts {
		if s.Parts[i].Config.Matches(key) {
			return &s.Parts[i], true
		}
	}
	return nil, false
}

// InventoryExtractor 铸件盘点表提取器
type InventoryExtractor struct {
	partTypes []entity.PartTypeConfig
	models    *ident.ModelNormalizer
	logger    *zap.Logger
}

// NewInventoryExtractor 创建盘点表提取器
func NewInventoryExtractor(partTypes []entity.PartTypeConfig, models *ident.ModelNormalizer, logger *zap.Logger) *InventoryExtractor {
	if models == nil {
		models = ident.NewModelNormalizer(nil)
	}
	return &InventoryExtractor{partTypes: partTypes, models: models, logger: logger}
}

// Load 解析盘点表
func (e *InventoryExtractor) Load(path string) *InventorySet {
	set := &InventorySet{Parts: make([]PartInventory, len(e.partTypes))}
	for i, cfg := range e.partTypes {
		set.Parts[i] = PartInventory{Config: cfg}
	}

	sheets, err := workbook.ReadAll(path)
	if err != nil {
		e.logger.Warn("Inventory source unreadable", zap.String("path", path), zap.Error(err))
		set.Models = e.buildModels(set)
		return set
	}

	for i, cfg := range e.partTypes {
		sheet := pickSheet(sheets, cfg.Sheet, cfg.SheetName)
		if sheet == nil {
			e.logger.Warn("Inventory sheet missing",
				zap.String("part_type", cfg.Name),
				zap.Int("sheet", cfg.Sheet),
				zap.String("sheet_name", cfg.SheetName),
			)
			continue
		}
		set.Parts[i].Rows = e.parseRows(cfg, sheet)
	}

	set.Models = e.buildModels(set)
	return set
}

func pickSheet(sheets []workbook.Sheet, index int, name string) *workbook.Sheet {
	if name != "" {
		for i := range sheets {
			if sheets[i].Name == name {
				return &sheets[i]
			}
		}
		return nil
	}
	if index < 0 || index >= len(sheets) {
		return nil
	}
	return &sheets[index]
}

// ParseInventoryRow 解析单行；前两列都为空时返回 false
func ParseInventoryRow(cfg entity.PartTypeConfig, models *ident.ModelNormalizer, row []string, sheetRow int) (entity.InventoryRow, bool) {
	rawPart := workbook.Cell(row, 0)
	rawModel := workbook.Cell(row, 1)
	if rawPart == "" && rawModel == "" {
		return entity.InventoryRow{}, false
	}

	pn := ident.Normalize(rawPart)
	if ident.IsPlaceholder(pn) {
		pn = entity.PlaceholderPartNumber
	}

	counted := cfg.Counted()
	r := entity.InventoryRow{
		PartType:   cfg.Name,
		PartNumber: pn,
		ModelName:  models.Canonical(rawModel),
		RawModel:   rawModel,
		Stages:     make([]entity.StageValue, 0, len(counted)),
		SheetRow:   sheetRow,
	}
	for _, s := range counted {
		qty := workbook.Qty(workbook.Cell(row, s.Column))
		r.Stages = append(r.Stages, entity.StageValue{Label: s.Label, Qty: qty})
		r.Total += qty
	}
	return r, true
}

func (e *InventoryExtractor) parseRows(cfg entity.PartTypeConfig, sheet *workbook.Sheet) []entity.InventoryRow {
	var rows []entity.InventoryRow
	for i := 1; i < len(sheet.Rows); i++ {
		if r, ok := ParseInventoryRow(cfg, e.models, sheet.Rows[i], i+1); ok {
			rows = append(rows, r)
		}
	}
	return rows
}

// buildModels 由机型总索引生成 ModelRecord，零库存机型保留
func (e *InventoryExtractor) buildModels(set *InventorySet) []entity.ModelRecord {
	perSheet := make([][]string, len(set.Parts))
	for i, p := range set.Parts {
		names := make([]string, 0, len(p.Rows))
		for _, r := range p.Rows {
			names = append(names, r.ModelName)
		}
		perSheet[i] = names
	}
	index := ident.BuildModelIndex(e.models, perSheet...)

	records := make([]entity.ModelRecord, len(index))
	pos := make(map[string]int, len(index))
	for i, name := range index {
		finished := make(map[string]int, len(set.Parts))
		for _, p := range set.Parts {
			finished[p.Config.Name] = 0
		}
		records[i] = entity.ModelRecord{Name: name, MatchKey: ident.MatchKey(name), Finished: finished}
		pos[name] = i
	}

	for _, p := range set.Parts {
		label := p.Config.Finished().Label
		for _, r := range p.Rows {
			i, ok := pos[r.ModelName]
			if !ok {
				continue
			}
			qty := r.Qty(label)
			records[i].Finished[p.Config.Name] += qty
			records[i].Total += qty
		}
	}
	return records
}
