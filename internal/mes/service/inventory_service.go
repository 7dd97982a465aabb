package service

import (
	"fmt"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/reconcile"
)

// InventoryService 库存查询
type InventoryService struct {
	sources *Sources
}

// NewInventoryService 创建库存查询服务
func NewInventoryService(sources *Sources) *InventoryService {
	return &InventoryService{sources: sources}
}

// PartSummary 单个铸件类型的库存汇总
type PartSummary struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	Total    int    `json:"total"`
	Finished int    `json:"finished"`
	Rows     int    `json:"rows"`
}

// Summary 各铸件类型总数：{铸件类型: 总数}
func (s *InventoryService) Summary() map[string]int {
	inv := s.sources.Inventory.Get()
	out := make(map[string]int, len(inv.Parts))
	for i := range inv.Parts {
		out[inv.Parts[i].Config.Name] = inv.Parts[i].Total()
	}
	return out
}

// PartSummaries 按配置顺序的汇总明细
func (s *InventoryService) PartSummaries() []PartSummary {
	inv := s.sources.Inventory.Get()
	out := make([]PartSummary, 0, len(inv.Parts))
	for i := range inv.Parts {
		p := &inv.Parts[i]
		label := p.Config.Finished().Label
		finished := 0
		for _, r := range p.Rows {
			finished += r.Qty(label)
		}
		out = append(out, PartSummary{
			Name:     p.Config.Name,
			Code:     p.Config.Code,
			Total:    p.Total(),
			Finished: finished,
			Rows:     len(p.Rows),
		})
	}
	return out
}

// Catalog 机型总表，按规范化键排序
func (s *InventoryService) Catalog() []entity.ModelRecord {
	return s.sources.Inventory.Get().Models
}

// ZeroStock 成品总数为0的机型
func (s *InventoryService) ZeroStock() []entity.ModelRecord {
	var out []entity.ModelRecord
	for _, m := range s.Catalog() {
		if m.Total == 0 {
			out = append(out, m)
		}
	}
	return out
}

// PartDetails 某铸件类型的明细
type PartDetails struct {
	PartType string                `json:"part_type"`
	Headers  []string              `json:"headers"`
	Rows     []entity.InventoryRow `json:"rows"`
}

// PartDetails 返回表头与行；nonzero 为 true 时只返回总数大于0的行
func (s *InventoryService) PartDetails(partType string, nonzero bool) (*PartDetails, error) {
	inv := s.sources.Inventory.Get()
	p, ok := inv.Part(partType)
	if !ok {
		return nil, fmt.Errorf("%w: 未知铸件类型 %q", ErrValidation, partType)
	}

	headers := []string{"品號", "機型"}
	for _, st := range p.Config.Counted() {
		headers = append(headers, st.Label)
	}
	headers = append(headers, p.Config.Total().Label)

	rows := make([]entity.InventoryRow, 0, len(p.Rows))
	for _, r := range p.Rows {
		if nonzero && r.Total <= 0 {
			continue
		}
		rows = append(rows, r)
	}
	return &PartDetails{PartType: p.Config.Name, Headers: headers, Rows: rows}, nil
}

// SupplyDemandRow 供需对比
type SupplyDemandRow struct {
	PartType string `json:"part_type"`
	Stock    int    `json:"stock"`
	Demand   int    `json:"demand"`
	Diff     int    `json:"diff"`
	Status   string `json:"status"`
}

// 供需状态
const (
	SupplySufficient   = "sufficient"
	SupplyInsufficient = "insufficient"
)

// SupplyDemand 各铸件类型库存与拨料未结需求对比
func (s *InventoryService) SupplyDemand() []SupplyDemandRow {
	inv := s.sources.Inventory.Get()
	picks := s.sources.Picking.Get()
	finishedOnly := s.sources.Options().Shortage.StockBasis == reconcile.StockFinished

	demand := make(map[string]int)
	for _, d := range picks.Demand {
		for part, qty := range d.Quantities {
			demand[part] += qty
		}
	}

	out := make([]SupplyDemandRow, 0, len(inv.Parts))
	for i := range inv.Parts {
		p := &inv.Parts[i]
		stock := p.Total()
		if finishedOnly {
			label := p.Config.Finished().Label
			stock = 0
			for _, r := range p.Rows {
				stock += r.Qty(label)
			}
		}
		row := SupplyDemandRow{
			PartType: p.Config.Name,
			Stock:    stock,
			Demand:   demand[p.Config.Name],
			Diff:     stock - demand[p.Config.Name],
			Status:   SupplySufficient,
		}
		if row.Diff < 0 {
			row.Status = SupplyInsufficient
		}
		out = append(out, row)
	}
	return out
}
