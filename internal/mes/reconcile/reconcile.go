// Package reconcile 缺料计算：工单 ↔ 拨料需求 ↔ 铸件库存
package reconcile

import (
	"sort"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/extractor"
	"github.com/Hsinwei-29/mes/internal/mes/ident"
)

// StockBasis 现有库存的计算口径
type StockBasis string

const (
	StockAllStages StockBasis = "all_stages" // 除总数外所有工序之和
	StockFinished  StockBasis = "finished"   // 仅成品工序
)

// Options 计算参数
type Options struct {
	PrefixLength int
	StockBasis   StockBasis
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{PrefixLength: ident.DefaultPrefixLength, StockBasis: StockAllStages}
}

// StockEntry 按品号汇总的库存
type StockEntry struct {
	PartNumber string `json:"part_number"`
	PartType   string `json:"part_type"`
	ModelName  string `json:"model_name"`
	Stock      int    `json:"stock"`
	Semi       int    `json:"semi"`
}

// PrefixCollision 两个不同品号共享同一前缀
type PrefixCollision struct {
	Prefix string `json:"prefix"`
	Kept   string `json:"kept"`
	Shadow string `json:"shadowed"`
}

// Diagnostics 计算过程中的异常统计
type Diagnostics struct {
	Collisions        []PrefixCollision `json:"collisions,omitempty"`
	UnmatchedOrders   int               `json:"unmatched_orders"`   // 找不到工单的拨料行
	UnmatchedMaterial int               `json:"unmatched_material"` // 前缀不在盘点表中的拨料行
	SharedOrderIDs    []string          `json:"shared_order_ids,omitempty"`
}

// Result 计算结果
type Result struct {
	Lines       []entity.ShortageLine `json:"lines"`
	Diagnostics Diagnostics           `json:"diagnostics"`
}

// StockIndex 库存索引：品号 -> 库存，前缀 -> 品号
type StockIndex struct {
	Entries    map[string]*StockEntry
	prefixes   map[string]string
	Collisions []PrefixCollision
}

// Lookup 按物料码前缀查找盘点品号
func (s *StockIndex) Lookup(material string, prefixLen int) (*StockEntry, bool) {
	pn, ok := s.prefixes[ident.Prefix(material, prefixLen)]
	if !ok {
		return nil, false
	}
	return s.Entries[pn], true
}

// BuildStockIndex 汇总每个品号的库存与在制数量。
// 同一品号出现在多行时数量累加，元数据取首行；前缀冲突时首个品号保留前缀
func BuildStockIndex(inv *extractor.InventorySet, opts Options) *StockIndex {
	idx := &StockIndex{
		Entries:  make(map[string]*StockEntry),
		prefixes: make(map[string]string),
	}
	for _, p := range inv.Parts {
		var semiLabels []string
		for _, s := range p.Config.Stages {
			if s.Role == entity.RoleRaw || s.Role == entity.RoleSemi {
				semiLabels = append(semiLabels, s.Label)
			}
		}
		finished := p.Config.Finished().Label

		for _, r := range p.Rows {
			if ident.IsPlaceholder(r.PartNumber) {
				continue
			}
			stock := r.Total
			if opts.StockBasis == StockFinished {
				stock = r.Qty(finished)
			}

			e, ok := idx.Entries[r.PartNumber]
			if !ok {
				e = &StockEntry{PartNumber: r.PartNumber, PartType: r.PartType, ModelName: r.ModelName}
				idx.Entries[r.PartNumber] = e
				idx.addPrefix(r.PartNumber, opts.PrefixLength)
			}
			e.Stock += stock
			e.Semi += r.SumOf(semiLabels)
		}
	}
	return idx
}

func (s *StockIndex) addPrefix(pn string, n int) {
	prefix := ident.Prefix(pn, n)
	if kept, ok := s.prefixes[prefix]; ok {
		if kept != pn {
			s.Collisions = append(s.Collisions, PrefixCollision{Prefix: prefix, Kept: kept, Shadow: pn})
		}
		return
	}
	s.prefixes[prefix] = pn
}

type bucketKey struct {
	workOrder  string
	partNumber string
}

type bucket struct {
	wo          *entity.WorkOrder
	stock       *StockEntry
	description string
	demand      int
	picked      int
	pending     int
}

// IndexOrders 拨料订单号 -> 工单
// 订单号为空时用工单号；多个工单共用订单号时第一个生效，其余记入 shared。
// 工单号本身也可作为键，但不覆盖已有的订单号映射。
func IndexOrders(orders []entity.WorkOrder) (index map[string]*entity.WorkOrder, shared []string) {
	index = make(map[string]*entity.WorkOrder, len(orders))
	for i := range orders {
		wo := &orders[i]
		key := OrderKey(*wo)
		if _, ok := index[key]; ok {
			shared = append(shared, key)
			continue
		}
		index[key] = wo
	}
	for i := range orders {
		wo := &orders[i]
		if _, ok := index[wo.ID]; !ok {
			index[wo.ID] = wo
		}
	}
	return index, shared
}

// OrderKey 工单在拨料表中的订单号
func OrderKey(wo entity.WorkOrder) string {
	if wo.OrderID == "" {
		return wo.ID
	}
	return wo.OrderID
}

// Compute 计算缺料清单
func Compute(inv *extractor.InventorySet, wos *extractor.WorkOrderSet, picks *extractor.PickingSet, opts Options) Result {
	if opts.PrefixLength <= 0 {
		opts.PrefixLength = ident.DefaultPrefixLength
	}
	var diag Diagnostics

	// 1. 库存索引
	stock := BuildStockIndex(inv, opts)
	diag.Collisions = stock.Collisions

	// 2. 拨料订单号 -> 工单
	byOrder, shared := IndexOrders(wos.Orders)
	diag.SharedOrderIDs = shared

	buckets := make(map[bucketKey]*bucket)
	var order []bucketKey
	for _, line := range picks.Lines {
		wo, ok := byOrder[line.OrderID]
		if !ok {
			diag.UnmatchedOrders++
			continue
		}
		entry, ok := stock.Lookup(line.Material, opts.PrefixLength)
		if !ok {
			diag.UnmatchedMaterial++
			continue
		}
		key := bucketKey{workOrder: wo.ID, partNumber: entry.PartNumber}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{wo: wo, stock: entry, description: line.Description}
			buckets[key] = b
			order = append(order, key)
		}
		b.demand += line.DemandQty
		b.picked += line.PickedQty
		b.pending += line.PendingQty
	}

	// 3. 生成缺料行
	lines := make([]entity.ShortageLine, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		if b.demand <= 0 {
			continue
		}
		lines = append(lines, newLine(b))
	}

	// 4. 生产开始升序（空值最后）、最终缺料降序、工单号升序
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		switch {
		case a.ProductionStart == nil && b.ProductionStart != nil:
			return false
		case a.ProductionStart != nil && b.ProductionStart == nil:
			return true
		case a.ProductionStart != nil && b.ProductionStart != nil && !a.ProductionStart.Equal(*b.ProductionStart):
			return a.ProductionStart.Before(*b.ProductionStart)
		}
		if a.FinalShortfall != b.FinalShortfall {
			return a.FinalShortfall > b.FinalShortfall
		}
		return a.WorkOrderID < b.WorkOrderID
	})

	return Result{Lines: lines, Diagnostics: diag}
}

func newLine(b *bucket) entity.ShortageLine {
	current := b.demand - b.picked
	final := current - b.stock.Stock

	status := entity.StatusShort
	switch {
	case b.picked >= b.demand:
		status = entity.StatusFulfilled
	case final <= 0:
		status = entity.StatusStockCovered
	}

	return entity.ShortageLine{
		WorkOrderID:      b.wo.ID,
		WorkOrderCode:    b.wo.Code,
		OrderID:          b.wo.OrderID,
		Customer:         b.wo.Customer,
		ProductionStart:  b.wo.ProductionStart,
		ProductionEnd:    b.wo.ProductionEnd,
		PartNumber:       b.stock.PartNumber,
		PartType:         b.stock.PartType,
		ModelName:        b.stock.ModelName,
		Description:      b.description,
		SpecialNote:      b.wo.SpecialNote,
		Demand:           b.demand,
		Picked:           b.picked,
		Pending:          b.pending,
		Stock:            b.stock.Stock,
		Semi:             b.stock.Semi,
		CurrentShortfall: max(0, current),
		FinalShortfall:   max(0, final),
		Status:           status,
	}
}
