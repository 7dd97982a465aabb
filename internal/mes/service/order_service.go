package service

import (
	"sort"
	"time"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/reconcile"
)

// OrderService 工单看板
type OrderService struct {
	sources *Sources
	now     func() time.Time
}

// NewOrderService 创建工单看板服务
func NewOrderService(sources *Sources) *OrderService {
	return &OrderService{sources: sources, now: time.Now}
}

// OrderView 工单 + 拨料需求
type OrderView struct {
	entity.WorkOrder
	Demand     map[string]int `json:"demand"`
	RequiredBy *time.Time     `json:"required_by,omitempty"`
	Completed  bool           `json:"completed"`
}

// OrderStats 工单统计
type OrderStats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
}

// OrderBoard 工单看板数据
type OrderBoard struct {
	Orders []OrderView    `json:"orders"`
	Stats  OrderStats     `json:"stats"`
	Demand map[string]int `json:"demand"` // 铸件类型 -> 未结需求合计
}

// List 工单列表：进行中在前，按生产结束日期升序，无日期在后
func (s *OrderService) List() *OrderBoard {
	wos := s.sources.WorkOrders.Get()
	picks := s.sources.Picking.Get()
	today := truncateDay(s.now())

	board := &OrderBoard{
		Orders: make([]OrderView, 0, len(wos.Orders)),
		Demand: make(map[string]int),
	}
	for _, p := range s.sources.Options().PartTypes {
		board.Demand[p.Name] = 0
	}

	// 与缺料计算一致：共用订单号时需求只归第一个工单
	index, _ := reconcile.IndexOrders(wos.Orders)
	for i := range wos.Orders {
		wo := wos.Orders[i]
		v := OrderView{WorkOrder: wo, Demand: make(map[string]int)}
		for name := range board.Demand {
			v.Demand[name] = 0
		}
		for _, key := range demandKeys(wo) {
			if index[key] != &wos.Orders[i] {
				continue
			}
			d := picks.Demand[key]
			if d == nil {
				continue
			}
			for part, qty := range d.Quantities {
				v.Demand[part] += qty
				board.Demand[part] += qty
			}
			if t := d.EarliestDate(); t != nil && (v.RequiredBy == nil || t.Before(*v.RequiredBy)) {
				v.RequiredBy = t
			}
		}
		// 无结束日期不算进行中
		active := wo.ProductionEnd != nil && !wo.ProductionEnd.Before(today)
		v.Completed = !active
		if v.Completed {
			board.Stats.Completed++
		} else {
			board.Stats.InProgress++
		}
		board.Orders = append(board.Orders, v)
	}
	board.Stats.Total = len(board.Orders)

	sort.SliceStable(board.Orders, func(i, j int) bool {
		a, b := board.Orders[i], board.Orders[j]
		if a.Completed != b.Completed {
			return !a.Completed
		}
		switch {
		case a.ProductionEnd == nil:
			return false
		case b.ProductionEnd == nil:
			return true
		}
		return a.ProductionEnd.Before(*b.ProductionEnd)
	})
	return board
}

// demandKeys 工单可能出现在拨料表中的订单号
func demandKeys(wo entity.WorkOrder) []string {
	key := reconcile.OrderKey(wo)
	if key == wo.ID {
		return []string{key}
	}
	return []string{key, wo.ID}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
