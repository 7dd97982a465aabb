package entity

import "time"

// WorkOrder 工单
type WorkOrder struct {
	ID              string     `json:"work_order_id"`
	OrderID         string     `json:"order_id"`
	Code            string     `json:"work_order_code,omitempty"` // 工单编码 / 物料品号
	Customer        string     `json:"customer"`
	Description     string     `json:"material_description"`
	SpecialNote     string     `json:"special_note,omitempty"`
	ProductionStart *time.Time `json:"production_start,omitempty"`
	ProductionEnd   *time.Time `json:"production_end,omitempty"`
	Classification  string     `json:"classification"` // 来源工作表（厂区）
}

// PickingLine 成品拨料明细
type PickingLine struct {
	OrderID     string     `json:"order_id"`
	Material    string     `json:"material"`
	Description string     `json:"description"`
	PartType    string     `json:"part_type,omitempty"` // 关键字分类结果，可能为空
	DemandQty   int        `json:"demand_qty"`
	PickedQty   int        `json:"picked_qty"`
	PendingQty  int        `json:"pending_qty"`
	RequiredBy  *time.Time `json:"required_by,omitempty"`
}

// PickingDemand 按订单汇总的拨料需求
type PickingDemand struct {
	OrderID    string         `json:"order_id"`
	Quantities map[string]int `json:"quantities"` // 铸件类型 -> 未结数量
	Dates      []time.Time    `json:"dates"`
}

// EarliestDate 最早需求日期
func (d *PickingDemand) EarliestDate() *time.Time {
	if d == nil || len(d.Dates) == 0 {
		return nil
	}
	earliest := d.Dates[0]
	for _, t := range d.Dates[1:] {
		if t.Before(earliest) {
			earliest = t
		}
	}
	return &earliest
}

// 缺料状态
const (
	StatusFulfilled    = "fulfilled"
	StatusStockCovered = "stock-covered"
	StatusShort        = "short"
)

// StatusLabel 报表显示用
func StatusLabel(status string) string {
	switch status {
	case StatusFulfilled:
		return "已領足"
	case StatusStockCovered:
		return "庫存足"
	case StatusShort:
		return "缺料"
	}
	return status
}

// ShortageLine 工单 × 品号 缺料记录
type ShortageLine struct {
	WorkOrderID      string     `json:"work_order_id"`
	WorkOrderCode    string     `json:"work_order_code,omitempty"`
	OrderID          string     `json:"order_id"`
	Customer         string     `json:"customer"`
	ProductionStart  *time.Time `json:"production_start,omitempty"`
	ProductionEnd    *time.Time `json:"production_end,omitempty"`
	PartNumber       string     `json:"part_number"`
	PartType         string     `json:"part_type"`
	ModelName        string     `json:"model_name"`
	Description      string     `json:"description"`
	SpecialNote      string     `json:"special_note,omitempty"`
	Demand           int        `json:"demand"`
	Picked           int        `json:"picked"`
	Pending          int        `json:"pending"`
	Stock            int        `json:"stock"`
	Semi             int        `json:"semi"`
	CurrentShortfall int        `json:"current_shortfall"`
	FinalShortfall   int        `json:"final_shortfall"`
	Status           string     `json:"status"`
}
