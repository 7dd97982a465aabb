package extractor

import (
	"strings"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/ident"
	"github.com/Hsinwei-29/mes/internal/mes/workbook"
	"go.uber.org/zap"
)

// 工单表逻辑列
const (
	ColWorkOrder = "work_order"
	ColCustomer  = "customer"
	ColCode      = "code"
	ColStart     = "start"
	ColEnd       = "end"
	ColNote      = "note"
	ColStatus    = "status"
)

// DefaultWorkOrderColumns 工单表列规则。
// 表头编码不稳定，精确名称失败时靠关键字；订单列排在工单列之前，避免“號碼”被工单列抢占
func DefaultWorkOrderColumns() []workbook.ColumnSpec {
	return []workbook.ColumnSpec{
		{Key: ColOrder, Exact: []string{"訂單", "訂單號碼"}, Keywords: []string{"訂單", "Order"}, Fallback: -1},
		{Key: ColCode, Exact: []string{"工單編碼", "物料品號"}, Fallback: -1},
		{Key: ColWorkOrder, Exact: []string{"工單號碼", "工單"}, Keywords: []string{"工單", "號碼", "序號", "編號"}, Fallback: -1},
		{Key: ColCustomer, Exact: []string{"下單客戶名稱"}, Keywords: []string{"客戶", "Customer"}, Fallback: -1},
		{Key: ColDescription, Exact: []string{"品號說明", "物料說明"}, Keywords: []string{"說明", "品號"}, Fallback: -1},
		{Key: ColStart, Exact: []string{"生產開始"}, Keywords: []string{"開始", "Start"}, Fallback: -1},
		{Key: ColEnd, Exact: []string{"生產結束"}, Keywords: []string{"結束", "Term", "End"}, Fallback: -1},
		{Key: ColNote, Exact: []string{"特規備註"}, Keywords: []string{"特規", "備註"}, Fallback: -1},
		{Key: ColStatus, Exact: []string{"狀態"}, Keywords: []string{"狀態", "Status"}, Fallback: -1},
	}
}

// WorkOrderFilter 工单过滤规则
type WorkOrderFilter struct {
	IDPrefix        string   // 仅保留此前缀的工单，空表示不过滤
	NumericOnly     bool     // 工单号必须为纯数字
	SkipSheets      []int    // 跳过的工作表序号（半品）
	SkipSheetNames  []string // 跳过的工作表名称
	StatusBlacklist []string // 状态列包含这些关键字时跳过
	CustomerMaxLen  int
}

// DefaultWorkOrderFilter 默认过滤：10000 开头的纯数字工单，跳过半品表
func DefaultWorkOrderFilter() WorkOrderFilter {
	return WorkOrderFilter{
		IDPrefix:        "10000",
		NumericOnly:     true,
		SkipSheets:      []int{1},
		SkipSheetNames:  []string{"半品"},
		StatusBlacklist: []string{"取消", "作廢", "結案"},
		CustomerMaxLen:  20,
	}
}

func (f WorkOrderFilter) skipSheet(index int, name string) bool {
	for _, i := range f.SkipSheets {
		if i == index {
			return true
		}
	}
	for _, n := range f.SkipSheetNames {
		if n != "" && n == name {
			return true
		}
	}
	return false
}

// WorkOrderSet 工单表解析结果
type WorkOrderSet struct {
	Orders     []entity.WorkOrder `json:"orders"`
	Duplicates []string           `json:"duplicates,omitempty"` // 被丢弃的重复工单号
}

// WorkOrderExtractor 工单总表提取器
type WorkOrderExtractor struct {
	filter   WorkOrderFilter
	columns  []workbook.ColumnSpec
	encoding string
	logger   *zap.Logger
}

// NewWorkOrderExtractor 创建工单提取器，encoding 仅对 CSV 源生效
func NewWorkOrderExtractor(filter WorkOrderFilter, columns []workbook.ColumnSpec, encoding string, logger *zap.Logger) *WorkOrderExtractor {
	if columns == nil {
		columns = DefaultWorkOrderColumns()
	}
	return &WorkOrderExtractor{filter: filter, columns: columns, encoding: encoding, logger: logger}
}

// Load 解析所有工作表，同一工单号以首次出现为准
func (e *WorkOrderExtractor) Load(path string) *WorkOrderSet {
	set := &WorkOrderSet{}

	sheets, err := workbook.ReadAll(path, workbook.WithEncoding(e.encoding))
	if err != nil {
		e.logger.Warn("Work order source unreadable", zap.String("path", path), zap.Error(err))
		return set
	}

	seen := make(map[string]bool)
	for idx := range sheets {
		sheet := &sheets[idx]
		if e.filter.skipSheet(idx, sheet.Name) {
			continue
		}
		cols := workbook.ResolveColumns(sheet.Header(), e.columns)
		if !cols.Has(ColWorkOrder) && !cols.Has(ColOrder) {
			e.logger.Warn("Work order sheet without id columns", zap.String("sheet", sheet.Name))
			continue
		}

		for i := 1; i < len(sheet.Rows); i++ {
			wo, ok := e.parseRow(cols, sheet.Rows[i], sheet.Name)
			if !ok {
				continue
			}
			if seen[wo.ID] {
				set.Duplicates = append(set.Duplicates, wo.ID)
				continue
			}
			seen[wo.ID] = true
			set.Orders = append(set.Orders, wo)
		}
	}

	if len(set.Duplicates) > 0 {
		e.logger.Warn("Duplicate work orders dropped",
			zap.Int("count", len(set.Duplicates)),
			zap.Strings("work_orders", set.Duplicates),
		)
	}
	return set
}

func (e *WorkOrderExtractor) parseRow(cols workbook.Columns, row []string, sheetName string) (entity.WorkOrder, bool) {
	id := ident.Normalize(cols.Get(row, ColWorkOrder))
	orderID := ident.Normalize(cols.Get(row, ColOrder))
	if id == "" && orderID == "" {
		return entity.WorkOrder{}, false
	}
	if ident.IsPlaceholder(id) {
		return entity.WorkOrder{}, false
	}
	if e.filter.NumericOnly && !ident.IsNumeric(id) {
		return entity.WorkOrder{}, false
	}
	if e.filter.IDPrefix != "" && !strings.HasPrefix(id, e.filter.IDPrefix) {
		return entity.WorkOrder{}, false
	}
	if containsAny(cols.Get(row, ColStatus), e.filter.StatusBlacklist) {
		return entity.WorkOrder{}, false
	}

	customer := cols.Get(row, ColCustomer)
	if n := e.filter.CustomerMaxLen; n > 0 {
		if r := []rune(customer); len(r) > n {
			customer = string(r[:n])
		}
	}

	return entity.WorkOrder{
		ID:              id,
		OrderID:         orderID,
		Code:            cols.Get(row, ColCode),
		Customer:        customer,
		Description:     cols.Get(row, ColDescription),
		SpecialNote:     cols.Get(row, ColNote),
		ProductionStart: workbook.DatePtr(cols.Get(row, ColStart)),
		ProductionEnd:   workbook.DatePtr(cols.Get(row, ColEnd)),
		Classification:  sheetName,
	}, true
}
