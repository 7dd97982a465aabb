package testutil

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/xuri/excelize/v2"
)

// SheetData 测试工作表：第一行为表头
type SheetData struct {
	Name string
	Rows [][]interface{}
}

// WriteWorkbook 按顺序写出工作表
func WriteWorkbook(t *testing.T, path string, sheets []SheetData) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			t.Fatalf("new sheet %s: %v", s.Name, err)
		}
		for r, row := range s.Rows {
			cell, _ := excelize.CoordinatesToCellName(1, r+1)
			values := row
			if err := f.SetSheetRow(s.Name, cell, &values); err != nil {
				t.Fatalf("write row %d of %s: %v", r+1, s.Name, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

// InvRow 盘点表测试行
type InvRow struct {
	PartNumber interface{}
	Model      string
	Qty        map[string]int // 工序标签 -> 数量
}

// WriteInventory 生成铸件盘点表：第0页为总数页，之后按配置序号放置各铸件工作表
func WriteInventory(t *testing.T, dir string, partTypes []entity.PartTypeConfig, data map[string][]InvRow) string {
	t.Helper()

	ordered := append([]entity.PartTypeConfig(nil), partTypes...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Sheet < ordered[j].Sheet })

	sheets := []SheetData{{Name: "總數", Rows: [][]interface{}{{"機型", "底座", "工作台", "橫樑", "立柱"}}}}
	for _, cfg := range ordered {
		width := 2
		for _, s := range cfg.Stages {
			if s.Column+1 > width {
				width = s.Column + 1
			}
		}

		header := make([]interface{}, width)
		header[0], header[1] = "品號", "機型"
		for _, s := range cfg.Stages {
			header[s.Column] = s.Label
		}
		rows := [][]interface{}{header}

		for _, r := range data[cfg.Name] {
			row := make([]interface{}, width)
			row[0], row[1] = r.PartNumber, r.Model
			total := 0
			for _, s := range cfg.Counted() {
				q := r.Qty[s.Label]
				row[s.Column] = q
				total += q
			}
			row[cfg.Total().Column] = total
			rows = append(rows, row)
		}
		sheets = append(sheets, SheetData{Name: cfg.Name, Rows: rows})
	}

	return WriteWorkbook(t, filepath.Join(dir, "鑄件盤點資料.xlsx"), sheets)
}

// PickingHeader 成品拨料表表头
var PickingHeader = []interface{}{
	"訂單", "物料", "需求數量 (EINHEIT)", "領料數量 (EINHEIT)", "未結數量 (EINHEIT)", "物料說明", "單位", "儲存地點", "需求日期",
}

// PickRow 拨料测试行
type PickRow struct {
	Order       interface{}
	Material    string
	Demand      int
	Picked      int
	Pending     int
	Description string
	RequiredBy  string
}

// WritePicking 生成成品拨料表
func WritePicking(t *testing.T, dir string, lines []PickRow) string {
	t.Helper()
	rows := [][]interface{}{PickingHeader}
	for _, l := range lines {
		rows = append(rows, []interface{}{
			l.Order, l.Material, l.Demand, l.Picked, l.Pending, l.Description, "PC", "1000", l.RequiredBy,
		})
	}
	return WriteWorkbook(t, filepath.Join(dir, "成品撥料.xlsx"), []SheetData{{Name: "Sheet1", Rows: rows}})
}

// WorkOrderHeader 工单表表头
var WorkOrderHeader = []interface{}{
	"工單號碼", "訂單", "下單客戶名稱", "物料說明", "生產開始", "生產結束", "工單編碼", "特規備註", "狀態",
}

// WORow 工单测试行
type WORow struct {
	ID       interface{}
	Order    interface{}
	Customer string
	Desc     string
	Start    string
	End      string
	Code     string
	Note     string
	Status   string
}

func (r WORow) values() []interface{} {
	return []interface{}{r.ID, r.Order, r.Customer, r.Desc, r.Start, r.End, r.Code, r.Note, r.Status}
}

// WriteWorkOrders 生成工单总表，sheets 为 工作表名 -> 工单行
// 第1页（半品）按默认规则会被跳过
func WriteWorkOrders(t *testing.T, dir string, names []string, data map[string][]WORow) string {
	t.Helper()
	var sheets []SheetData
	for _, name := range names {
		rows := [][]interface{}{WorkOrderHeader}
		for _, r := range data[name] {
			rows = append(rows, r.values())
		}
		sheets = append(sheets, SheetData{Name: name, Rows: rows})
	}
	return WriteWorkbook(t, filepath.Join(dir, "工單總表.xlsx"), sheets)
}
