package extractor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/ident"
	"github.com/Hsinwei-29/mes/internal/mes/testutil"
	"go.uber.org/zap"
)

func TestInventoryLoad(t *testing.T) {
	dir := t.TempDir()
	partTypes := entity.DefaultPartTypes()
	path := testutil.WriteInventory(t, dir, partTypes, map[string][]testutil.InvRow{
		"底座": {
			{PartNumber: "A1", Model: "VMC-850 (舊)", Qty: map[string]int{"素材": 5, "成品研磨": 2}},
			{PartNumber: "", Model: "LV-1000", Qty: map[string]int{}},
			{PartNumber: "1.1e9", Model: "AX-5", Qty: map[string]int{"製程三": 1}},
		},
		"工作台": {
			{PartNumber: "B1", Model: "VMC-850", Qty: map[string]int{"成品": 4, "製程一": 1}},
		},
	})

	e := NewInventoryExtractor(partTypes, nil, zap.NewNop())
	set := e.Load(path)

	base, ok := set.Part("base")
	if !ok {
		t.Fatalf("base part type not found by code")
	}
	if len(base.Rows) != 3 {
		t.Fatalf("expected 3 base rows, got %d", len(base.Rows))
	}
	first := base.Rows[0]
	if first.PartNumber != "A1" || first.ModelName != "VMC-850" || first.Total != 7 {
		t.Errorf("unexpected first row %+v", first)
	}
	if first.SheetRow != 2 {
		t.Errorf("expected sheet row 2, got %d", first.SheetRow)
	}
	if base.Rows[1].PartNumber != entity.PlaceholderPartNumber {
		t.Errorf("empty part number should become placeholder, got %q", base.Rows[1].PartNumber)
	}
	if base.Rows[2].PartNumber != "1100000000" {
		t.Errorf("scientific notation part number not normalized: %q", base.Rows[2].PartNumber)
	}
	if base.Total() != 8 {
		t.Errorf("expected base total 8, got %d", base.Total())
	}

	for _, p := range set.Parts {
		for _, r := range p.Rows {
			sum := 0
			for _, s := range r.Stages {
				sum += s.Qty
			}
			if sum != r.Total {
				t.Errorf("row %s total %d != stage sum %d", r.PartNumber, r.Total, sum)
			}
		}
	}

	names := map[string]entity.ModelRecord{}
	for _, m := range set.Models {
		names[m.Name] = m
	}
	if len(set.Models) != 3 {
		t.Fatalf("expected 3 models, got %v", set.Models)
	}
	vmc := names["VMC-850"]
	if vmc.Finished["底座"] != 2 || vmc.Finished["工作台"] != 4 || vmc.Total != 6 {
		t.Errorf("unexpected VMC-850 record %+v", vmc)
	}
	if lv, ok := names["LV-1000"]; !ok || lv.Total != 0 {
		t.Errorf("zero-stock model should be retained, got %+v", lv)
	}
}

func TestInventoryUnreadable(t *testing.T) {
	e := NewInventoryExtractor(entity.DefaultPartTypes(), nil, zap.NewNop())
	set := e.Load(filepath.Join(t.TempDir(), "missing.xlsx"))
	if len(set.Parts) != 4 {
		t.Fatalf("expected configured part types even when unreadable")
	}
	for _, p := range set.Parts {
		if len(p.Rows) != 0 {
			t.Errorf("expected no rows for %s", p.Config.Name)
		}
	}
	if len(set.Models) != 0 {
		t.Errorf("expected no models")
	}
}

func TestClassifier(t *testing.T) {
	c := NewClassifier(entity.DefaultPartTypes())
	tests := []struct {
		desc, want string
	}{
		{"鑄件 底座 VMC", "底座"},
		{"底座馬達 組", ""},
		{"底座 工作台 組合", "底座"},
		{"工作台", "工作台"},
		{"橫樑 L", "橫樑"},
		{"立柱", "立柱"},
		{"螺絲", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.desc); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.desc, got, tt.want)
		}
	}
}

func TestPickingLoad(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WritePicking(t, dir, []testutil.PickRow{
		{Order: "1.00001234e9", Material: "A100000001-01", Demand: 3, Picked: 1, Pending: 2, Description: "底座 VMC", RequiredBy: "2026-02-01"},
		{Order: 1000012340, Material: "B100000001-01", Demand: 1, Picked: 0, Pending: 1, Description: "工作台", RequiredBy: "2026-01-20"},
		{Order: 1000012340, Material: "C1", Demand: 1, Picked: 1, Pending: 0, Description: "立柱"},
		{Order: "", Material: "X1", Demand: 1, Pending: 1, Description: "底座"},
		{Order: 2000, Material: "M1", Demand: 2, Pending: 2, Description: "底座馬達"},
	})

	e := NewPickingExtractor(entity.DefaultPartTypes(), nil, zap.NewNop())
	set := e.Load(path)

	if len(set.Lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(set.Lines))
	}
	if set.Lines[0].OrderID != "1000012340" {
		t.Errorf("order id not normalized: %q", set.Lines[0].OrderID)
	}
	if set.Lines[0].DemandQty != 3 || set.Lines[0].PickedQty != 1 || set.Lines[0].PendingQty != 2 {
		t.Errorf("unexpected quantities %+v", set.Lines[0])
	}

	d := set.Demand["1000012340"]
	if d == nil {
		t.Fatalf("missing aggregated demand")
	}
	if d.Quantities["底座"] != 2 || d.Quantities["工作台"] != 1 || d.Quantities["立柱"] != 0 {
		t.Errorf("unexpected demand %v", d.Quantities)
	}
	if len(d.Dates) != 2 {
		t.Errorf("expected 2 dates, got %d", len(d.Dates))
	}
	if earliest := d.EarliestDate(); earliest == nil || earliest.Day() != 20 {
		t.Errorf("unexpected earliest date %v", earliest)
	}

	motor := set.Demand["2000"]
	if motor == nil || motor.Quantities["底座"] != 0 {
		t.Errorf("motor base should not be counted as base demand: %+v", motor)
	}
}

func TestWorkOrderLoad(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteWorkOrders(t, dir, []string{"一廠", "半品", "二廠"}, map[string][]testutil.WORow{
		"一廠": {
			{ID: 1000012340, Order: "ORD-1", Customer: "這是一個非常非常長的客戶名稱超過二十個字元的測試", Start: "2026-01-10", End: "2026-03-01"},
			{ID: "1.0000123e9", Order: "ORD-2", Customer: "B"},
			{ID: "2000012345", Order: "ORD-3", Customer: "C"},
			{ID: "10000ABC", Order: "ORD-4", Customer: "D"},
			{ID: 1000099999, Order: "ORD-5", Customer: "E", Status: "已取消"},
		},
		"半品": {
			{ID: 1000077777, Order: "ORD-6", Customer: "F"},
		},
		"二廠": {
			{ID: 1000012340, Order: "ORD-7", Customer: "dup"},
			{ID: 1000055555, Order: "ORD-8", Customer: "G", Note: "特殊", Code: "WC-1"},
		},
	})

	e := NewWorkOrderExtractor(DefaultWorkOrderFilter(), nil, "", zap.NewNop())
	set := e.Load(path)

	if len(set.Orders) != 3 {
		t.Fatalf("expected 3 work orders, got %d: %+v", len(set.Orders), set.Orders)
	}
	first := set.Orders[0]
	if first.ID != "1000012340" || first.OrderID != "ORD-1" || first.Classification != "一廠" {
		t.Errorf("unexpected first order %+v", first)
	}
	if n := len([]rune(first.Customer)); n != 20 {
		t.Errorf("customer should be truncated to 20 runes, got %d", n)
	}
	if first.ProductionStart == nil || first.ProductionEnd == nil {
		t.Errorf("expected production dates")
	}
	if set.Orders[1].ID != "1000012300" {
		t.Errorf("scientific work order id not normalized: %q", set.Orders[1].ID)
	}
	last := set.Orders[2]
	if last.ID != "1000055555" || last.Classification != "二廠" || last.SpecialNote != "特殊" || last.Code != "WC-1" {
		t.Errorf("unexpected last order %+v", last)
	}
	if len(set.Duplicates) != 1 || set.Duplicates[0] != "1000012340" {
		t.Errorf("expected duplicate to be reported, got %v", set.Duplicates)
	}
}

func TestWorkOrderCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "工單總表.csv")
	content := "工單號碼,訂單,下單客戶名稱\n1000011111,ORD-1,甲\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	filter := DefaultWorkOrderFilter()
	e := NewWorkOrderExtractor(filter, nil, "utf-8", zap.NewNop())
	set := e.Load(path)
	if len(set.Orders) != 1 || set.Orders[0].Customer != "甲" {
		t.Errorf("unexpected csv orders %+v", set.Orders)
	}
}

func TestModelIndexCoversAllSheets(t *testing.T) {
	dir := t.TempDir()
	partTypes := entity.DefaultPartTypes()
	data := map[string][]testutil.InvRow{
		"底座":  {{PartNumber: "A1", Model: "M-1"}},
		"工作台": {{PartNumber: "B1", Model: "M_2"}},
		"橫樑":  {{PartNumber: "C1", Model: "M-1"}},
		"立柱":  {{PartNumber: "D1", Model: "M3"}},
	}
	path := testutil.WriteInventory(t, dir, partTypes, data)
	set := NewInventoryExtractor(partTypes, ident.NewModelNormalizer(nil), zap.NewNop()).Load(path)

	count := map[string]int{}
	for _, m := range set.Models {
		count[m.Name]++
	}
	for _, rows := range data {
		for _, r := range rows {
			if count[r.Model] != 1 {
				t.Errorf("model %s appears %d times", r.Model, count[r.Model])
			}
		}
	}
}
