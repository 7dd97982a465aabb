package workbook

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/traditionalchinese"
)

func TestParseQty(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"5", 5, true},
		{"5.9", 5, true},
		{"1,200", 1200, true},
		{" 3 ", 3, true},
		{"", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"-2", -2, true},
	}
	for _, tt := range tests {
		got, ok := ParseQty(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseQty(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
	if Qty("x") != 0 {
		t.Errorf("Qty should default to 0")
	}
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("2026-01-15")
	if !ok || d.Year() != 2026 || d.Month() != time.January || d.Day() != 15 {
		t.Errorf("unexpected date %v %v", d, ok)
	}
	d, ok = ParseDate("2026/3/5")
	if !ok || d.Month() != time.March || d.Day() != 5 {
		t.Errorf("unexpected slash date %v %v", d, ok)
	}
	// 45658 = 2025-01-01
	d, ok = ParseDate("45658")
	if !ok || d.Year() != 2025 || d.Month() != time.January || d.Day() != 1 {
		t.Errorf("unexpected serial date %v %v", d, ok)
	}
	if _, ok := ParseDate("not a date"); ok {
		t.Errorf("expected failure for garbage")
	}
	if DatePtr("") != nil {
		t.Errorf("empty date should be nil")
	}
}

func TestResolveColumns(t *testing.T) {
	header := []string{"訂單號碼", "工單號碼", "下單客戶名稱", "生產開始Ͳ", "生產結束 Term", "物料說明"}
	specs := []ColumnSpec{
		{Key: "wo", Exact: []string{"工單號碼"}, Keywords: []string{"工單", "號碼"}, Fallback: -1},
		{Key: "order", Exact: []string{"訂單"}, Keywords: []string{"訂單"}, Fallback: -1},
		{Key: "customer", Keywords: []string{"客戶"}, Fallback: -1},
		{Key: "start", Keywords: []string{"開始", "Ͳ"}, Fallback: -1},
		{Key: "end", Keywords: []string{"結束", "Term", "Ͳ"}, Fallback: -1},
		{Key: "note", Keywords: []string{"特規"}, Fallback: -1},
		{Key: "desc", Keywords: []string{"說明"}, Fallback: 9},
	}
	cols := ResolveColumns(header, specs)

	want := map[string]int{"wo": 1, "order": 0, "customer": 2, "start": 3, "end": 4, "desc": 5}
	for k, v := range want {
		if cols.Index(k) != v {
			t.Errorf("column %s = %d, want %d", k, cols.Index(k), v)
		}
	}
	if cols.Has("note") {
		t.Errorf("note column should be unresolved")
	}
	if got := cols.Get([]string{"A", "B"}, "end"); got != "" {
		t.Errorf("out of range cell should be empty, got %q", got)
	}
}

func TestResolveColumnsFallback(t *testing.T) {
	cols := ResolveColumns([]string{"x", "y"}, []ColumnSpec{
		{Key: "order", Keywords: []string{"訂單"}, Fallback: 0},
		{Key: "qty", Keywords: []string{"數量"}, Fallback: 4},
	})
	if cols.Index("order") != 0 || cols.Index("qty") != 4 {
		t.Errorf("unexpected fallback columns %v", cols)
	}
}

func TestReadCSVBig5(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "工單總表.csv")

	content := "工單號碼,客戶\n100001,測試客戶\n"
	encoded, err := traditionalchinese.Big5.NewEncoder().String(content)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, []byte(encoded), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	sheets, err := ReadAll(path, WithEncoding("big5"))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(sheets) != 1 {
		t.Fatalf("expected 1 sheet, got %d", len(sheets))
	}
	if sheets[0].Name != "工單總表" {
		t.Errorf("unexpected sheet name %q", sheets[0].Name)
	}
	if sheets[0].Cell(0, 0) != "工單號碼" || sheets[0].Cell(1, 1) != "測試客戶" {
		t.Errorf("unexpected decoded rows %v", sheets[0].Rows)
	}
}

func TestReadAllUnsupported(t *testing.T) {
	if _, err := ReadAll("legacy.xls"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestSaveAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.xlsx")

	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "品號")
	f.SetCellValue("Sheet1", "A2", 7)
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	wb, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	name, err := SheetName(wb, 0, "")
	if err != nil {
		t.Fatalf("SheetName: %v", err)
	}
	wb.SetCellValue(name, CellName(0, 2), 9)
	if err := SaveAtomic(wb, path); err != nil {
		t.Fatalf("SaveAtomic: %v", err)
	}
	wb.Close()

	sheet, err := ReadSheet(path, 0, "")
	if err != nil {
		t.Fatalf("ReadSheet: %v", err)
	}
	if sheet.Cell(1, 0) != "9" {
		t.Errorf("expected saved value 9, got %q", sheet.Cell(1, 0))
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}
