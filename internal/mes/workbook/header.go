package workbook

import "strings"

// ColumnSpec 列识别规则：精确表头 > 关键字 > 固定位置
type ColumnSpec struct {
	Key      string
	Exact    []string
	Keywords []string
	Fallback int // -1 表示没有固定位置
}

// Columns 逻辑列 -> 列号
type Columns map[string]int

// Index 列号，未识别返回 -1
func (c Columns) Index(key string) int {
	if i, ok := c[key]; ok {
		return i
	}
	return -1
}

// Get 取行中逻辑列的值
func (c Columns) Get(row []string, key string) string {
	return Cell(row, c.Index(key))
}

// Has 是否识别到该列
func (c Columns) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// ResolveColumns 按规则顺序识别列，每一列只能被认领一次。
// 工单表头存在乱码，精确匹配失败时退回关键字包含匹配
func ResolveColumns(header []string, specs []ColumnSpec) Columns {
	cols := make(Columns, len(specs))
	claimed := make(map[int]bool)

	trimmed := make([]string, len(header))
	for i, h := range header {
		trimmed[i] = strings.TrimSpace(h)
	}

	// 精确匹配
	for _, spec := range specs {
		for _, name := range spec.Exact {
			if idx := findColumn(trimmed, claimed, func(h string) bool { return h == name }); idx >= 0 {
				cols[spec.Key] = idx
				claimed[idx] = true
				break
			}
		}
	}

	// 关键字匹配
	for _, spec := range specs {
		if cols.Has(spec.Key) {
			continue
		}
		for _, kw := range spec.Keywords {
			if kw == "" {
				continue
			}
			if idx := findColumn(trimmed, claimed, func(h string) bool { return strings.Contains(h, kw) }); idx >= 0 {
				cols[spec.Key] = idx
				claimed[idx] = true
				break
			}
		}
	}

	// 固定位置
	for _, spec := range specs {
		if cols.Has(spec.Key) || spec.Fallback < 0 || claimed[spec.Fallback] {
			continue
		}
		cols[spec.Key] = spec.Fallback
		claimed[spec.Fallback] = true
	}

	return cols
}

func findColumn(header []string, claimed map[int]bool, match func(string) bool) int {
	for i, h := range header {
		if claimed[i] || h == "" {
			continue
		}
		if match(h) {
			return i
		}
	}
	return -1
}
