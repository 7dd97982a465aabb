package entity

// PlaceholderPartNumber 无品号行使用的占位符
const PlaceholderPartNumber = "N/A"

// StageValue 某工序的数量
type StageValue struct {
	Label string `json:"label"`
	Qty   int    `json:"qty"`
}

// InventoryRow 铸件盘点表中的一行
type InventoryRow struct {
	PartType   string       `json:"part_type"`
	PartNumber string       `json:"part_number"`
	ModelName  string       `json:"model_name"`
	RawModel   string       `json:"raw_model"`
	Stages     []StageValue `json:"stages"` // 按配置顺序，不含总数
	Total      int          `json:"total"`
	SheetRow   int          `json:"sheet_row"` // 1-based Excel 行号
}

// Qty 按标签取数量，未知标签返回0
func (r InventoryRow) Qty(label string) int {
	for _, s := range r.Stages {
		if s.Label == label {
			return s.Qty
		}
	}
	return 0
}

// SumOf 指定标签数量之和
func (r InventoryRow) SumOf(labels []string) int {
	sum := 0
	for _, l := range labels {
		sum += r.Qty(l)
	}
	return sum
}

// ModelRecord 去重后的机型，汇总各铸件的成品数量
type ModelRecord struct {
	Name     string         `json:"name"`
	MatchKey string         `json:"match_key"`
	Finished map[string]int `json:"finished"` // 铸件类型 -> 成品数量
	Total    int            `json:"total"`
}
