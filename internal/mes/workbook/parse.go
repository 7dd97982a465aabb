package workbook

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ParseQty 按浮点解析后截断为整数；空值或无法解析返回 (0, false)
func ParseQty(s string) (int, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// Qty 解析数量，失败时为0
func Qty(s string) int {
	v, _ := ParseQty(s)
	return v
}

// Excel 序列日期的合理范围（1900-01-01 ~ 9999-12-31）
const maxExcelSerial = 2958465

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"2006/1/2",
	"2006.01.02",
	"20060102",
	time.RFC3339,
}

// ParseDate 解析日期：Excel 序列值或常见文本格式
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= maxExcelSerial {
		t, err := excelize.ExcelDateToTime(f, false)
		if err == nil {
			return t, true
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DatePtr 解析日期，失败返回 nil
func DatePtr(s string) *time.Time {
	t, ok := ParseDate(s)
	if !ok {
		return nil
	}
	return &t
}
