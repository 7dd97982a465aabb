package service

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/reconcile"
	"github.com/Hsinwei-29/mes/internal/mes/workbook"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// 缺料报表工作表名
const (
	SheetAllLines = "全部記錄"
	SheetShortage = "缺料清單"
)

var shortageExportHeaders = []string{
	"工單號碼", "訂單", "客戶", "生產開始", "生產結束", "品號", "鑄件", "機型", "物料說明",
	"需求數量", "已領數量", "未結數量", "庫存", "在製", "目前缺料", "最終缺料", "狀態", "特規備註",
}

// ShortageService 缺料计算与报表
type ShortageService struct {
	sources *Sources
	logger  *zap.Logger
	now     func() time.Time
}

// NewShortageService 创建缺料服务
func NewShortageService(sources *Sources, logger *zap.Logger) *ShortageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShortageService{sources: sources, logger: logger, now: time.Now}
}

// Compute 缺料计算结果（含诊断）
func (s *ShortageService) Compute() reconcile.Result {
	return s.sources.Shortage.Get()
}

// Lines 缺料清单
func (s *ShortageService) Lines() []entity.ShortageLine {
	return s.Compute().Lines
}

// Short 最终缺料大于0的行
func (s *ShortageService) Short() []entity.ShortageLine {
	var out []entity.ShortageLine
	for _, l := range s.Lines() {
		if l.FinalShortfall > 0 {
			out = append(out, l)
		}
	}
	return out
}

// Export 生成缺料报表：全部记录、缺料清单、各铸件类型分表
func (s *ShortageService) Export() (*excelize.File, string, error) {
	lines := s.Lines()

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetAllLines); err != nil {
		f.Close()
		return nil, "", fmt.Errorf("rename sheet: %w", err)
	}

	// 表头样式: 加粗
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	shortStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "C00000", Bold: true},
	})

	var short []entity.ShortageLine
	byPart := make(map[string][]entity.ShortageLine)
	for _, l := range lines {
		if l.FinalShortfall > 0 {
			short = append(short, l)
		}
		byPart[l.PartType] = append(byPart[l.PartType], l)
	}

	if err := s.writeSheet(f, SheetAllLines, lines, boldStyle, shortStyle); err != nil {
		f.Close()
		return nil, "", err
	}
	if _, err := f.NewSheet(SheetShortage); err != nil {
		f.Close()
		return nil, "", fmt.Errorf("new sheet: %w", err)
	}
	if err := s.writeSheet(f, SheetShortage, short, boldStyle, shortStyle); err != nil {
		f.Close()
		return nil, "", err
	}
	for _, p := range s.sources.Options().PartTypes {
		if _, err := f.NewSheet(p.Name); err != nil {
			f.Close()
			return nil, "", fmt.Errorf("new sheet: %w", err)
		}
		if err := s.writeSheet(f, p.Name, byPart[p.Name], boldStyle, shortStyle); err != nil {
			f.Close()
			return nil, "", err
		}
	}
	f.SetActiveSheet(0)

	return f, s.ReportName(), nil
}

// ReportName 报表默认文件名
func (s *ShortageService) ReportName() string {
	return fmt.Sprintf("缺料報表_%s.xlsx", s.now().Format("20060102_150405"))
}

func (s *ShortageService) writeSheet(f *excelize.File, sheet string, lines []entity.ShortageLine, headStyle, shortStyle int) error {
	for i, h := range shortageExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headStyle)
	}

	for idx, l := range lines {
		row := idx + 2
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []interface{}{
			l.WorkOrderID, l.OrderID, l.Customer, formatDate(l.ProductionStart), formatDate(l.ProductionEnd),
			l.PartNumber, l.PartType, l.ModelName, l.Description,
			l.Demand, l.Picked, l.Pending, l.Stock, l.Semi, l.CurrentShortfall, l.FinalShortfall,
			entity.StatusLabel(l.Status), l.SpecialNote,
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, row, err)
		}
		if l.FinalShortfall > 0 {
			p := fmt.Sprintf("P%d", row)
			f.SetCellStyle(sheet, p, p, shortStyle)
		}
	}

	// 列宽
	colWidths := []float64{14, 14, 20, 12, 12, 14, 8, 16, 24, 10, 10, 10, 8, 8, 10, 10, 8, 20}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

// ExportTo 报表写入文件，path 为空或目录时使用默认文件名，返回实际路径
func (s *ShortageService) ExportTo(path string) (string, error) {
	f, name, err := s.Export()
	if err != nil {
		return "", err
	}
	defer f.Close()

	if path == "" {
		path = name
	} else if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, name)
	}
	if err := workbook.SaveAtomic(f, path); err != nil {
		return "", err
	}
	s.logger.Info("Shortage report exported", zap.String("path", path))
	return path, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
