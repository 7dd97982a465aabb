// Package workbook 工作簿读写：excelize 读取原始单元格，CSV 兼容旧编码，原子保存
package workbook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported workbook format")
	ErrSheetNotFound     = errors.New("sheet not found")
)

// Sheet 工作表原始文本，Rows[0] 为表头
type Sheet struct {
	Name string
	Rows [][]string
}

// Header 表头行
func (s *Sheet) Header() []string {
	if s == nil || len(s.Rows) == 0 {
		return nil
	}
	return s.Rows[0]
}

// Cell 读取单元格（0-based），越界返回空串
func (s *Sheet) Cell(row, col int) string {
	if s == nil || row < 0 || row >= len(s.Rows) {
		return ""
	}
	return Cell(s.Rows[row], col)
}

// Cell 读取行中的单元格并去掉首尾空白
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// Options 读取选项
type Options struct {
	Encoding string // CSV 源编码：utf-8 / big5 / gbk / gb18030
}

// Option 读取选项设置函数
type Option func(*Options)

// WithEncoding 设置 CSV 源编码
func WithEncoding(enc string) Option {
	return func(o *Options) { o.Encoding = enc }
}

// ReadAll 读取文件的全部工作表
func ReadAll(path string, opts ...Option) ([]Sheet, error) {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return readExcel(path)
	case ".csv", ".txt":
		sheet, err := readCSV(path, o.Encoding)
		if err != nil {
			return nil, err
		}
		return []Sheet{*sheet}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ReadSheet 读取指定工作表，name 非空时按名称，否则按序号
func ReadSheet(path string, index int, name string, opts ...Option) (*Sheet, error) {
	sheets, err := ReadAll(path, opts...)
	if err != nil {
		return nil, err
	}
	if name != "" {
		for i := range sheets {
			if sheets[i].Name == name {
				return &sheets[i], nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, name)
	}
	if index < 0 || index >= len(sheets) {
		return nil, fmt.Errorf("%w: index %d", ErrSheetNotFound, index)
	}
	return &sheets[index], nil
}

func readExcel(path string) ([]Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	names := f.GetSheetList()
	sheets := make([]Sheet, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		sheets = append(sheets, Sheet{Name: name, Rows: rows})
	}
	return sheets, nil
}

// Open 打开工作簿用于修改
func Open(path string) (*excelize.File, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	return f, nil
}

// SheetName 按名称或序号解析工作表名
func SheetName(f *excelize.File, index int, name string) (string, error) {
	if name != "" {
		if idx, err := f.GetSheetIndex(name); err != nil || idx < 0 {
			return "", fmt.Errorf("%w: %s", ErrSheetNotFound, name)
		}
		return name, nil
	}
	list := f.GetSheetList()
	if index < 0 || index >= len(list) {
		return "", fmt.Errorf("%w: index %d", ErrSheetNotFound, index)
	}
	return list[index], nil
}

// CellName 0-based 列号 + 1-based 行号 转为 A1 形式
func CellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col+1, row)
	return name
}

// SaveAtomic 写入同目录临时文件后重命名替换，失败时原文件保持不变
func SaveAtomic(f *excelize.File, path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		os.Chmod(tmpName, info.Mode())
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}
