package workbook

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// decoderFor 根据编码名选择解码器，未知或 utf-8 返回 nil
func decoderFor(enc string) encoding.Encoding {
	switch strings.ToLower(strings.ReplaceAll(enc, "-", "")) {
	case "big5":
		return traditionalchinese.Big5
	case "gbk", "gb2312":
		return simplifiedchinese.GBK
	case "gb18030":
		return simplifiedchinese.GB18030
	}
	return nil
}

// readCSV 读取 ERP 导出的 CSV，整个文件视为一个工作表
func readCSV(path, enc string) (*Sheet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()

	var reader io.Reader = bufio.NewReader(file)
	if dec := decoderFor(enc); dec != nil {
		reader = transform.NewReader(reader, dec.NewDecoder())
	}

	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Sheet{Name: name, Rows: rows}, nil
}
