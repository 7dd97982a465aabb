// Package ident 标识符规范化：订单号、品号、机型名称
package ident

import (
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// DefaultPrefixLength 拨料物料码与盘点品号的共享前缀长度
// 盘点品号10位，拨料物料码带版本后缀（通常12位）
const DefaultPrefixLength = 10

// DefaultModelSuffixes 机型名称中需要去掉的后缀
var DefaultModelSuffixes = []string{"-NEW", "_NEW", " NEW", "-新"}

// maxNumericDigits 科学计数法展开后的最大位数，超出时视为普通文本
const maxNumericDigits = 30

var placeholders = map[string]bool{
	"":    true,
	"N/A": true,
	"NAN": true,
	"-":   true,
}

// IsPlaceholder 空值或占位符
func IsPlaceholder(s string) bool {
	return placeholders[strings.ToUpper(strings.TrimSpace(s))]
}

// Normalize 规范化标识符
// 浮点/科学计数法形式的数字转为精确整数串（1.1e9 -> 1100000000），
// 纯数字串原样保留（保留前导零），其它值仅去除首尾空白
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || !looksFloat(s) {
		return s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}
	if exp := int(d.Exponent()); exp < -maxNumericDigits || d.NumDigits()+exp > maxNumericDigits {
		return s
	}
	if d.Equal(d.Truncate(0)) {
		return d.Truncate(0).String()
	}
	return d.String()
}

// looksFloat 含小数点或指数的数字文本
func looksFloat(s string) bool {
	hasMark, sawDigit := false, false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			sawDigit = true
		case r == '.':
			hasMark = true
		case r == 'e' || r == 'E':
			if !sawDigit {
				return false
			}
			hasMark = true
		case (r == '+' || r == '-') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		default:
			return false
		}
	}
	return hasMark
}

// IsNumeric 全部为数字
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MatchKey 仅用于分组/排序的宽松键：去掉 - _ 空白并转大写，不可用于相等判断
func MatchKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '-' || r == '_' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Prefix 取前n个字符，长度不足时返回原串
func Prefix(code string, n int) string {
	runes := []rune(code)
	if n <= 0 || len(runes) <= n {
		return code
	}
	return string(runes[:n])
}

// ModelNormalizer 机型名称规范化
type ModelNormalizer struct {
	Suffixes []string
}

// NewModelNormalizer 使用给定后缀列表，nil 使用默认值
func NewModelNormalizer(suffixes []string) *ModelNormalizer {
	if suffixes == nil {
		suffixes = DefaultModelSuffixes
	}
	return &ModelNormalizer{Suffixes: suffixes}
}

// Canonical 去掉括号注记和已知后缀，反复处理直到不再变化
func (m *ModelNormalizer) Canonical(raw string) string {
	s := raw
	for {
		next := collapseSpaces(m.stripSuffixes(stripBrackets(Normalize(s))))
		if next == s {
			return s
		}
		s = next
	}
}

func (m *ModelNormalizer) stripSuffixes(s string) string {
	for _, suf := range m.Suffixes {
		if suf == "" || len(s) <= len(suf) {
			continue
		}
		if strings.EqualFold(s[len(s)-len(suf):], suf) {
			return strings.TrimSpace(s[:len(s)-len(suf)])
		}
	}
	return s
}

var bracketPairs = map[rune]rune{'(': ')', '（': '）', '[': ']', '【': '】'}

// stripBrackets 去掉所有成对括号及其内容；未闭合的括号保留
func stripBrackets(s string) string {
	runes := []rune(s)
	var out []rune
	for i := 0; i < len(runes); i++ {
		closing, ok := bracketPairs[runes[i]]
		if !ok {
			out = append(out, runes[i])
			continue
		}
		end := -1
		for j := i + 1; j < len(runes); j++ {
			if runes[j] == closing {
				end = j
				break
			}
		}
		if end < 0 {
			out = append(out, runes[i])
			continue
		}
		i = end
	}
	return string(out)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// BuildModelIndex 合并所有工作表的机型：按规范名精确去重，
// 按 (MatchKey, 原串) 排序，使视觉等价的写法相邻
func BuildModelIndex(m *ModelNormalizer, sheets ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, names := range sheets {
		for _, raw := range names {
			name := m.Canonical(raw)
			if IsPlaceholder(name) || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := MatchKey(out[i]), MatchKey(out[j])
		if ki != kj {
			return ki < kj
		}
		return out[i] < out[j]
	})
	return out
}
