package normalizer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// timeLayouts 各数据源出现过的时间格式，按顺序尝试
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02.01.2006",
}

// periodLayouts 目标周期可能出现的格式
var periodLayouts = []string{
	"2006-01",
	"2006-01-02",
	"2006/01",
	"01/2006",
	time.RFC3339,
}

// foldKey 折叠字段名：忽略大小写、下划线、连字符、空格和点
// 使 amount_paid、amountPaid、"Amount Paid" 映射到同一个键
func foldKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range strings.ToLower(key) {
		switch r {
		case '_', '-', ' ', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isEmpty 判断值是否为空
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []byte:
		return len(strings.TrimSpace(string(t))) == 0
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		// 嵌套文档不能直接作为标量字段的值
		return true
	case time.Time:
		return t.IsZero()
	case *time.Time:
		return t == nil || t.IsZero()
	}
	return false
}

// toString 将任意值转换为字符串
func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case decimal.Decimal:
		return t.String()
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// toDecimal 宽松地解析金额
// 无法解析的值返回0，不会导致整条记录失败；负数按0处理
func toDecimal(v any) decimal.Decimal {
	var d decimal.Decimal
	switch t := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		d = t
	case *decimal.Decimal:
		if t == nil {
			return decimal.Zero
		}
		d = *t
	case float64:
		d = decimal.NewFromFloat(t)
	case float32:
		d = decimal.NewFromFloat32(t)
	case int:
		d = decimal.NewFromInt(int64(t))
	case int32:
		d = decimal.NewFromInt32(t)
	case int64:
		d = decimal.NewFromInt(t)
	case uint:
		d = decimal.NewFromInt(int64(t))
	case uint64:
		d = decimal.NewFromInt(int64(t))
	default:
		s := toString(v)
		s = strings.NewReplacer(",", "", "$", "", "€", "", "£", "", " ", "").Replace(s)
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// toInt 宽松地解析整数，无法解析或为负数时返回0
func toInt(v any) int {
	return int(toDecimal(v).IntPart())
}

// toBool 宽松地解析布尔值
func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	case int, int32, int64, float64, float32, uint, uint64:
		return !toDecimal(t).IsZero()
	}
	switch strings.ToLower(toString(v)) {
	case "true", "1", "yes", "y", "read", "t":
		return true
	}
	return false
}

// toTime 宽松地解析时间，无法解析时返回零值
func toTime(v any) time.Time {
	switch t := v.(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return t
	case *time.Time:
		if t == nil {
			return time.Time{}
		}
		return *t
	case int64:
		return fromUnix(t)
	case int:
		return fromUnix(int64(t))
	case float64:
		return fromUnix(int64(t))
	}
	s := toString(v)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromUnix(n)
	}
	return time.Time{}
}

// fromUnix 秒或毫秒时间戳转换为时间
func fromUnix(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// toPeriod 将各种日期写法统一为 YYYY-MM
func toPeriod(v any) string {
	if t, ok := v.(time.Time); ok {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01")
	}
	s := toString(v)
	for _, layout := range periodLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.Format("2006-01")
		}
	}
	return ""
}

// toStringList 解析接收人列表
// 支持数组、JSON数组字符串以及逗号/分号分隔的字符串
func toStringList(v any) []string {
	var items []string
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		items = t
	case []any:
		for _, item := range t {
			items = append(items, toString(item))
		}
	default:
		s := toString(v)
		if strings.HasPrefix(s, "[") {
			var decoded []any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return toStringList(decoded)
			}
		}
		items = strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
