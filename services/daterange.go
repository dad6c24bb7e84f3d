package services

import (
	"fmt"
	"strings"
	"time"

	"sales_dashboard/models"
)

const dateLayout = "2006-01-02"

// DateRange 日期范围，区间为[From, To)，零值表示不限
type DateRange struct {
	Label string    `json:"label"`
	From  time.Time `json:"from,omitempty"`
	To    time.Time `json:"to,omitempty"`
}

// Unbounded 是否不限日期
func (r DateRange) Unbounded() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// Contains 判断时间是否落在范围内
// 不限日期时全部包含；限定日期时没有日期的记录不包含
func (r DateRange) Contains(t time.Time) bool {
	if r.Unbounded() {
		return true
	}
	if t.IsZero() {
		return false
	}
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// Overlaps 判断闭区间[start, end]是否与范围相交
func (r DateRange) Overlaps(start, end time.Time) bool {
	if r.Unbounded() {
		return true
	}
	if !r.To.IsZero() && !start.Before(r.To) {
		return false
	}
	if !r.From.IsZero() && end.Before(r.From) {
		return false
	}
	return true
}

// KeyPart 返回缓存键片段
// 相对范围（today、month等）按解析后的日期生成，跨天后自然换键
func (r DateRange) KeyPart() string {
	if r.Unbounded() {
		return "all:"
	}
	return formatBound(r.From) + ":" + formatBound(r.To)
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// ParseDateRange 解析dateRange参数
// 支持all、today、week、month、quarter、year，以及YYYY-MM-DD,YYYY-MM-DD或YYYY-MM-DD..YYYY-MM-DD（含结束日）
func ParseDateRange(raw string, now time.Time) (DateRange, error) {
	label := strings.ToLower(strings.TrimSpace(raw))
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch label {
	case "", "all":
		return DateRange{Label: "all"}, nil
	case "today":
		return DateRange{Label: label, From: day, To: day.AddDate(0, 0, 1)}, nil
	case "week":
		// 周一为一周的开始
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return DateRange{Label: label, From: start, To: start.AddDate(0, 0, 7)}, nil
	case "month":
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return DateRange{Label: label, From: start, To: start.AddDate(0, 1, 0)}, nil
	case "quarter":
		month := time.Month((int(day.Month())-1)/3*3 + 1)
		start := time.Date(day.Year(), month, 1, 0, 0, 0, 0, day.Location())
		return DateRange{Label: label, From: start, To: start.AddDate(0, 3, 0)}, nil
	case "year":
		start := time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, day.Location())
		return DateRange{Label: label, From: start, To: start.AddDate(1, 0, 0)}, nil
	}

	sep := ","
	if strings.Contains(label, "..") {
		sep = ".."
	}
	parts := strings.SplitN(label, sep, 2)
	if len(parts) != 2 {
		return DateRange{}, fmt.Errorf("%w: 无法识别的日期范围 %q", models.ErrValidation, raw)
	}

	r := DateRange{Label: "custom"}
	if from := strings.TrimSpace(parts[0]); from != "" {
		t, err := time.ParseInLocation(dateLayout, from, now.Location())
		if err != nil {
			return DateRange{}, fmt.Errorf("%w: 开始日期格式错误 %q", models.ErrValidation, from)
		}
		r.From = t
	}
	if to := strings.TrimSpace(parts[1]); to != "" {
		t, err := time.ParseInLocation(dateLayout, to, now.Location())
		if err != nil {
			return DateRange{}, fmt.Errorf("%w: 结束日期格式错误 %q", models.ErrValidation, to)
		}
		r.To = t.AddDate(0, 0, 1)
	}
	if r.Unbounded() {
		return DateRange{Label: "all"}, nil
	}
	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return DateRange{}, fmt.Errorf("%w: 开始日期晚于结束日期", models.ErrValidation)
	}
	return r, nil
}
