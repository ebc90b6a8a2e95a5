package domain

import (
	"fmt"
	"time"
)

const (
	minYear = 2000
	maxYear = 2100
)

// Period 填报周期（年、月）
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// NewPeriod 校验并创建周期
func NewPeriod(year, month int) (Period, error) {
	p := Period{Year: year, Month: month}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// ParsePeriod 严格解析 "2024-06" 格式，月份必须两位
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, Validationf("malformed period %q, expected YYYY-MM", s)
	}
	return NewPeriod(t.Year(), int(t.Month()))
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return Validationf("month %d out of range", p.Month)
	}
	if p.Year < minYear || p.Year > maxYear {
		return Validationf("year %d out of range", p.Year)
	}
	return nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

func (p Period) Prev() Period {
	if p.Month == 1 {
		return Period{Year: p.Year - 1, Month: 12}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// PeriodOf 时间戳所在的自然月
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// ReportingPeriodAt 计算给定时刻的当前填报周期。
// 每月 cutoverDay 日之前仍填报上月；cutoverDay <= 1 表示按自然月。
func ReportingPeriodAt(t time.Time, cutoverDay int) Period {
	p := PeriodOf(t)
	if cutoverDay > 1 && t.Day() < cutoverDay {
		return p.Prev()
	}
	return p
}

// PeriodClock 时钟抽象，所有“当前时间”判断都经由它获取
type PeriodClock interface {
	Now() time.Time
}

// SystemClock 系统时钟
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location != nil {
		return time.Now().In(c.Location)
	}
	return time.Now()
}

// FixedClock 固定时刻时钟，可通过 Advance 推进
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }
