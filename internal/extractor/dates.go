package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"portfolio-agent-go/internal/types"
)

// timeNow 测试注入点
var timeNow = time.Now

// 英文月份名与缩写映射
var monthNames = map[string]int{
	"january": 1, "jan": 1,
	"february": 2, "feb": 2,
	"march": 3, "mar": 3,
	"april": 4, "apr": 4,
	"may": 5,
	"june": 6, "jun": 6,
	"july": 7, "jul": 7,
	"august": 8, "aug": 8,
	"september": 9, "sep": 9, "sept": 9,
	"october": 10, "oct": 10,
	"november": 11, "nov": 11,
	"december": 12, "dec": 12,
}

// "present" 等哨兵词，解析为当前年月
var presentWords = map[string]bool{
	"present": true,
	"current": true,
	"now":     true,
	"ongoing": true,
	"today":   true,
}

var (
	isoDateRe   = regexp.MustCompile(`^(\d{4})-(\d{1,2})(?:-(\d{1,2}))?$`)
	slashDateRe = regexp.MustCompile(`^(\d{1,2})/(\d{4})$`)
	monthYearRe = regexp.MustCompile(`(?i)^([a-z]+)\.?,?\s+(\d{4})$`)
	bareYearRe  = regexp.MustCompile(`^(\d{4})$`)
	yearSpanRe  = regexp.MustCompile(`(?i)(more than|over|approximately|approx\.?|about|around|nearly)?\s*(\d{1,2})\s*\+?\s*years?`)
)

// ParseYearMonth 从自由文本解析 (年, 月)。
// 支持 "YYYY-MM"、"Month YYYY"、"MM/YYYY"、裸 "YYYY"，
// 以及 "present/current/now" 等哨兵词（大小写不敏感，容忍尾部标点）。
// 无法识别时返回 nil，绝不猜测。
func ParseYearMonth(text string) *types.YearMonth {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil
	}

	// 哨兵词：容忍尾部的句点、逗号等
	lowered := strings.ToLower(strings.Trim(s, " .,;!)"))
	if presentWords[lowered] {
		now := timeNow()
		return &types.YearMonth{Year: now.Year(), Month: int(now.Month())}
	}

	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 && plausibleYear(year) {
			return &types.YearMonth{Year: year, Month: month}
		}
		return nil
	}

	if m := slashDateRe.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 && plausibleYear(year) {
			return &types.YearMonth{Year: year, Month: month}
		}
		return nil
	}

	if m := monthYearRe.FindStringSubmatch(s); m != nil {
		month, ok := monthNames[strings.ToLower(m[1])]
		if !ok {
			return nil
		}
		year, _ := strconv.Atoi(m[2])
		if !plausibleYear(year) {
			return nil
		}
		return &types.YearMonth{Year: year, Month: month}
	}

	if m := bareYearRe.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		if plausibleYear(year) {
			return &types.YearMonth{Year: year} // 月份未知，置0
		}
	}

	return nil
}

// plausibleYear 过滤明显不是年份的四位数
func plausibleYear(year int) bool {
	return year >= 1900 && year <= timeNow().Year()+10
}

// ParseYearSpan 解析经验年限短语，如 "10+ years"、"more than 8 years"、
// "approximately 5 years"。无法识别时返回 nil。
func ParseYearSpan(text string) *types.ExperienceYears {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil
	}

	m := yearSpanRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}

	years, err := strconv.Atoi(m[2])
	if err != nil || years <= 0 {
		return nil
	}

	qualifier := "exact"
	modifier := strings.ToLower(strings.TrimSpace(m[1]))
	switch {
	case strings.Contains(m[0], "+"), modifier == "more than", modifier == "over":
		qualifier = "more_than"
	case modifier != "":
		qualifier = "approximately"
	}

	return &types.ExperienceYears{Years: years, Qualifier: qualifier}
}

// MonthsBetween 计算两个年月之间的月数（b - a）。
// 任一侧月份未知时按年中（6月）估算。
func MonthsBetween(a, b *types.YearMonth) int {
	if a == nil || b == nil {
		return 0
	}
	am, bm := a.Month, b.Month
	if am == 0 {
		am = 6
	}
	if bm == 0 {
		bm = 6
	}
	return (b.Year-a.Year)*12 + (bm - am)
}

// OverlapMonths 计算两个时间段的重叠月数，不重叠时返回0。
// end 为 nil 表示"至今"。
func OverlapMonths(aStart, aEnd, bStart, bEnd *types.YearMonth) int {
	if aStart == nil || bStart == nil {
		return 0
	}

	now := timeNow()
	nowYM := &types.YearMonth{Year: now.Year(), Month: int(now.Month())}
	if aEnd == nil {
		aEnd = nowYM
	}
	if bEnd == nil {
		bEnd = nowYM
	}

	start := laterOf(aStart, bStart)
	end := earlierOf(aEnd, bEnd)

	months := MonthsBetween(start, end)
	if months < 0 {
		return 0
	}
	return months
}

func toOrdinal(ym *types.YearMonth) int {
	m := ym.Month
	if m == 0 {
		m = 6
	}
	return ym.Year*12 + m
}

func laterOf(a, b *types.YearMonth) *types.YearMonth {
	if toOrdinal(a) >= toOrdinal(b) {
		return a
	}
	return b
}

func earlierOf(a, b *types.YearMonth) *types.YearMonth {
	if toOrdinal(a) <= toOrdinal(b) {
		return a
	}
	return b
}
