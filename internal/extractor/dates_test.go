package extractor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-agent-go/internal/types"
)

// fixedNow 固定"当前时间"，避免依赖真实时钟的脆弱断言
func fixedNow(t *testing.T, year int, month time.Month) {
	t.Helper()
	original := timeNow
	timeNow = func() time.Time {
		return time.Date(year, month, 15, 0, 0, 0, 0, time.UTC)
	}
	t.Cleanup(func() { timeNow = original })
}

func TestParseYearMonth_Formats(t *testing.T) {
	fixedNow(t, 2025, time.June)

	tests := []struct {
		input string
		want  *types.YearMonth
	}{
		{"2020-03", &types.YearMonth{Year: 2020, Month: 3}},
		{"2020-3", &types.YearMonth{Year: 2020, Month: 3}},
		{"2015-03-01", &types.YearMonth{Year: 2015, Month: 3}},
		{"03/2020", &types.YearMonth{Year: 2020, Month: 3}},
		{"March 2020", &types.YearMonth{Year: 2020, Month: 3}},
		{"mar 2020", &types.YearMonth{Year: 2020, Month: 3}},
		{"Sept. 2019", &types.YearMonth{Year: 2019, Month: 9}},
		{"2020", &types.YearMonth{Year: 2020, Month: 0}},
		{"", nil},
		{"garbage", nil},
		{"13/2020", nil},
		{"2020-13", nil},
		{"1850", nil}, // 不合理的年份
	}

	for _, tt := range tests {
		got := ParseYearMonth(tt.input)
		assert.Equal(t, tt.want, got, "input=%q", tt.input)
	}
}

func TestParseYearMonth_PresentSentinels(t *testing.T) {
	fixedNow(t, 2025, time.June)

	for _, word := range []string{"present", "Present", "CURRENT", "now", "Ongoing", "present."} {
		got := ParseYearMonth(word)
		require.NotNil(t, got, "word=%q", word)
		assert.Equal(t, 2025, got.Year)
		assert.Equal(t, 6, got.Month)
	}
}

func TestParseYearSpan(t *testing.T) {
	tests := []struct {
		input string
		want  *types.ExperienceYears
	}{
		{"10+ years", &types.ExperienceYears{Years: 10, Qualifier: "more_than"}},
		{"more than 8 years", &types.ExperienceYears{Years: 8, Qualifier: "more_than"}},
		{"over 5 years", &types.ExperienceYears{Years: 5, Qualifier: "more_than"}},
		{"approximately 3 years", &types.ExperienceYears{Years: 3, Qualifier: "approximately"}},
		{"about 7 years", &types.ExperienceYears{Years: 7, Qualifier: "approximately"}},
		{"12 years of experience", &types.ExperienceYears{Years: 12, Qualifier: "exact"}},
		{"1 year", &types.ExperienceYears{Years: 1, Qualifier: "exact"}},
		{"no numbers here", nil},
		{"", nil},
	}

	for _, tt := range tests {
		got := ParseYearSpan(tt.input)
		assert.Equal(t, tt.want, got, "input=%q", tt.input)
	}
}

func TestOverlapMonths_OverlappingRanges(t *testing.T) {
	fixedNow(t, 2025, time.June)

	// A=[2020-01, 2020-12]，B=[2020-06, 至今]，重叠至少6个月
	aStart := &types.YearMonth{Year: 2020, Month: 1}
	aEnd := &types.YearMonth{Year: 2020, Month: 12}
	bStart := &types.YearMonth{Year: 2020, Month: 6}

	overlap := OverlapMonths(aStart, aEnd, bStart, nil)
	assert.GreaterOrEqual(t, overlap, 6)
}

func TestOverlapMonths_AdjacentRanges(t *testing.T) {
	// A=[2020-01, 2020-12]，B=[2021-01, 2021-12]，相邻不重叠
	aStart := &types.YearMonth{Year: 2020, Month: 1}
	aEnd := &types.YearMonth{Year: 2020, Month: 12}
	bStart := &types.YearMonth{Year: 2021, Month: 1}
	bEnd := &types.YearMonth{Year: 2021, Month: 12}

	assert.Equal(t, 0, OverlapMonths(aStart, aEnd, bStart, bEnd))
}

func TestOverlapMonths_NilStart(t *testing.T) {
	// 起始时间未知时无法判定重叠
	assert.Equal(t, 0, OverlapMonths(nil, nil, &types.YearMonth{Year: 2020}, nil))
}

func TestMonthsBetween_UnknownMonthDefaultsToMidYear(t *testing.T) {
	// 只有年份时按年中估算
	a := &types.YearMonth{Year: 2020}
	b := &types.YearMonth{Year: 2022}
	assert.Equal(t, 24, MonthsBetween(a, b))
}
