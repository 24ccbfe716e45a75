package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-agent-go/internal/types"
)

func TestParseLocation_KnownCityExpands(t *testing.T) {
	loc := ParseLocation("Seattle")
	require.NotNil(t, loc)
	assert.Equal(t, "Seattle", loc.City)
	assert.Equal(t, "Washington", loc.State)
	assert.Equal(t, "United States", loc.Country)
}

func TestParseLocation_Forms(t *testing.T) {
	tests := []struct {
		input string
		want  *types.Location
	}{
		{"Seattle, WA", &types.Location{City: "Seattle", State: "Washington", Country: "United States"}},
		{"Seattle, WA 98101", &types.Location{City: "Seattle", State: "Washington", Country: "United States"}},
		{"Austin, Texas", &types.Location{City: "Austin", State: "Texas", Country: "United States"}},
		{"Berlin, Germany", &types.Location{City: "Berlin", Country: "Germany"}},
		{"London, UK", &types.Location{City: "London", Country: "United Kingdom"}},
		{"Toronto, Ontario, Canada", &types.Location{City: "Toronto", State: "Ontario", Country: "Canada"}},
		{"WA", &types.Location{State: "Washington", Country: "United States"}},
		{"Germany", &types.Location{Country: "Germany"}},
		{"Smallville", &types.Location{City: "Smallville"}}, // 未知城市不猜州和国家
		{"", nil},
		{"   ", nil},
	}

	for _, tt := range tests {
		got := ParseLocation(tt.input)
		assert.Equal(t, tt.want, got, "input=%q", tt.input)
	}
}

// 自一致性不变量：country永远不等于city或state
func TestParseLocation_SelfConsistency(t *testing.T) {
	inputs := []string{
		"Seattle", "Seattle, WA", "Berlin, Germany", "Singapore",
		"Paris, France", "New York, NY", "Tokyo, Japan", "Smallville",
	}
	for _, input := range inputs {
		loc := ParseLocation(input)
		if loc == nil {
			continue
		}
		if loc.Country != "" {
			assert.NotEqual(t, loc.City, loc.Country, "input=%q", input)
			assert.NotEqual(t, loc.State, loc.Country, "input=%q", input)
		}
		if loc.State != "" {
			assert.NotEqual(t, loc.City, loc.State, "input=%q", input)
		}
	}
}

func TestNormalizeLocation_ExpandsAbbrevAndFillsCountry(t *testing.T) {
	loc := NormalizeLocation(&types.Location{City: "Seattle", State: "WA"})
	require.NotNil(t, loc)
	assert.Equal(t, "Washington", loc.State)
	assert.Equal(t, "United States", loc.Country)
}

func TestNormalizeLocation_CountryAlias(t *testing.T) {
	loc := NormalizeLocation(&types.Location{City: "Austin", State: "Texas", Country: "USA"})
	require.NotNil(t, loc)
	assert.Equal(t, "United States", loc.Country)
}

func TestNormalizeLocation_CountryEqualsCityCleared(t *testing.T) {
	// LLM把城市名填进国家字段时，国家位宁缺毋错
	loc := NormalizeLocation(&types.Location{City: "Atlantis", Country: "Atlantis"})
	require.NotNil(t, loc)
	assert.Equal(t, "Atlantis", loc.City)
	assert.Empty(t, loc.Country)
}

func TestNormalizeLocation_Nil(t *testing.T) {
	assert.Nil(t, NormalizeLocation(nil))
}
