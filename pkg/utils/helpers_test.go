package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateMD5(t *testing.T) {
	// 已知向量，空输入也要有稳定摘要
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", CalculateMD5(nil))
	assert.Equal(t, "9e107d9d372bb6826bd81d3542a419d6",
		CalculateMD5([]byte("The quick brown fox jumps over the lazy dog")))
}

func TestTimePtr(t *testing.T) {
	assert.Nil(t, TimePtr(time.Time{}), "零值时间应映射为可空列的NULL")

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	got := TimePtr(now)
	require.NotNil(t, got)
	assert.Equal(t, now, *got)
}
