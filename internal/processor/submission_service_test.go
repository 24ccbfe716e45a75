package processor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"portfolio-agent-go/internal/storage/models"
)

func TestSubmissionProcessError(t *testing.T) {
	err := NewParseError("test-uuid", "文件损坏")

	// 支持 errors.Is 比较基础错误类型
	assert.True(t, errors.Is(err, ErrParseTextFailed))
	assert.False(t, errors.Is(err, ErrFileDownloadFailed))

	// 错误信息包含操作、UUID和详情
	assert.Contains(t, err.Error(), "parse")
	assert.Contains(t, err.Error(), "test-uuid")
	assert.Contains(t, err.Error(), "文件损坏")
}

func TestSubmissionProcessErrorWithoutDetail(t *testing.T) {
	err := &SubmissionProcessError{
		SubmissionUUID: "uuid-1",
		Op:             "download",
		BaseErr:        ErrFileDownloadFailed,
	}
	assert.Contains(t, err.Error(), "uuid-1")
	assert.NotContains(t, err.Error(), ": ")
}

func TestExtractionAllowedStatuses(t *testing.T) {
	// 允许进入抽取流程的状态
	assert.True(t, extractionAllowedStatuses[models.StatusUploaded])
	assert.True(t, extractionAllowedStatuses[models.StatusPendingExtraction])
	assert.True(t, extractionAllowedStatuses[models.StatusExtractionFailed], "失败后重投的消息应该被允许")

	// 已在处理中或已完成的状态应被拒绝，保证幂等
	assert.False(t, extractionAllowedStatuses[models.StatusExtracting])
	assert.False(t, extractionAllowedStatuses[models.StatusExtracted])
	assert.False(t, extractionAllowedStatuses[models.StatusPortfolioReady])
}
