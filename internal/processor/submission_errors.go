package processor

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrFileDownloadFailed = errors.New("下载原始文件失败")
	ErrParseTextFailed    = errors.New("提取文本失败")
	ErrStoreTextFailed    = errors.New("上传解析文本失败")
	ErrExtractionFailed   = errors.New("结构化抽取失败")
	ErrUpdateStatusFailed = errors.New("更新投递状态失败")
	ErrDatabaseFailed     = errors.New("数据库操作失败")
	ErrStorageNotInit     = errors.New("storage is not initialized")
	ErrExtractorNotInit   = errors.New("extractor is not initialized")
	ErrEngineNotInit      = errors.New("extraction engine is not initialized")
)

// SubmissionProcessError 包含详细错误信息的自定义错误
type SubmissionProcessError struct {
	SubmissionUUID string
	Op             string
	BaseErr        error
	Detail         string
}

func (e *SubmissionProcessError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, UUID:%s): %s", e.BaseErr, e.Op, e.SubmissionUUID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, UUID:%s)", e.BaseErr, e.Op, e.SubmissionUUID)
}

func (e *SubmissionProcessError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *SubmissionProcessError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewDownloadError(uuid, detail string) error {
	return &SubmissionProcessError{
		SubmissionUUID: uuid,
		Op:             "download",
		BaseErr:        ErrFileDownloadFailed,
		Detail:         detail,
	}
}

func NewParseError(uuid, detail string) error {
	return &SubmissionProcessError{
		SubmissionUUID: uuid,
		Op:             "parse",
		BaseErr:        ErrParseTextFailed,
		Detail:         detail,
	}
}

func NewStoreError(uuid, detail string) error {
	return &SubmissionProcessError{
		SubmissionUUID: uuid,
		Op:             "store",
		BaseErr:        ErrStoreTextFailed,
		Detail:         detail,
	}
}

func NewExtractionError(uuid, detail string) error {
	return &SubmissionProcessError{
		SubmissionUUID: uuid,
		Op:             "extract",
		BaseErr:        ErrExtractionFailed,
		Detail:         detail,
	}
}

func NewUpdateError(uuid, detail string) error {
	return &SubmissionProcessError{
		SubmissionUUID: uuid,
		Op:             "update",
		BaseErr:        ErrUpdateStatusFailed,
		Detail:         detail,
	}
}

func NewDatabaseError(uuid, detail string) error {
	return &SubmissionProcessError{
		SubmissionUUID: uuid,
		Op:             "database",
		BaseErr:        ErrDatabaseFailed,
		Detail:         detail,
	}
}
