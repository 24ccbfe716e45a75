package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// 提交处理状态
const (
	StatusUploaded          = "UPLOADED"           // 原始文件已入库
	StatusPendingExtraction = "PENDING_EXTRACTION" // 文本已解析，等待章节提取
	StatusExtracting        = "EXTRACTING"         // 章节提取进行中
	StatusExtracted         = "EXTRACTED"          // 结构化文档已生成
	StatusExtractionFailed  = "EXTRACTION_FAILED"  // 提取失败
	StatusPortfolioReady    = "PORTFOLIO_READY"    // 作品集站点已生成
)

// PortfolioSubmission 简历提交/快照表
type PortfolioSubmission struct {
	SubmissionUUID      string    `gorm:"type:char(36);primaryKey"`
	SubmissionTimestamp time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_ps_submission_timestamp"`
	SourceChannel       string    `gorm:"type:varchar(100)"`
	OriginalFilename    string    `gorm:"type:varchar(255)"`
	OriginalFilePathOSS string    `gorm:"type:varchar(1024)"`
	ParsedTextPathOSS   string    `gorm:"type:varchar(1024)"`
	RawFileMD5          string    `gorm:"type:char(32);index:idx_ps_raw_file_md5"`
	PortfolioPathOSS    string    `gorm:"type:varchar(1024)"`
	ProcessingStatus    string    `gorm:"type:varchar(50);default:'UPLOADED';index:idx_ps_processing_status"`
	ParserVersion       string    `gorm:"type:varchar(50)"`
	CreatedAt           time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt           time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (PortfolioSubmission) TableName() string {
	return "portfolio_submissions"
}

// ValidationIssueRecord 提取过程中产生的校验问题记录
type ValidationIssueRecord struct {
	IssueID           uint64         `gorm:"primaryKey;autoIncrement"`
	SubmissionUUID    string         `gorm:"type:char(36);not null;index:idx_vir_submission_uuid"`
	Kind              string         `gorm:"type:varchar(64);not null"`
	Severity          string         `gorm:"type:varchar(16);not null"`
	AffectedItemsJSON datatypes.JSON `gorm:"type:json"`
	Message           string         `gorm:"type:text"`
	Suggestion        string         `gorm:"type:text"`
	CreatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	PortfolioSubmission *PortfolioSubmission `gorm:"foreignKey:SubmissionUUID;references:SubmissionUUID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (ValidationIssueRecord) TableName() string {
	return "validation_issue_records"
}

// StringToJSON Helper function to convert string to datatypes.JSON
func StringToJSON(s string) datatypes.JSON {
	return datatypes.JSON(s)
}

// MapToJSON Helper function to convert map[string]interface{} to datatypes.JSON
func MapToJSON(m map[string]interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}

// StringMapToJSON Helper function to convert map[string]string to datatypes.JSON
func StringMapToJSON(m map[string]string) (datatypes.JSON, error) {
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
