package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"portfolio-agent-go/internal/types"
)

// ExtractedDocument 存储提取出的结构化简历文档
type ExtractedDocument struct {
	SubmissionUUID string         `gorm:"type:char(36);primaryKey"`
	DocumentJSON   datatypes.JSON `gorm:"type:json;not null"`
	Confidence     float64        `gorm:"type:float"`
	SectionCount   int            `gorm:"type:int"`
	EngineVersion  string         `gorm:"type:varchar(50)"`
	CreatedAt      time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt      time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	PortfolioSubmission *PortfolioSubmission `gorm:"foreignKey:SubmissionUUID;references:SubmissionUUID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (ExtractedDocument) TableName() string {
	return "extracted_documents"
}

// ToDocument 将数据库模型转换为领域模型
func (e *ExtractedDocument) ToDocument() (*types.Document, error) {
	var doc types.Document
	if err := json.Unmarshal(e.DocumentJSON, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FromDocument 从领域模型填充数据库模型
func (e *ExtractedDocument) FromDocument(submissionUUID string, doc *types.Document, confidence float64) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	e.SubmissionUUID = submissionUUID
	e.DocumentJSON = datatypes.JSON(data)
	e.Confidence = confidence
	e.SectionCount = doc.SectionCount()
	return nil
}

// IssueRecordsFromDiagnostics 将诊断结果转换为问题记录列表
func IssueRecordsFromDiagnostics(submissionUUID string, diag *types.Diagnostics) []ValidationIssueRecord {
	if diag == nil || len(diag.Issues) == 0 {
		return nil
	}
	records := make([]ValidationIssueRecord, 0, len(diag.Issues))
	for _, issue := range diag.Issues {
		var affected datatypes.JSON
		if len(issue.AffectedItems) > 0 {
			if data, err := json.Marshal(issue.AffectedItems); err == nil {
				affected = datatypes.JSON(data)
			}
		}
		records = append(records, ValidationIssueRecord{
			SubmissionUUID:    submissionUUID,
			Kind:              string(issue.Kind),
			Severity:          string(issue.Severity),
			AffectedItemsJSON: affected,
			Message:           issue.Message,
			Suggestion:        issue.Suggestion,
		})
	}
	return records
}

// DiagnosticsFromIssueRecords 将问题记录还原为诊断结果
func DiagnosticsFromIssueRecords(confidence float64, records []ValidationIssueRecord) *types.Diagnostics {
	diag := &types.Diagnostics{Confidence: confidence}
	for _, rec := range records {
		var affected []string
		if len(rec.AffectedItemsJSON) > 0 {
			_ = json.Unmarshal(rec.AffectedItemsJSON, &affected)
		}
		diag.Issues = append(diag.Issues, types.ValidationIssue{
			Kind:          types.IssueKind(rec.Kind),
			Severity:      types.IssueSeverity(rec.Severity),
			AffectedItems: affected,
			Message:       rec.Message,
			Suggestion:    rec.Suggestion,
		})
	}
	return diag
}
