package types

import "time"

// IssueKind 校验问题类型
type IssueKind string

const (
	// IssueDateOverlap 工作经历时间段重叠
	IssueDateOverlap IssueKind = "date_overlap"
	// IssueInvalidDateRange 结束时间早于开始时间
	IssueInvalidDateRange IssueKind = "invalid_date_range"
	// IssueMisclassifiedCertification 被归入教育经历的认证条目
	IssueMisclassifiedCertification IssueKind = "misclassified_certification"
	// IssueSuspiciousTechnology 可疑的技术名称
	IssueSuspiciousTechnology IssueKind = "suspicious_technology"
	// IssueHallucination 原文中不存在的生成内容
	IssueHallucination IssueKind = "hallucination"
	// IssueSingleDayDegree 开始与结束同日的学位条目
	IssueSingleDayDegree IssueKind = "single_day_degree"
	// IssueDuplicateMerged 近似重复的成就被合并
	IssueDuplicateMerged IssueKind = "duplicate_merged"
	// IssueEmptySource 输入文本为空
	IssueEmptySource IssueKind = "empty_source"
)

// IssueSeverity 问题严重程度
type IssueSeverity string

const (
	// SeverityWarning 警告级，仅提示
	SeverityWarning IssueSeverity = "warning"
	// SeverityError 错误级，仍不阻断文档返回
	SeverityError IssueSeverity = "error"
)

// ValidationIssue 单条校验问题。所有问题均为建议性质，
// 永远不会导致提取流程失败。
type ValidationIssue struct {
	Kind          IssueKind     `json:"kind"`
	Severity      IssueSeverity `json:"severity"`
	AffectedItems []string      `json:"affected_items,omitempty"`
	Message       string        `json:"message"`
	Suggestion    string        `json:"suggestion,omitempty"`
}

// Diagnostics 提取诊断报告，与文档一起返回但不嵌入文档内部
type Diagnostics struct {
	Confidence float64           `json:"confidence"`
	Issues     []ValidationIssue `json:"issues"`
}

// ExtractionAttempt 单章节单次提取的临时记录，仅在编排期间存在
type ExtractionAttempt struct {
	Kind          SectionKind
	Prompt        string
	RawResponse   string
	FailureReason string
	Timestamp     time.Time
}

// ExtractionResult 提取入口的完整返回值
type ExtractionResult struct {
	Document    *Document    `json:"document"`
	Diagnostics *Diagnostics `json:"diagnostics"`
}
