package storage

import "time"

// SubmissionUploadedMessage 简历上传完成消息，由上传接口发布，提取消费者消费
type SubmissionUploadedMessage struct {
	SubmissionUUID      string    `json:"submission_uuid"`          // 提交UUID，主键
	SubmissionTimestamp time.Time `json:"submission_timestamp"`     // 提交时间戳
	SourceChannel       string    `json:"source_channel,omitempty"` // 来源渠道
	OriginalFilename    string    `json:"original_filename"`        // 原始文件名
	OriginalFilePathOSS string    `json:"original_file_path_oss"`   // MinIO中的对象路径
	RawFileMD5          string    `json:"raw_file_md5,omitempty"`   // 原始文件的MD5，用于失败时回滚去重集合
}

// DocumentExtractedMessage 结构化文档生成完成消息，由outbox中继发布，作品集消费者消费
type DocumentExtractedMessage struct {
	SubmissionUUID    string  `json:"submission_uuid"`                // 提交UUID
	ParsedTextPathOSS string  `json:"parsed_text_path_oss,omitempty"` // 解析文本在MinIO中的路径
	Confidence        float64 `json:"confidence"`                     // 提取置信度
	SectionCount      int     `json:"section_count"`                  // 非空章节数
	ProcessingStatus  string  `json:"processing_status,omitempty"`    // 处理状态
	ProcessingTime    float64 `json:"processing_time,omitempty"`      // 处理耗时（秒）
	Error             string  `json:"error,omitempty"`                // 错误信息
}
