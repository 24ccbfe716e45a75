package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// FileModulePrefix 文件模块
	FileModulePrefix = "file"
	// DocumentModulePrefix 结构化文档模块
	DocumentModulePrefix = "document"

	// EntityText 文本实体
	EntityText = "text"
	// EntityDedupSet 去重集合实体
	EntityDedupSet = "dedup_set"
	// EntityMD5ToUUID MD5到UUID的映射实体
	EntityMD5ToUUID = "md5_to_uuid"
	// EntityJSON 结构化JSON实体
	EntityJSON = "json"

	// KeyFileMD5Set 文件MD5集合，用于快速去重 (SET)
	// 格式: app:file:dedup_set
	KeyFileMD5Set = AppPrefix + ":" + FileModulePrefix + ":" + EntityDedupSet

	// KeyFileMD5ToSubmissionUUID MD5到SubmissionUUID的映射 (STRING)
	// 格式: app:file:md5_to_uuid:{md5}
	KeyFileMD5ToSubmissionUUID = AppPrefix + ":" + FileModulePrefix + ":" + EntityMD5ToUUID + ":%s"

	// KeyParsedText 解析文本缓存 (STRING)
	// 格式: app:file:text:{submissionUUID}
	KeyParsedText = AppPrefix + ":" + FileModulePrefix + ":" + EntityText + ":%s"

	// KeyExtractedDocument 结构化文档缓存 (STRING)
	// 格式: app:document:json:{submissionUUID}
	KeyExtractedDocument = AppPrefix + ":" + DocumentModulePrefix + ":" + EntityJSON + ":%s"
)
