package constants

import "time"

const (
	// DocumentCacheDuration 结构化文档在Redis中的缓存时长
	DocumentCacheDuration = 24 * time.Hour

	// ParsedTextCacheDuration 解析文本在Redis中的缓存时长
	ParsedTextCacheDuration = 6 * time.Hour
)
