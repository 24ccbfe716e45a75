package utils

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// TimePtr 返回时间的指针，零值时间返回nil以便写入可空数据库列
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// CalculateMD5 计算字节切片的MD5摘要，用于上传文件去重
func CalculateMD5(data []byte) string {
	hasher := md5.New()
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}
