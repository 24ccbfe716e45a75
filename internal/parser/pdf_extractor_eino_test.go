package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEinoPDFTextExtractor(t *testing.T) {
	extractor, err := NewEinoPDFTextExtractor(context.Background(), WithEinoLogger(zerolog.Nop()))
	require.NoError(t, err, "创建Eino PDF提取器不应报错")
	require.NotNil(t, extractor)
	require.NotNil(t, extractor.parser)
}

func TestEinoExtractFromNonExistentFile(t *testing.T) {
	extractor, err := NewEinoPDFTextExtractor(context.Background())
	require.NoError(t, err)

	_, _, err = extractor.ExtractFromFile(context.Background(), "/nonexistent/path/resume.pdf")
	require.Error(t, err, "不存在的文件应该返回错误")
	assert.Contains(t, err.Error(), "failed to open")
}

func TestEinoExtractFromInvalidPDF(t *testing.T) {
	extractor, err := NewEinoPDFTextExtractor(context.Background())
	require.NoError(t, err)

	// 写入一个不是PDF的文件
	tmpDir := t.TempDir()
	badFile := filepath.Join(tmpDir, "not_a_pdf.pdf")
	require.NoError(t, os.WriteFile(badFile, []byte("这不是一个PDF文件"), 0644))

	_, _, err = extractor.ExtractFromFile(context.Background(), badFile)
	assert.Error(t, err, "非PDF内容应该解析失败")
}

func TestCoerceMeta(t *testing.T) {
	// nil 返回空map
	meta := coerceMeta(nil)
	require.NotNil(t, meta)
	assert.Empty(t, meta)

	// map 原样返回
	in := map[string]interface{}{"k": "v"}
	assert.Equal(t, in, coerceMeta(in))

	// 其他类型包装进original_options
	wrapped := coerceMeta("something")
	assert.Equal(t, "something", wrapped["original_options"])
}
