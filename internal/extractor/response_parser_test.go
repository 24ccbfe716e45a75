package extractor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse_DirectJSON(t *testing.T) {
	raw := ParseResponse(`{"a": 1}`)
	require.NotNil(t, raw)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, float64(1), parsed["a"])
}

func TestParseResponse_MarkdownFence(t *testing.T) {
	// LLM常见输出：JSON包在markdown代码块和客套话中间
	response := "Here is the data:\n```json\n{\"a\":1}\n```\nThanks"
	raw := ParseResponse(response)
	require.NotNil(t, raw)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, float64(1), parsed["a"])
}

func TestParseResponse_BraceInsideString(t *testing.T) {
	// 字符串值里的花括号不能干扰深度计数
	response := `The result: {"a": "text with } brace"} done`
	raw := ParseResponse(response)
	require.NotNil(t, raw)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, "text with } brace", parsed["a"])
}

func TestParseResponse_EscapedQuoteInsideString(t *testing.T) {
	response := `{"a": "he said \"hi\" and {left}"}`
	raw := ParseResponse(response)
	require.NotNil(t, raw)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, `he said "hi" and {left}`, parsed["a"])
}

func TestParseResponse_NotJSON(t *testing.T) {
	// 无JSON时返回nil表示"无数据"，不是错误
	assert.Nil(t, ParseResponse("not json"))
	assert.Nil(t, ParseResponse(""))
	assert.Nil(t, ParseResponse("   \n\t  "))
}

func TestParseResponse_TruncatedJSON(t *testing.T) {
	// 截断的JSON找不到配平结构，应返回nil
	assert.Nil(t, ParseResponse(`{"a": 1, "b": [1, 2`))
}

func TestParseResponse_ArrayPayload(t *testing.T) {
	raw := ParseResponse("prefix [1, 2, 3] suffix")
	require.NotNil(t, raw)

	var parsed []int
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, []int{1, 2, 3}, parsed)
}

func TestParseResponse_ScalarRejected(t *testing.T) {
	// 裸标量不是合法的章节载荷
	assert.Nil(t, ParseResponse("42"))
	assert.Nil(t, ParseResponse(`"just a string"`))
}

func TestParseResponse_ProseWrappedObject(t *testing.T) {
	response := "Sure! Based on the resume, the extracted section is:\n\n" +
		`{"items": [{"company": "Acme", "title": "Engineer"}]}` +
		"\n\nLet me know if you need anything else."
	raw := ParseResponse(response)
	require.NotNil(t, raw)

	var parsed struct {
		Items []struct {
			Company string `json:"company"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(raw, &parsed))
	require.Len(t, parsed.Items, 1)
	assert.Equal(t, "Acme", parsed.Items[0].Company)
}
