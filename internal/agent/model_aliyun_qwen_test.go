package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewAliyunQwenChatModel_RequiresAPIKey 验证缺少API密钥时返回错误
func TestNewAliyunQwenChatModel_RequiresAPIKey(t *testing.T) {
	_, err := NewAliyunQwenChatModel("", "qwen-plus", "", zerolog.Nop())
	assert.Error(t, err)

	_, err = NewAliyunQwenChatModel("   ", "qwen-plus", "", zerolog.Nop())
	assert.Error(t, err)
}

// TestAliyunQwenChatModel_Generate 通过本地HTTP服务验证请求和响应的转换
func TestAliyunQwenChatModel_Generate(t *testing.T) {
	// 模拟OpenAI兼容API
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test_key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen-plus", req["model"])

		content := `{"name":"张三","headline":"后端工程师"}`
		resp := map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "qwen-plus",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"message":       map[string]interface{}{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]int{"prompt_tokens": 100, "completion_tokens": 20, "total_tokens": 120},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	m, err := NewAliyunQwenChatModel("test_key", "qwen-plus", server.URL, zerolog.Nop())
	require.NoError(t, err)

	msgs := []*schema.Message{
		{Role: schema.System, Content: "提取章节"},
		{Role: schema.User, Content: "张三 后端工程师"},
	}
	result, err := m.Generate(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, schema.Assistant, result.Role)
	assert.Contains(t, result.Content, "张三")
}

// TestAliyunQwenChatModel_GenerateAPIError 验证非200响应返回错误
func TestAliyunQwenChatModel_GenerateAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit exceeded"}}`))
	}))
	defer server.Close()

	m, err := NewAliyunQwenChatModel("test_key", "", server.URL, zerolog.Nop())
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{{Role: schema.User, Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

// TestAliyunQwenChatModel_GenerateEmptyChoices 验证空choices返回错误
func TestAliyunQwenChatModel_GenerateEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer server.Close()

	m, err := NewAliyunQwenChatModel("test_key", "", server.URL, zerolog.Nop())
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{{Role: schema.User, Content: "hi"}})
	assert.Error(t, err)
}

// TestMockChatClientSequential 验证顺序mock按配置返回响应
func TestMockChatClientSequential(t *testing.T) {
	mock := NewMockChatClientSequential([]MockResponse{
		{Content: "first"},
		{Error: assert.AnError},
	})

	resp, err := mock.Generate(context.Background(), []*schema.Message{{Role: schema.User, Content: "a"}})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content)

	_, err = mock.Generate(context.Background(), []*schema.Message{{Role: schema.User, Content: "b"}})
	assert.Error(t, err)

	// 响应耗尽后也应报错
	_, err = mock.Generate(context.Background(), []*schema.Message{{Role: schema.User, Content: "c"}})
	assert.Error(t, err)

	assert.Len(t, mock.GetReceivedMessages(), 3)
}
