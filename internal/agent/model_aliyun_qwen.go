package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"portfolio-agent-go/internal/tracing"
)

const (
	// OpenAI-compatible API endpoint for DashScope
	openAICompatibleQwenAPIURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultQwenModelName       = "qwen-plus"
)

// AliyunQwenChatModel 实现了 model.ToolCallingChatModel 接口，
// 用于与阿里云通义千问模型交互。章节提取只需要纯文本补全，
// 因此不做工具参数schema的转换，WithTools仅为满足接口。
type AliyunQwenChatModel struct {
	apiKey      string
	modelName   string
	apiURL      string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      zerolog.Logger
}

// QwenOption 配置选项
type QwenOption func(*AliyunQwenChatModel)

// WithTemperature 设置采样温度。提取任务建议低温以保证输出稳定。
func WithTemperature(t float64) QwenOption {
	return func(m *AliyunQwenChatModel) { m.temperature = t }
}

// WithMaxTokens 设置最大生成token数
func WithMaxTokens(n int) QwenOption {
	return func(m *AliyunQwenChatModel) { m.maxTokens = n }
}

// WithHTTPTimeout 设置HTTP客户端超时
func WithHTTPTimeout(d time.Duration) QwenOption {
	return func(m *AliyunQwenChatModel) { m.httpClient.Timeout = d }
}

// NewAliyunQwenChatModel 创建一个新的 AliyunQwenChatModel 实例。
func NewAliyunQwenChatModel(apiKey string, modelName string, apiURL string, logger zerolog.Logger, opts ...QwenOption) (*AliyunQwenChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}

	mn := modelName
	if strings.TrimSpace(mn) == "" {
		mn = defaultQwenModelName
	}

	url := apiURL
	if strings.TrimSpace(url) == "" {
		url = openAICompatibleQwenAPIURL
	}

	m := &AliyunQwenChatModel{
		apiKey:      apiKey,
		modelName:   mn,
		apiURL:      url,
		temperature: 0.1,
		httpClient:  &http.Client{Timeout: 90 * time.Second},
		logger:      logger.With().Str("component", "aliyun_qwen_model").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.logger.Info().
		Str("api_url", url).
		Str("model", mn).
		Msg("使用阿里云通义千问 LLM 客户端")

	return m, nil
}

// --- OpenAI Compatible Request/Response Structures ---

type openAIChatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []*schema.Message `json:"messages"` // Eino schema.Message is compatible enough for role/content
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type openAIChatChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAICompletionResponse struct {
	Id      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []openAIChatChoice `json:"choices"`
	Usage   openAIUsage        `json:"usage"`
}

// Generate 实现 model.ToolCallingChatModel 接口
func (aq *AliyunQwenChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	// 通用选项由外层guard处理，这里只做一次HTTP调用
	for _, opt := range options {
		_ = opt
	}

	reqPayload := openAIChatCompletionRequest{
		Model:       aq.modelName,
		Messages:    messages,
		Temperature: aq.temperature,
		MaxTokens:   aq.maxTokens,
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, aq.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+aq.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	aq.logger.Debug().
		Str("model", aq.modelName).
		Int("message_count", len(messages)).
		Msg("发送LLM请求")

	httpResp, err := aq.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		aq.logger.Warn().
			Str("status", httpResp.Status).
			Str("body", tracing.SafeLLMResponse(string(bodyBytes))).
			Msg("LLM API 返回非200状态")
		apiErr := fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, string(bodyBytes))
		tracing.RecordHTTPError(trace.SpanFromContext(ctx), apiErr, httpResp.StatusCode)
		return nil, apiErr
	}

	var openAIResp openAICompletionResponse
	if err := json.Unmarshal(bodyBytes, &openAIResp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, tracing.SafeLLMResponse(string(bodyBytes)))
	}

	if len(openAIResp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项: %s", tracing.SafeLLMResponse(string(bodyBytes)))
	}

	apiMessage := openAIResp.Choices[0].Message
	responseContent := ""
	if apiMessage.Content != nil {
		responseContent = *apiMessage.Content
	}

	aq.logger.Debug().
		Int("prompt_tokens", openAIResp.Usage.PromptTokens).
		Int("completion_tokens", openAIResp.Usage.CompletionTokens).
		Str("finish_reason", openAIResp.Choices[0].FinishReason).
		Msg("收到LLM响应")

	resultMessage := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: responseContent,
	}
	if resultMessage.Role == "" {
		resultMessage.Role = schema.Assistant
	}

	return resultMessage, nil
}

// Stream 实现 model.ToolCallingChatModel 接口。提取流程只用Generate，暂不支持流式。
func (aq *AliyunQwenChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("AliyunQwenChatModel 的 Stream 方法未实现")
}

// WithTools 实现 model.ToolCallingChatModel 接口。
// 章节提取不使用工具调用，直接返回自身。
func (aq *AliyunQwenChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if len(tools) > 0 {
		aq.logger.Warn().Int("tool_count", len(tools)).Msg("收到工具绑定请求，但提取模型不支持工具调用")
	}
	return aq, nil
}

var _ model.ToolCallingChatModel = (*AliyunQwenChatModel)(nil)
