package extractor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-agent-go/internal/types"
	"portfolio-agent-go/pkg/resilience"
)

// mockSectionModel 按章节类型返回预置响应的模拟LLM。
// 从system prompt中的 "SECTION: xxx" 行识别目标章节。
type mockSectionModel struct {
	mu        sync.Mutex
	responses map[types.SectionKind]string
	failKinds map[types.SectionKind]error
	// failOnce 只让第一次调用失败，用于验证重试路径
	failOnce  map[types.SectionKind]bool
	callCount map[types.SectionKind]int
}

func newMockSectionModel() *mockSectionModel {
	return &mockSectionModel{
		responses: map[types.SectionKind]string{},
		failKinds: map[types.SectionKind]error{},
		failOnce:  map[types.SectionKind]bool{},
		callCount: map[types.SectionKind]int{},
	}
}

func (m *mockSectionModel) Generate(ctx context.Context, messages []*einoschema.Message, options ...model.Option) (*einoschema.Message, error) {
	kind := kindFromPrompt(messages)

	m.mu.Lock()
	m.callCount[kind]++
	count := m.callCount[kind]
	failErr := m.failKinds[kind]
	failOnce := m.failOnce[kind]
	response, hasResponse := m.responses[kind]
	m.mu.Unlock()

	if failErr != nil {
		return nil, failErr
	}
	if failOnce && count == 1 {
		return nil, errors.New("模拟的一次性失败")
	}
	if !hasResponse {
		response = "{}"
	}
	return &einoschema.Message{Role: einoschema.Assistant, Content: response}, nil
}

func (m *mockSectionModel) Stream(ctx context.Context, messages []*einoschema.Message, options ...model.Option) (*einoschema.StreamReader[*einoschema.Message], error) {
	return nil, errors.New("mock不支持流式")
}

func (m *mockSectionModel) WithTools(tools []*einoschema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func (m *mockSectionModel) calls(kind types.SectionKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount[kind]
}

func kindFromPrompt(messages []*einoschema.Message) types.SectionKind {
	for _, msg := range messages {
		for _, line := range strings.Split(msg.Content, "\n") {
			if after, found := strings.CutPrefix(line, "SECTION: "); found {
				return types.SectionKind(strings.TrimSpace(after))
			}
		}
	}
	return ""
}

var _ model.ToolCallingChatModel = (*mockSectionModel)(nil)

func TestOrchestrator_AllSectionsExtracted(t *testing.T) {
	mock := newMockSectionModel()
	mock.responses[types.SectionHero] = `{"name": "Jane Doe", "headline": "Senior Engineer"}`
	mock.responses[types.SectionSkills] = `{"groups": [{"category": "Languages", "skills": ["Go", "Python"]}]}`

	orch := NewOrchestrator(mock, NewPromptCatalog(), nil, zerolog.Nop())
	doc, failed := orch.ExtractSections(context.Background(), "Jane Doe resume text")

	assert.Empty(t, failed)
	assert.Equal(t, 2, doc.SectionCount())
	require.NotNil(t, doc.Hero)
	assert.Equal(t, "Jane Doe", doc.Hero.Name)
	require.NotNil(t, doc.Skills)

	// 全部17个章节都被调用了一次
	for _, kind := range types.AllSectionKinds {
		assert.Equal(t, 1, mock.calls(kind), "kind=%s", kind)
	}
}

// 单个章节持续失败不影响其余章节的提取
func TestOrchestrator_SectionFailureIsIsolated(t *testing.T) {
	mock := newMockSectionModel()
	mock.responses[types.SectionHero] = `{"name": "Jane Doe"}`
	mock.failKinds[types.SectionExperience] = errors.New("后端持续超时")

	orch := NewOrchestrator(mock, NewPromptCatalog(), nil, zerolog.Nop())
	doc, failed := orch.ExtractSections(context.Background(), "resume text")

	require.NotNil(t, doc.Hero)
	assert.False(t, doc.HasSection(types.SectionExperience))
	assert.Equal(t, []types.SectionKind{types.SectionExperience}, failed)
	// 并行1次 + 顺序重试1次
	assert.Equal(t, 2, mock.calls(types.SectionExperience))
}

// 并行阶段失败的章节在顺序重试中成功恢复
func TestOrchestrator_RetryRecoversSection(t *testing.T) {
	mock := newMockSectionModel()
	mock.responses[types.SectionHero] = `{"name": "Jane Doe"}`
	mock.failOnce[types.SectionHero] = true

	orch := NewOrchestrator(mock, NewPromptCatalog(), nil, zerolog.Nop())
	doc, failed := orch.ExtractSections(context.Background(), "resume text")

	assert.Empty(t, failed)
	require.NotNil(t, doc.Hero)
	assert.Equal(t, 2, mock.calls(types.SectionHero))
}

// 解析不出JSON的响应按失败处理并进入重试
func TestOrchestrator_UnparseableResponseRetried(t *testing.T) {
	mock := newMockSectionModel()
	mock.responses[types.SectionSummary] = "I could not find anything relevant."

	orch := NewOrchestrator(mock, NewPromptCatalog(), nil, zerolog.Nop())
	doc, failed := orch.ExtractSections(context.Background(), "resume text")

	assert.False(t, doc.HasSection(types.SectionSummary))
	assert.Contains(t, failed, types.SectionSummary)
	assert.Equal(t, 2, mock.calls(types.SectionSummary))
}

// 熔断器打开时跳过重试，不白白消耗延迟
func TestOrchestrator_RetrySkippedWhileBreakerOpen(t *testing.T) {
	mock := newMockSectionModel()
	mock.failKinds[types.SectionExperience] = errors.New("超时")
	mock.failKinds[types.SectionEducation] = errors.New("超时")

	breaker := resilience.NewCircuitBreaker("test", resilience.BreakerConfig{FailureThreshold: 1}, nil)
	// 人为触发熔断
	_ = breaker.Execute(func() error { return errors.New("boom") })
	require.Equal(t, resilience.StateOpen, breaker.State())

	orch := NewOrchestrator(mock, NewPromptCatalog(), breaker, zerolog.Nop())
	_, failed := orch.ExtractSections(context.Background(), "resume text")

	assert.Len(t, failed, 2)
	// 只有并行阶段的1次调用，重试被熔断状态拦下
	assert.Equal(t, 1, mock.calls(types.SectionExperience))
	assert.Equal(t, 1, mock.calls(types.SectionEducation))
}

func TestOrchestrator_EmptySourceShortCircuits(t *testing.T) {
	mock := newMockSectionModel()
	orch := NewOrchestrator(mock, NewPromptCatalog(), nil, zerolog.Nop())

	doc, failed := orch.ExtractSections(context.Background(), "   \n\t ")

	assert.Equal(t, 0, doc.SectionCount())
	assert.Empty(t, failed)
	for _, kind := range types.AllSectionKinds {
		assert.Zero(t, mock.calls(kind))
	}
}

func TestEngine_ExtractDocument(t *testing.T) {
	mock := newMockSectionModel()
	mock.responses[types.SectionHero] = `{"name": "Jane Doe", "headline": "Senior Engineer"}`
	mock.responses[types.SectionSummary] = `{"text": "Senior Engineer who led the billing migration."}`

	engine := NewEngine(mock, nil, DefaultPostProcessorConfig(), zerolog.Nop())
	result := engine.ExtractDocument(context.Background(), "Jane Doe\nSenior Engineer who led the billing migration.")

	require.NotNil(t, result.Document)
	require.NotNil(t, result.Diagnostics)
	assert.Equal(t, 2, result.Document.SectionCount())
	assert.Greater(t, result.Diagnostics.Confidence, 0.0)
}

func TestEngine_EmptySource(t *testing.T) {
	engine := NewEngine(newMockSectionModel(), nil, DefaultPostProcessorConfig(), zerolog.Nop())
	result := engine.ExtractDocument(context.Background(), "")

	require.NotNil(t, result.Document)
	assert.Equal(t, 0, result.Document.SectionCount())
	assert.Equal(t, 0.0, result.Diagnostics.Confidence)
	require.Len(t, result.Diagnostics.Issues, 1)
	assert.Equal(t, types.IssueEmptySource, result.Diagnostics.Issues[0].Kind)
}

// 某章节的LLM调用始终失败时，文档仍包含其余章节的有效数据
func TestEngine_GracefulSectionFailure(t *testing.T) {
	mock := newMockSectionModel()
	mock.responses[types.SectionHero] = `{"name": "Jane Doe"}`
	mock.responses[types.SectionSkills] = `{"groups": [{"skills": ["Go"]}]}`
	mock.failKinds[types.SectionProjects] = errors.New("永久性失败")

	engine := NewEngine(mock, nil, DefaultPostProcessorConfig(), zerolog.Nop())
	result := engine.ExtractDocument(context.Background(), "Jane Doe knows Go")

	assert.True(t, result.Document.HasSection(types.SectionHero))
	assert.True(t, result.Document.HasSection(types.SectionSkills))
	assert.False(t, result.Document.HasSection(types.SectionProjects))
}
