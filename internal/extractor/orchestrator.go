package extractor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/types"
	"portfolio-agent-go/pkg/resilience"
)

// Orchestrator 驱动17个章节的并行提取。
// 每个章节一次LLM往返：构建提示词 -> 调用受保护的模型 -> 解析 -> 校验。
// 并行阶段失败的章节进入顺序重试，重试仍失败的章节直接缺席，
// 单个章节失败永远不会让整次提取失败。
type Orchestrator struct {
	llmModel model.ToolCallingChatModel
	catalog  *PromptCatalog
	breaker  *resilience.CircuitBreaker
	logger   zerolog.Logger
}

// sectionOutcome 扇入通道上的单章节结果
type sectionOutcome struct {
	kind    types.SectionKind
	section interface{}
	err     error
}

// NewOrchestrator 创建章节提取编排器。
// breaker 可为 nil，此时重试阶段不做熔断状态预检。
func NewOrchestrator(llmModel model.ToolCallingChatModel, catalog *PromptCatalog, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *Orchestrator {
	if catalog == nil {
		catalog = NewPromptCatalog()
	}
	return &Orchestrator{
		llmModel: llmModel,
		catalog:  catalog,
		breaker:  breaker,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
}

// ExtractSections 对全部17种章节执行 并行提取 + 顺序重试，
// 返回组装好的文档和最终仍失败的章节清单。
func (o *Orchestrator) ExtractSections(ctx context.Context, sourceText string) (*types.Document, []types.SectionKind) {
	doc := &types.Document{}

	if strings.TrimSpace(sourceText) == "" {
		o.logger.Warn().Msg("输入文本为空，跳过提取")
		return doc, nil
	}

	// 并行阶段：每个章节一个goroutine，结果经通道扇入。
	// 某个章节的失败或超时不会取消其他章节。
	outcomes := make(chan sectionOutcome, len(types.AllSectionKinds))
	var wg sync.WaitGroup
	startedAt := time.Now()

	for _, kind := range types.AllSectionKinds {
		wg.Add(1)
		go func(kind types.SectionKind) {
			defer wg.Done()
			section, err := o.extractOne(ctx, kind, sourceText)
			outcomes <- sectionOutcome{kind: kind, section: section, err: err}
		}(kind)
	}
	wg.Wait()
	close(outcomes)

	var failedKinds []types.SectionKind
	for outcome := range outcomes {
		if outcome.err != nil {
			failedKinds = append(failedKinds, outcome.kind)
			continue
		}
		AttachSection(doc, outcome.kind, outcome.section)
	}

	o.logger.Info().
		Int("sections", doc.SectionCount()).
		Int("failed", len(failedKinds)).
		Dur("elapsed", time.Since(startedAt)).
		Msg("并行提取阶段完成")

	if len(failedKinds) == 0 {
		return doc, nil
	}

	// 重试阶段：顺序执行，避免在刚出现失败时继续加压外部依赖
	stillFailed := o.retrySequentially(ctx, doc, sourceText, failedKinds)
	return doc, stillFailed
}

// retrySequentially 对失败章节逐个重试一次。
// 熔断器处于打开状态时跳过剩余重试，免得白白消耗延迟。
func (o *Orchestrator) retrySequentially(ctx context.Context, doc *types.Document, sourceText string, failedKinds []types.SectionKind) []types.SectionKind {
	var stillFailed []types.SectionKind

	for _, kind := range failedKinds {
		if ctx.Err() != nil {
			stillFailed = append(stillFailed, kind)
			continue
		}
		if o.breaker != nil && o.breaker.State() == resilience.StateOpen {
			o.logger.Warn().Str("section", string(kind)).Msg("熔断器打开，跳过该章节的重试")
			stillFailed = append(stillFailed, kind)
			continue
		}

		section, err := o.extractOne(ctx, kind, sourceText)
		if err != nil {
			o.logger.Warn().Err(err).Str("section", string(kind)).Msg("章节重试仍失败，最终缺席")
			stillFailed = append(stillFailed, kind)
			continue
		}
		AttachSection(doc, kind, section)
	}

	return stillFailed
}

// extractOne 单章节的一次完整提取往返。
// 返回 (nil, nil) 表示模型明确报告该章节无内容。
func (o *Orchestrator) extractOne(ctx context.Context, kind types.SectionKind, sourceText string) (interface{}, error) {
	attempt := types.ExtractionAttempt{
		Kind:      kind,
		Prompt:    o.catalog.BuildPrompt(kind),
		Timestamp: time.Now(),
	}

	messages := []*einoschema.Message{
		{Role: einoschema.System, Content: attempt.Prompt},
		{Role: einoschema.User, Content: sourceText},
	}

	response, err := o.llmModel.Generate(ctx, messages)
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			o.logger.Warn().Str("section", string(kind)).Msg("熔断器拒绝了章节提取调用")
		} else {
			o.logger.Warn().Err(err).Str("section", string(kind)).Msg("章节LLM调用失败")
		}
		return nil, err
	}

	attempt.RawResponse = response.Content
	raw := ParseResponse(response.Content)
	if raw == nil {
		attempt.FailureReason = "响应中没有可解析的JSON"
		o.logger.Warn().Str("section", string(kind)).Str("response_head", head(response.Content, 80)).Msg(attempt.FailureReason)
		return nil, &SchemaValidationError{Kind: kind, Reason: attempt.FailureReason}
	}

	section, err := ValidateSection(kind, raw)
	if err != nil {
		o.logger.Warn().Err(err).Str("section", string(kind)).Msg("章节校验失败")
		return nil, err
	}
	return section, nil
}

// head 截取字符串前n个字节用于日志
func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
