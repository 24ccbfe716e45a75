package extractor

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/types"
	"portfolio-agent-go/pkg/resilience"
)

// Engine 章节提取流水线的统一入口。
// 上传处理器和CLI都只依赖这一个门面：
// 原文 -> 17路并行提取 -> 顺序重试 -> 跨章节后处理 -> 定稿。
type Engine struct {
	orchestrator *Orchestrator
	postproc     *PostProcessor
	assembler    *Assembler
	logger       zerolog.Logger
}

// NewEngine 创建提取引擎。breaker 可为nil（测试场景）。
func NewEngine(llmModel model.ToolCallingChatModel, breaker *resilience.CircuitBreaker, cfg PostProcessorConfig, logger zerolog.Logger) *Engine {
	return &Engine{
		orchestrator: NewOrchestrator(llmModel, NewPromptCatalog(), breaker, logger),
		postproc:     NewPostProcessor(cfg, logger),
		assembler:    NewAssembler(logger),
		logger:       logger.With().Str("component", "extractor_engine").Logger(),
	}
}

// ExtractDocument 从原始简历文本提取结构化文档。
// 永远返回一个文档（可能零章节）加上诊断信息，
// 数据质量问题只报告、不阻断，取舍留给调用方。
func (e *Engine) ExtractDocument(ctx context.Context, sourceText string) *types.ExtractionResult {
	if strings.TrimSpace(sourceText) == "" {
		e.logger.Warn().Msg("输入文本为空，返回空文档")
		return &types.ExtractionResult{
			Document: &types.Document{},
			Diagnostics: &types.Diagnostics{
				Confidence: 0,
				Issues: []types.ValidationIssue{{
					Kind:     types.IssueEmptySource,
					Severity: types.SeverityError,
					Message:  "输入文本为空，无法提取任何内容",
				}},
			},
		}
	}

	doc, failedKinds := e.orchestrator.ExtractSections(ctx, sourceText)
	if len(failedKinds) > 0 {
		kinds := make([]string, len(failedKinds))
		for i, k := range failedKinds {
			kinds[i] = string(k)
		}
		e.logger.Warn().Strs("sections", kinds).Msg("部分章节最终提取失败")
	}

	issues := e.postproc.Process(doc, sourceText)
	doc = e.assembler.Finalize(doc)
	confidence := e.postproc.ConfidenceScore(doc, sourceText, issues)

	e.logger.Info().
		Int("sections", doc.SectionCount()).
		Int("issues", len(issues)).
		Float64("confidence", confidence).
		Msg("文档提取完成")

	return &types.ExtractionResult{
		Document:    doc,
		Diagnostics: &types.Diagnostics{Confidence: confidence, Issues: issues},
	}
}
