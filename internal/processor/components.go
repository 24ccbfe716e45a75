package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/agent"
	"portfolio-agent-go/internal/config"
	"portfolio-agent-go/internal/extractor"
	"portfolio-agent-go/internal/parser"
	"portfolio-agent-go/internal/storage"
	"portfolio-agent-go/pkg/resilience"
)

// Components 投递处理服务的组件依赖
type Components struct {
	// 存储管理器
	Storage *storage.Storage

	// PDF文本提取器
	PDFExtractor parser.PDFExtractor

	// 结构化抽取引擎
	Engine *extractor.Engine
}

// createComponents 创建所有必要的组件
func createComponents(ctx context.Context, cfg *config.Config, storageManager *storage.Storage, logger *zerolog.Logger) (Components, error) {
	components := Components{
		Storage: storageManager,
	}

	// 按配置选择PDF提取器实现
	pdfExtractor, err := NewPDFExtractor(ctx, cfg, logger)
	if err != nil {
		return components, fmt.Errorf("创建PDF提取器失败: %w", err)
	}
	components.PDFExtractor = pdfExtractor

	// 创建结构化抽取引擎
	if cfg.Aliyun.APIKey != "" {
		engine, err := NewExtractionEngine(cfg, logger)
		if err != nil {
			return components, fmt.Errorf("创建抽取引擎失败: %w", err)
		}
		components.Engine = engine
	}

	return components, nil
}

// NewPDFExtractor 根据ActiveParserVersion选择Tika或eino解析器
func NewPDFExtractor(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (parser.PDFExtractor, error) {
	switch cfg.Tika.Type {
	case "eino":
		return parser.NewEinoPDFTextExtractor(ctx, parser.WithEinoLogger(*logger))
	default:
		if cfg.Tika.ServerURL == "" {
			return nil, fmt.Errorf("tika server_url未配置")
		}
		tikaOptions := []parser.TikaOption{
			parser.WithMinimalMetadata(cfg.Tika.MetadataMode != "full"),
			parser.WithAnnotations(true),
			parser.WithTikaLogger(*logger),
		}
		tikaTimeout := time.Duration(cfg.Tika.Timeout) * time.Second
		if tikaTimeout > 0 {
			tikaOptions = append(tikaOptions, parser.WithTimeout(tikaTimeout))
		}
		return parser.NewTikaPDFExtractor(cfg.Tika.ServerURL, tikaOptions...), nil
	}
}

// NewExtractionEngine 组装带熔断和限流保护的抽取引擎
func NewExtractionEngine(cfg *config.Config, logger *zerolog.Logger) (*extractor.Engine, error) {
	modelName := cfg.Extractor.ModelName
	if modelName == "" {
		modelName = cfg.GetModelForTask("section_extraction")
	}

	qwenModel, err := agent.NewAliyunQwenChatModel(
		cfg.Aliyun.APIKey,
		modelName,
		cfg.Aliyun.APIURL,
		*logger,
		agent.WithTemperature(cfg.Extractor.Temperature),
		agent.WithMaxTokens(cfg.Extractor.MaxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("创建千问模型失败: %w", err)
	}

	breakerCfg := resilience.BreakerConfig{
		FailureThreshold:    cfg.CircuitBreaker.FailureThreshold,
		FailureWindow:       time.Duration(cfg.CircuitBreaker.FailureWindowSeconds) * time.Second,
		BaseTimeout:         time.Duration(cfg.CircuitBreaker.BaseTimeoutSeconds) * time.Second,
		MaxTimeout:          time.Duration(cfg.CircuitBreaker.MaxTimeoutSeconds) * time.Second,
		Multiplier:          cfg.CircuitBreaker.Multiplier,
		HalfOpenMaxAttempts: cfg.CircuitBreaker.HalfOpenMaxAttempts,
		SuccessThreshold:    cfg.CircuitBreaker.SuccessThreshold,
	}

	// 同一API凭证的所有调用共享一个熔断器
	guarded := resilience.NewGuardedLLMModel(
		qwenModel,
		cfg.Aliyun.APIKey,
		cfg.GetModelQPM(modelName),
		breakerCfg,
		logger,
		resilience.WithCallTimeout(config.GetDuration(cfg.Extractor.ExtractionTimeout, 60*time.Second)),
		resilience.WithRetryPolicy(cfg.Extractor.MaxRetries, time.Duration(cfg.Extractor.RetryWaitSeconds)*time.Second),
	)

	postprocCfg := extractor.PostProcessorConfig{
		AchievementSimilarity: cfg.Extractor.AchievementSimilarity,
		ListFieldOverlap:      cfg.Extractor.ListFieldOverlap,
		ProseFieldOverlap:     cfg.Extractor.ProseFieldOverlap,
		CompletenessWeight:    cfg.Extractor.CompletenessWeight,
		CoverageWeight:        cfg.Extractor.CoverageWeight,
		QualityWeight:         cfg.Extractor.QualityWeight,
	}

	return extractor.NewEngine(guarded, guarded.Breaker(), postprocCfg, *logger), nil
}
