package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portfolio-agent-go/internal/config"
	"portfolio-agent-go/internal/logger"
	"portfolio-agent-go/internal/storage"
	"portfolio-agent-go/internal/storage/models"
	"portfolio-agent-go/internal/tracing"
	"portfolio-agent-go/internal/types"
)

// 定义tracer
var tracer = otel.Tracer("processor")

// extractionAllowedStatuses 允许进入抽取流程的状态集合，用于幂等性检查。
// EXTRACTION_FAILED 在列表中是为了支持失败后消息重投。
var extractionAllowedStatuses = map[string]bool{
	models.StatusUploaded:          true,
	models.StatusPendingExtraction: true,
	models.StatusExtractionFailed:  true,
}

// SubmissionService 定义投递处理服务的接口
// 提供统一的服务层接口，隐藏内部实现细节
type SubmissionService interface {
	// ProcessUploadedSubmission 处理上传完成的投递：
	// 解析文本、运行结构化抽取引擎并持久化结果
	ProcessUploadedSubmission(ctx context.Context, message storage.SubmissionUploadedMessage) error
}

// submissionServiceImpl 是SubmissionService的实现
// 采用Facade模式，内部持有所有需要的组件，但不暴露给外部
type submissionServiceImpl struct {
	components Components
	config     *config.Config
	logger     *zerolog.Logger
}

// NewSubmissionService 创建新的投递处理服务实例
func NewSubmissionService(ctx context.Context, cfg *config.Config, storageManager *storage.Storage, log *zerolog.Logger) (SubmissionService, error) {
	if log == nil {
		defaultLogger := zerolog.Nop()
		log = &defaultLogger
	}

	components, err := createComponents(ctx, cfg, storageManager, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create components: %w", err)
	}

	return &submissionServiceImpl{
		components: components,
		config:     cfg,
		logger:     log,
	}, nil
}

// CheckComponentsInitialized 检查所有必要的组件是否已初始化
func (ss *submissionServiceImpl) CheckComponentsInitialized() error {
	if ss.components.Storage == nil {
		return ErrStorageNotInit
	}
	if ss.components.PDFExtractor == nil {
		return ErrExtractorNotInit
	}
	if ss.components.Engine == nil {
		return ErrEngineNotInit
	}
	return nil
}

// ProcessUploadedSubmission 处理上传完成的投递
// 实现SubmissionService接口
func (ss *submissionServiceImpl) ProcessUploadedSubmission(ctx context.Context, message storage.SubmissionUploadedMessage) error {
	ctx, span := tracer.Start(ctx, "ProcessUploadedSubmission",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	// 添加关键业务属性
	span.SetAttributes(
		attribute.String("submission_uuid", message.SubmissionUUID),
		attribute.String("source_channel", message.SourceChannel),
	)

	// 使用带trace信息的logger
	ctx = logger.WithSubmissionUUID(ctx, message.SubmissionUUID)
	log := logger.FromContext(ctx)

	log.Debug().Msg("开始处理上传的投递")

	if err := ss.CheckComponentsInitialized(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return err
	}

	startTime := time.Now()

	// 1. 在事务中做幂等性检查并抢占状态
	claimed, err := ss.claimSubmission(ctx, message.SubmissionUUID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return err
	}
	if !claimed {
		span.SetAttributes(attribute.String("skipped_reason", "invalid_status"))
		log.Debug().Msg("状态不允许抽取，跳过重复消息")
		return nil
	}

	// 2. 下载原始文件并解析文本
	ctx, parseSpan := tracer.Start(ctx, "ParseSubmissionText")
	text, err := ss.parseSubmissionText(ctx, message)
	parseSpan.End()
	if err != nil {
		tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeInternal,
			attribute.String("processing.stage", "parse"))
		ss.markFailed(ctx, message.SubmissionUUID)
		return err
	}

	// 3. 上传解析后的文本到MinIO并更新投递记录
	span.AddEvent("uploading_parsed_text")
	textObjectKey, err := ss.components.Storage.MinIO.UploadParsedText(ctx, message.SubmissionUUID, text)
	if err != nil {
		log.Error().Err(err).Msg("上传解析后的文本到MinIO失败")
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		ss.markFailed(ctx, message.SubmissionUUID)
		return NewStoreError(message.SubmissionUUID, err.Error())
	}
	log.Debug().Str("object_key", textObjectKey).Msg("解析文本已上传到MinIO")

	// 解析文本写入Redis缓存，失败不影响主流程
	if ss.components.Storage.Redis != nil {
		if err := ss.components.Storage.Redis.CacheParsedText(ctx, message.SubmissionUUID, text); err != nil {
			log.Warn().Err(err).Msg("缓存解析文本到Redis失败")
		}
	}

	if err := ss.components.Storage.MySQL.UpdateSubmissionFields(nil, message.SubmissionUUID, map[string]interface{}{
		"parsed_text_path_oss": textObjectKey,
		"parser_version":       ss.config.ActiveParserVersion,
	}); err != nil {
		log.Error().Err(err).Msg("更新解析文本路径失败")
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		ss.markFailed(ctx, message.SubmissionUUID)
		return NewUpdateError(message.SubmissionUUID, err.Error())
	}

	// 4. 运行结构化抽取引擎（事务外执行，17个章节并发抽取）
	ctx, extractSpan := tracer.Start(ctx, "ExtractDocument")
	result := ss.components.Engine.ExtractDocument(ctx, text)
	extractSpan.SetAttributes(
		attribute.Int("section_count", result.Document.SectionCount()),
		attribute.Float64("confidence", result.Diagnostics.Confidence),
		attribute.Int("issue_count", len(result.Diagnostics.Issues)),
	)
	extractSpan.End()

	log.Info().
		Int("section_count", result.Document.SectionCount()).
		Float64("confidence", result.Diagnostics.Confidence).
		Int("issue_count", len(result.Diagnostics.Issues)).
		Msg("结构化抽取完成")

	// 5. 在一个事务中持久化文档、校验问题、状态和outbox消息
	if err := ss.persistExtractionResult(ctx, message, textObjectKey, result.Document, result.Diagnostics, time.Since(startTime)); err != nil {
		tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeDB,
			attribute.String("processing.stage", "persist"))
		ss.markFailed(ctx, message.SubmissionUUID)
		return err
	}

	span.SetStatus(codes.Ok, "处理成功")
	log.Info().Dur("elapsed", time.Since(startTime)).Msg("投递处理成功完成")
	return nil
}

// claimSubmission 在事务中锁定投递记录并抢占EXTRACTING状态。
// 返回false表示当前状态不允许抽取（重复消息或已处理）。
func (ss *submissionServiceImpl) claimSubmission(ctx context.Context, submissionUUID string) (bool, error) {
	log := logger.FromContext(ctx)
	claimed := false

	err := ss.components.Storage.MySQL.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var submission models.PortfolioSubmission
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("submission_uuid = ?", submissionUUID).
			First(&submission).Error; err != nil {

			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Info().Msg("投递记录未找到，可能已被删除")
				return nil // 记录不存在，直接确认消息
			}
			return NewDatabaseError(submissionUUID, err.Error())
		}

		// 幂等性检查
		if !extractionAllowedStatuses[submission.ProcessingStatus] {
			log.Debug().Str("current_status", submission.ProcessingStatus).Msg("跳过重复/无效状态的消息")
			return nil
		}

		if err := tx.Model(&submission).Update("processing_status", models.StatusExtracting).Error; err != nil {
			return NewUpdateError(submissionUUID, err.Error())
		}
		claimed = true
		return nil
	})

	return claimed, err
}

// parseSubmissionText 下载原始文件并提取纯文本
func (ss *submissionServiceImpl) parseSubmissionText(ctx context.Context, message storage.SubmissionUploadedMessage) (string, error) {
	log := logger.FromContext(ctx)
	span := trace.SpanFromContext(ctx)

	// 从MinIO获取原始文件
	originalFileBytes, err := ss.components.Storage.MinIO.GetSubmissionFile(ctx, message.OriginalFilePathOSS)
	if err != nil {
		log.Error().Err(err).Msg("从MinIO下载原始文件失败")
		span.SetAttributes(attribute.String("error.type", "download_failure"))
		return "", NewDownloadError(message.SubmissionUUID, err.Error())
	}
	log.Debug().Int("size_bytes", len(originalFileBytes)).Msg("从MinIO下载原始文件成功")
	span.SetAttributes(attribute.Int("file_size_bytes", len(originalFileBytes)))

	// 提取文本
	text, _, err := ss.components.PDFExtractor.ExtractTextFromReader(ctx, bytes.NewReader(originalFileBytes), message.OriginalFilePathOSS, nil)
	if err != nil {
		log.Error().Err(err).Msg("提取文本失败")
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "extract_failure"))
		return "", NewParseError(message.SubmissionUUID, err.Error())
	}
	if len(text) == 0 {
		return "", NewParseError(message.SubmissionUUID, "提取到的文本为空")
	}
	log.Debug().Int("text_length", len(text)).Msg("成功提取文本")
	span.SetAttributes(attribute.Int("text_length", len(text)))
	span.AddEvent("text_extraction_completed")

	return text, nil
}

// persistExtractionResult 把抽取结果和抽取完成事件在同一个事务中落库
func (ss *submissionServiceImpl) persistExtractionResult(
	ctx context.Context,
	message storage.SubmissionUploadedMessage,
	textObjectKey string,
	doc *types.Document,
	diag *types.Diagnostics,
	elapsed time.Duration,
) error {
	log := logger.FromContext(ctx)

	var docRecord models.ExtractedDocument
	if err := docRecord.FromDocument(message.SubmissionUUID, doc, diag.Confidence); err != nil {
		return NewDatabaseError(message.SubmissionUUID, fmt.Sprintf("序列化文档失败: %v", err))
	}
	issueRecords := models.IssueRecordsFromDiagnostics(message.SubmissionUUID, diag)

	// 抽取完成事件写入outbox表，由中继进程发布到作品集构建队列
	extractedMsg := storage.DocumentExtractedMessage{
		SubmissionUUID:    message.SubmissionUUID,
		ParsedTextPathOSS: textObjectKey,
		Confidence:        diag.Confidence,
		SectionCount:      doc.SectionCount(),
		ProcessingStatus:  models.StatusExtracted,
		ProcessingTime:    elapsed.Seconds(),
	}
	payloadBytes, err := json.Marshal(extractedMsg)
	if err != nil {
		return NewDatabaseError(message.SubmissionUUID, fmt.Sprintf("序列化outbox payload失败: %v", err))
	}

	outboxEntry := &models.OutboxMessage{
		AggregateID:      message.SubmissionUUID,
		EventType:        "document.extracted",
		Payload:          string(payloadBytes),
		TargetExchange:   ss.config.RabbitMQ.ProcessingExchange,
		TargetRoutingKey: ss.config.RabbitMQ.ExtractedRoutingKey,
	}

	submissionUpdates := map[string]interface{}{
		"processing_status": models.StatusExtracted,
	}

	if err := ss.components.Storage.MySQL.SaveExtractionResult(ctx, &docRecord, issueRecords, submissionUpdates, outboxEntry); err != nil {
		log.Error().Err(err).Msg("持久化抽取结果失败")
		return NewDatabaseError(message.SubmissionUUID, err.Error())
	}

	// 文档JSON写入Redis缓存，失败不影响主流程
	if ss.components.Storage.Redis != nil {
		if err := ss.components.Storage.Redis.CacheExtractedDocument(ctx, message.SubmissionUUID, string(docRecord.DocumentJSON)); err != nil {
			log.Warn().Err(err).Msg("缓存结构化文档到Redis失败")
		}
	}

	log.Debug().Msg("抽取结果已持久化")
	return nil
}

// markFailed 把投递状态置为抽取失败
func (ss *submissionServiceImpl) markFailed(ctx context.Context, submissionUUID string) {
	if err := ss.components.Storage.MySQL.UpdateSubmissionStatus(ctx, submissionUUID, models.StatusExtractionFailed); err != nil {
		logger.FromContext(ctx).Error().Err(err).Msg("更新状态为EXTRACTION_FAILED失败")
	}
}
