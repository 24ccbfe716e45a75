package portfolio

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"portfolio-agent-go/internal/logger"
	"portfolio-agent-go/internal/storage"
	"portfolio-agent-go/internal/storage/models"
	"portfolio-agent-go/internal/types"
)

var tracer = otel.Tracer("portfolio")

// Service 消费抽取完成事件并生成作品集页面
type Service struct {
	storage   *storage.Storage
	generator *Generator
	logger    zerolog.Logger
}

// NewService 创建作品集生成服务
func NewService(storageManager *storage.Storage, generator *Generator, log zerolog.Logger) *Service {
	return &Service{
		storage:   storageManager,
		generator: generator,
		logger:    log.With().Str("component", "portfolio-service").Logger(),
	}
}

// HandleDocumentExtracted 处理抽取完成事件：
// 读取结构化文档、渲染作品集页面并上传到对象存储。
func (s *Service) HandleDocumentExtracted(ctx context.Context, message storage.DocumentExtractedMessage) error {
	ctx, span := tracer.Start(ctx, "HandleDocumentExtracted",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	span.SetAttributes(
		attribute.String("submission_uuid", message.SubmissionUUID),
		attribute.Float64("confidence", message.Confidence),
	)

	ctx = logger.WithSubmissionUUID(ctx, message.SubmissionUUID)
	log := logger.FromContext(ctx)

	log.Debug().Msg("开始生成作品集")

	// 1. 读取结构化文档，优先走Redis缓存
	doc, err := s.loadDocument(ctx, message.SubmissionUUID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "读取结构化文档失败")
		return err
	}

	// 2. 渲染作品集页面
	page, err := s.generator.Render(doc)
	if err != nil {
		log.Error().Err(err).Msg("渲染作品集页面失败")
		span.RecordError(err)
		span.SetStatus(codes.Error, "渲染失败")
		return fmt.Errorf("渲染作品集页面失败: %w", err)
	}

	// 3. 上传到作品集bucket
	objectKey, err := s.storage.MinIO.UploadPortfolioAsset(ctx, message.SubmissionUUID, "index.html", page, "text/html")
	if err != nil {
		log.Error().Err(err).Msg("上传作品集页面失败")
		span.RecordError(err)
		span.SetStatus(codes.Error, "上传失败")
		return fmt.Errorf("上传作品集页面失败: %w", err)
	}
	log.Debug().Str("object_key", objectKey).Msg("作品集页面已上传")

	// 4. 更新投递记录
	if err := s.storage.MySQL.UpdateSubmissionFields(nil, message.SubmissionUUID, map[string]interface{}{
		"portfolio_path_oss": objectKey,
		"processing_status":  models.StatusPortfolioReady,
	}); err != nil {
		log.Error().Err(err).Msg("更新作品集路径失败")
		span.RecordError(err)
		span.SetStatus(codes.Error, "更新数据库失败")
		return fmt.Errorf("更新作品集路径失败: %w", err)
	}

	span.SetStatus(codes.Ok, "生成成功")
	log.Info().Str("portfolio_path", objectKey).Msg("作品集生成完成")
	return nil
}

// loadDocument 读取结构化文档，Redis缓存未命中时回退到MySQL
func (s *Service) loadDocument(ctx context.Context, submissionUUID string) (*types.Document, error) {
	log := logger.FromContext(ctx)

	if s.storage.Redis != nil {
		cached, err := s.storage.Redis.GetCachedExtractedDocument(ctx, submissionUUID)
		if err == nil && cached != "" {
			var doc types.Document
			if err := json.Unmarshal([]byte(cached), &doc); err == nil {
				log.Debug().Msg("从Redis缓存读取结构化文档")
				return &doc, nil
			}
			log.Warn().Msg("Redis缓存中的文档JSON无效，回退到MySQL")
		} else if err != nil && err != storage.ErrNotFound {
			log.Warn().Err(err).Msg("读取Redis缓存失败，回退到MySQL")
		}
	}

	record, err := s.storage.MySQL.GetExtractedDocument(ctx, submissionUUID)
	if err != nil {
		return nil, fmt.Errorf("从MySQL读取结构化文档失败: %w", err)
	}
	doc, err := record.ToDocument()
	if err != nil {
		return nil, fmt.Errorf("反序列化结构化文档失败: %w", err)
	}
	return doc, nil
}
