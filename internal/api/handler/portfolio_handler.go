package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"

	"portfolio-agent-go/internal/config"
	"portfolio-agent-go/internal/portfolio"
	"portfolio-agent-go/internal/processor"
	"portfolio-agent-go/internal/storage"
	"portfolio-agent-go/internal/storage/models"
	"portfolio-agent-go/internal/types"
	"portfolio-agent-go/pkg/utils"
)

// 上传响应状态
const (
	StatusSubmitted        = "SUBMITTED_FOR_PROCESSING"
	StatusDuplicateSkipped = "DUPLICATE_FILE_SKIPPED"
)

// UploadResponse 上传接口响应
type UploadResponse struct {
	SubmissionUUID string `json:"submission_uuid"`
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
}

// DocumentResponse 结构化文档查询响应
type DocumentResponse struct {
	SubmissionUUID   string          `json:"submission_uuid"`
	ProcessingStatus string          `json:"processing_status"`
	Confidence       float64         `json:"confidence"`
	SectionCount     int             `json:"section_count"`
	Document         *types.Document `json:"document"`
}

// DiagnosticsResponse 校验诊断查询响应
type DiagnosticsResponse struct {
	SubmissionUUID string             `json:"submission_uuid"`
	Diagnostics    *types.Diagnostics `json:"diagnostics"`
}

// PortfolioHandler 封装作品集业务逻辑，与具体HTTP框架解耦
type PortfolioHandler struct {
	cfg           *config.Config
	storage       *storage.Storage
	extractionSvc processor.SubmissionService
	portfolioSvc  *portfolio.Service
	logger        zerolog.Logger
}

// NewPortfolioHandler 创建作品集处理器
func NewPortfolioHandler(cfg *config.Config, storageManager *storage.Storage, extractionSvc processor.SubmissionService, portfolioSvc *portfolio.Service, logger zerolog.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		cfg:           cfg,
		storage:       storageManager,
		extractionSvc: extractionSvc,
		portfolioSvc:  portfolioSvc,
		logger:        logger.With().Str("component", "portfolio_handler").Logger(),
	}
}

// HandleUpload 处理简历上传：MD5去重、MinIO入库、DB登记、发布上传事件。
// 重复文件直接返回已有提交的UUID，不重新走提取流程。
func (h *PortfolioHandler) HandleUpload(ctx context.Context, file io.Reader, fileSize int64, filename string, sourceChannel string) (*UploadResponse, error) {
	if h.storage == nil || h.storage.MinIO == nil || h.storage.RabbitMQ == nil || h.storage.MySQL == nil {
		return nil, fmt.Errorf("存储服务未初始化")
	}
	if sourceChannel == "" {
		sourceChannel = "web_upload"
	}

	// 一次性读入内存计算MD5，避免MinIO上传后才发现重复
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件失败: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("上传文件为空")
	}
	md5Hex := utils.CalculateMD5(data)

	log := h.logger.With().Str("md5", md5Hex).Str("filename", filename).Logger()

	if h.storage.Redis != nil {
		exists, err := h.storage.Redis.CheckAndAddRawFileMD5(ctx, md5Hex)
		if err != nil {
			// Redis故障时降级放行，由DB幂等约束兜底
			log.Warn().Err(err).Msg("MD5去重检查失败，继续处理")
		} else if exists {
			existingUUID := h.lookupSubmissionByMD5(ctx, md5Hex)
			log.Info().Str("existing_uuid", existingUUID).Msg("检测到重复文件，跳过处理")
			return &UploadResponse{
				SubmissionUUID: existingUUID,
				Status:         StatusDuplicateSkipped,
				Message:        "文件内容与已有提交重复",
			}, nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		h.rollbackMD5(ctx, md5Hex)
		return nil, fmt.Errorf("生成提交UUID失败: %w", err)
	}
	submissionUUID := id.String()

	fileExt := filepath.Ext(filename)
	if fileExt == "" {
		fileExt = ".pdf"
	}

	objectKey, _, err := h.storage.MinIO.UploadSubmissionFileStreaming(ctx, submissionUUID, fileExt, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		h.rollbackMD5(ctx, md5Hex)
		return nil, fmt.Errorf("上传原始文件到MinIO失败: %w", err)
	}

	if h.storage.Redis != nil {
		if _, _, err := h.storage.Redis.CheckAndSetFileMD5(ctx, md5Hex, submissionUUID); err != nil {
			log.Warn().Err(err).Msg("记录MD5到UUID映射失败")
		}
	}

	now := time.Now()
	submission := &models.PortfolioSubmission{
		SubmissionUUID:      submissionUUID,
		SubmissionTimestamp: now,
		SourceChannel:       sourceChannel,
		OriginalFilename:    filename,
		OriginalFilePathOSS: objectKey,
		RawFileMD5:          md5Hex,
		ProcessingStatus:    models.StatusUploaded,
	}
	if err := h.storage.MySQL.CreateSubmission(ctx, submission); err != nil {
		h.rollbackMD5(ctx, md5Hex)
		return nil, fmt.Errorf("保存提交记录失败: %w", err)
	}

	msg := &storage.SubmissionUploadedMessage{
		SubmissionUUID:      submissionUUID,
		SubmissionTimestamp: now,
		SourceChannel:       sourceChannel,
		OriginalFilename:    filename,
		OriginalFilePathOSS: objectKey,
		RawFileMD5:          md5Hex,
	}
	if err := h.storage.RabbitMQ.PublishSubmissionUploaded(ctx, msg); err != nil {
		// 发布失败则回滚去重记录，允许用户重试
		h.rollbackMD5(ctx, md5Hex)
		return nil, fmt.Errorf("发布上传事件失败: %w", err)
	}

	log.Info().Str("submission_uuid", submissionUUID).Str("object_key", objectKey).Msg("简历上传完成，已进入提取队列")

	return &UploadResponse{
		SubmissionUUID: submissionUUID,
		Status:         StatusSubmitted,
	}, nil
}

// lookupSubmissionByMD5 查找重复文件对应的提交UUID，Redis映射缺失时回退到DB
func (h *PortfolioHandler) lookupSubmissionByMD5(ctx context.Context, md5Hex string) string {
	if h.storage.Redis != nil {
		if existingUUID, err := h.storage.Redis.GetSubmissionUUIDForMD5(ctx, md5Hex); err == nil && existingUUID != "" {
			return existingUUID
		}
	}
	if submission, err := h.storage.MySQL.GetSubmissionByMD5(ctx, md5Hex); err == nil {
		return submission.SubmissionUUID
	}
	return ""
}

func (h *PortfolioHandler) rollbackMD5(ctx context.Context, md5Hex string) {
	if h.storage.Redis == nil {
		return
	}
	if err := h.storage.Redis.RemoveRawFileMD5(ctx, md5Hex); err != nil {
		h.logger.Warn().Err(err).Str("md5", md5Hex).Msg("回滚MD5去重记录失败")
	}
}

// GetDocument 查询提取出的结构化文档，优先读Redis缓存
func (h *PortfolioHandler) GetDocument(ctx context.Context, submissionUUID string) (*DocumentResponse, error) {
	submission, err := h.storage.MySQL.GetSubmissionByUUID(ctx, submissionUUID)
	if err != nil {
		return nil, err
	}

	resp := &DocumentResponse{
		SubmissionUUID:   submissionUUID,
		ProcessingStatus: submission.ProcessingStatus,
	}

	if h.storage.Redis != nil {
		if cached, err := h.storage.Redis.GetCachedExtractedDocument(ctx, submissionUUID); err == nil && cached != "" {
			var doc types.Document
			if err := json.Unmarshal([]byte(cached), &doc); err == nil {
				resp.Document = &doc
				resp.SectionCount = doc.SectionCount()
			}
		}
	}

	record, err := h.storage.MySQL.GetExtractedDocument(ctx, submissionUUID)
	if err != nil {
		if storage.IsNotFound(err) && resp.Document == nil {
			return resp, nil // 文档尚未生成，只返回处理状态
		}
		if resp.Document == nil {
			return nil, err
		}
		return resp, nil
	}
	resp.Confidence = record.Confidence
	resp.SectionCount = record.SectionCount
	if resp.Document == nil {
		doc, err := record.ToDocument()
		if err != nil {
			return nil, fmt.Errorf("反序列化结构化文档失败: %w", err)
		}
		resp.Document = doc
	}
	return resp, nil
}

// GetDiagnostics 查询提取过程产生的校验诊断
func (h *PortfolioHandler) GetDiagnostics(ctx context.Context, submissionUUID string) (*DiagnosticsResponse, error) {
	if _, err := h.storage.MySQL.GetSubmissionByUUID(ctx, submissionUUID); err != nil {
		return nil, err
	}

	var confidence float64
	if record, err := h.storage.MySQL.GetExtractedDocument(ctx, submissionUUID); err == nil {
		confidence = record.Confidence
	}

	records, err := h.storage.MySQL.GetValidationIssues(ctx, submissionUUID)
	if err != nil {
		return nil, err
	}

	return &DiagnosticsResponse{
		SubmissionUUID: submissionUUID,
		Diagnostics:    models.DiagnosticsFromIssueRecords(confidence, records),
	}, nil
}

// StartExtractionConsumer 启动提取消费者：消费上传事件，执行解析与章节提取
func (h *PortfolioHandler) StartExtractionConsumer(ctx context.Context) error {
	if h.storage.RabbitMQ == nil {
		return fmt.Errorf("RabbitMQ未初始化")
	}
	if err := h.storage.RabbitMQ.SetupSubmissionTopology(); err != nil {
		return fmt.Errorf("声明消息拓扑失败: %w", err)
	}

	workers := 5
	if w, ok := h.cfg.RabbitMQ.ConsumerWorkers["upload_consumer_workers"]; ok && w > 0 {
		workers = w
	}
	prefetch := h.cfg.RabbitMQ.PrefetchCount
	if prefetch <= 0 {
		prefetch = 10
	}

	for i := 0; i < workers; i++ {
		_, err := h.storage.RabbitMQ.StartConsumer(h.cfg.RabbitMQ.RawSubmissionQueue, prefetch, func(body []byte) bool {
			var msg storage.SubmissionUploadedMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				// 非法消息无法重试，确认后丢弃
				h.logger.Error().Err(err).Msg("解析上传消息失败，丢弃消息")
				return true
			}
			if err := h.extractionSvc.ProcessUploadedSubmission(ctx, msg); err != nil {
				h.logger.Error().Err(err).Str("submission_uuid", msg.SubmissionUUID).Msg("处理上传消息失败，消息重新入队")
				return false
			}
			return true
		})
		if err != nil {
			return fmt.Errorf("启动提取消费者失败: %w", err)
		}
	}

	h.logger.Info().Int("workers", workers).Str("queue", h.cfg.RabbitMQ.RawSubmissionQueue).Msg("提取消费者已启动")
	return nil
}

// StartPortfolioConsumer 启动作品集消费者：消费提取完成事件，渲染作品集页面
func (h *PortfolioHandler) StartPortfolioConsumer(ctx context.Context) error {
	if h.storage.RabbitMQ == nil {
		return fmt.Errorf("RabbitMQ未初始化")
	}
	if err := h.storage.RabbitMQ.SetupSubmissionTopology(); err != nil {
		return fmt.Errorf("声明消息拓扑失败: %w", err)
	}

	workers := 2
	if w, ok := h.cfg.RabbitMQ.ConsumerWorkers["portfolio_consumer_workers"]; ok && w > 0 {
		workers = w
	}
	prefetch := h.cfg.RabbitMQ.PrefetchCount
	if prefetch <= 0 {
		prefetch = 10
	}

	for i := 0; i < workers; i++ {
		_, err := h.storage.RabbitMQ.StartConsumer(h.cfg.RabbitMQ.PortfolioBuildQueue, prefetch, func(body []byte) bool {
			var msg storage.DocumentExtractedMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				h.logger.Error().Err(err).Msg("解析提取完成消息失败，丢弃消息")
				return true
			}
			if msg.ProcessingStatus != models.StatusExtracted {
				// 失败事件只记录，不生成作品集
				h.logger.Warn().Str("submission_uuid", msg.SubmissionUUID).Str("status", msg.ProcessingStatus).Msg("跳过非成功状态的提取事件")
				return true
			}
			if err := h.portfolioSvc.HandleDocumentExtracted(ctx, msg); err != nil {
				h.logger.Error().Err(err).Str("submission_uuid", msg.SubmissionUUID).Msg("生成作品集失败，消息重新入队")
				return false
			}
			return true
		})
		if err != nil {
			return fmt.Errorf("启动作品集消费者失败: %w", err)
		}
	}

	h.logger.Info().Int("workers", workers).Str("queue", h.cfg.RabbitMQ.PortfolioBuildQueue).Msg("作品集消费者已启动")
	return nil
}
