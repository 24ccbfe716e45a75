package outbox // 发件箱模式（Outbox Pattern）的实现

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portfolio-agent-go/internal/storage"
	"portfolio-agent-go/internal/storage/models"
	"portfolio-agent-go/internal/tracing"
	"portfolio-agent-go/pkg/utils"
)

const (
	defaultPollingInterval = 5 * time.Second  // 默认轮询数据库中 outbox 表的间隔
	defaultBatchSize       = 10               // 每次轮询处理的消息批量大小
	maxRetryCount          = 5                // 消息发布失败的最大重试次数
	publishTimeout         = 10 * time.Second // 单条消息发布到broker的超时
)

// MessageRelay 轮询 outbox 表并将消息发布到消息代理。
// 业务数据和待发布事件在同一个数据库事务中落库，
// 由本服务异步投递，保证两者的最终一致性。
type MessageRelay struct {
	db              *gorm.DB
	publisher       *storage.RabbitMQ
	logger          zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	done            chan struct{}
	tracer          trace.Tracer
}

// NewMessageRelay 创建一个新的 MessageRelay 实例。
func NewMessageRelay(db *gorm.DB, publisher *storage.RabbitMQ, logger zerolog.Logger) *MessageRelay {
	return &MessageRelay{
		db:              db,
		publisher:       publisher,
		logger:          logger.With().Str("component", "outbox-relay").Logger(),
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		done:            make(chan struct{}),
		tracer:          otel.Tracer("outbox-relay"),
	}
}

// Start 开始消息中继的轮询过程。
func (r *MessageRelay) Start() {
	r.logger.Info().Msg("MessageRelay starting...")
	ticker := time.NewTicker(r.pollingInterval)

	go func() {
		for {
			select {
			case <-r.done:
				ticker.Stop()
				r.logger.Info().Msg("MessageRelay stopped.")
				return
			case <-ticker.C:
				if err := r.processPendingMessages(context.Background()); err != nil {
					r.logger.Error().Err(err).Msg("处理待发布消息失败")
				}
			}
		}
	}()
}

// Stop 优雅地停止消息中继服务。
func (r *MessageRelay) Stop() {
	r.logger.Info().Msg("MessageRelay stopping...")
	close(r.done)
}

// processPendingMessages 获取并处理一批来自 outbox 表的待处理消息。
func (r *MessageRelay) processPendingMessages(ctx context.Context) error {
	var messages []models.OutboxMessage

	// 启动一个数据库事务，以确保获取和更新消息的原子性。
	// 注意：这里的查询没有包含在追踪Span内，避免为空轮询创建Span。
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback() // 事务已提交时回滚是无操作的

	// 获取一批待处理的消息，并使用数据库锁来防止其他实例处理相同的消息。
	// `FOR UPDATE SKIP LOCKED` 对于水平扩展至关重要，它会跳过已被其他事务锁定的行。
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", "PENDING").
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&messages).Error

	if err != nil {
		r.logger.Error().Err(err).Msg("查询待发布消息失败")
		return err
	}

	// 没有消息时直接提交空事务返回，不产生追踪Span
	if len(messages) == 0 {
		return tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(
			attribute.Int("messaging.batch.message_count", len(messages)),
		),
	)
	defer span.End()

	r.logger.Debug().Int("count", len(messages)).Msg("获取到待发布消息")

	for _, msg := range messages {
		publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := r.publisher.PublishMessage(
			publishCtx,
			msg.TargetExchange,
			msg.TargetRoutingKey,
			[]byte(msg.Payload),
			true, // 消息持久化
		)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				tracing.RecordRabbitMQTimeout(span, msg.AggregateID, publishTimeout.String())
			} else {
				tracing.RecordRabbitMQNack(span, msg.AggregateID, err.Error())
			}
			r.logger.Warn().
				Err(err).
				Uint64("message_id", msg.ID).
				Str("aggregate_id", msg.AggregateID).
				Int("retry_count", msg.RetryCount+1).
				Msg("发布消息失败")
			msg.RetryCount++
			msg.ErrorMessage = err.Error()
			if msg.RetryCount >= maxRetryCount {
				msg.Status = "FAILED"
			}
		} else {
			msg.Status = "SENT"
			msg.ProcessedAt = utils.TimePtr(time.Now())
			msg.ErrorMessage = ""
		}

		// 在事务中更新数据库中的消息状态
		if err := tx.Save(&msg).Error; err != nil {
			r.logger.Error().Err(err).Uint64("message_id", msg.ID).Msg("更新outbox消息状态失败")
			// 更新失败则整个事务回滚，消息将在下一次轮询中被重新拾取
			return err
		}
	}

	return tx.Commit().Error
}
