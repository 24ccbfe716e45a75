package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// GuardedLLMModel 是LLM模型的弹性代理：
// 令牌桶限流 + 熔断保护 + 请求级超时 + 瞬时错误重试。
// 系统内所有LLM调用都经过该代理，屏蔽外部依赖的级联故障。
type GuardedLLMModel struct {
	original    model.ToolCallingChatModel
	breaker     *CircuitBreaker
	rateLimiter *TokenBucket
	callTimeout time.Duration
	maxRetries  int
	retryWait   time.Duration
	logger      *zerolog.Logger
}

// GuardOption 弹性代理的配置选项
type GuardOption func(*GuardedLLMModel)

// WithCallTimeout 设置单次LLM调用的超时时间
func WithCallTimeout(d time.Duration) GuardOption {
	return func(g *GuardedLLMModel) {
		if d > 0 {
			g.callTimeout = d
		}
	}
}

// WithRetryPolicy 设置瞬时错误的重试策略
func WithRetryPolicy(maxRetries int, wait time.Duration) GuardOption {
	return func(g *GuardedLLMModel) {
		if maxRetries >= 0 {
			g.maxRetries = maxRetries
		}
		if wait > 0 {
			g.retryWait = wait
		}
	}
}

// NewGuardedLLMModel 创建弹性LLM代理。
// breakerKey 标识后端凭证，同一凭证的代理共享同一个熔断器。
func NewGuardedLLMModel(original model.ToolCallingChatModel, breakerKey string, qpm int, breakerCfg BreakerConfig, logger *zerolog.Logger, options ...GuardOption) *GuardedLLMModel {
	if qpm <= 0 {
		qpm = 30 // 默认QPM
	}

	g := &GuardedLLMModel{
		original:    original,
		breaker:     ForBackend(breakerKey, breakerCfg, logger),
		rateLimiter: NewTokenBucket(qpm, qpm/2),
		callTimeout: 60 * time.Second,
		maxRetries:  2,
		retryWait:   2 * time.Second,
		logger:      logger,
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Breaker 返回底层熔断器，供编排器在重试前查询状态
func (g *GuardedLLMModel) Breaker() *CircuitBreaker {
	return g.breaker
}

// Generate 代理Generate方法，叠加限流、熔断与重试
func (g *GuardedLLMModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	var response *schema.Message
	var err error

	wait := g.retryWait
	for retry := 0; retry <= g.maxRetries; retry++ {
		if retry > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("上下文已取消: %w", ctx.Err())
			case <-time.After(wait):
				wait *= 2 // 指数退避
			}
			if g.logger != nil {
				g.logger.Debug().Int("retry", retry).Msg("重试LLM调用")
			}
		}

		err = g.callOnce(ctx, messages, &response, options...)
		if err == nil {
			return response, nil
		}

		// 熔断拒绝不重试，等冷却后由上层的顺序重试轮次处理
		if errors.Is(err, ErrCircuitOpen) {
			return nil, err
		}
		if !IsRetryableError(err) || retry >= g.maxRetries {
			return nil, err
		}
	}

	return nil, err
}

// callOnce 单次受保护的调用：限流等待 → 熔断放行 → 带超时的真实调用
func (g *GuardedLLMModel) callOnce(ctx context.Context, messages []*schema.Message, response **schema.Message, options ...model.Option) error {
	if err := g.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("等待限流令牌失败: %w", err)
	}

	return g.breaker.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		defer cancel()

		resp, genErr := g.original.Generate(callCtx, messages, options...)
		if genErr != nil {
			return genErr
		}
		*response = resp
		return nil
	})
}

// Stream 代理Stream方法，叠加限流与熔断（不做自动重试）
func (g *GuardedLLMModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := g.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("等待限流令牌失败: %w", err)
	}

	var stream *schema.StreamReader[*schema.Message]
	err := g.breaker.Execute(func() error {
		var streamErr error
		stream, streamErr = g.original.Stream(ctx, messages, options...)
		return streamErr
	})
	return stream, err
}

// WithTools 代理WithTools方法，新模型沿用同一熔断器与限流器
func (g *GuardedLLMModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	newModel, err := g.original.WithTools(tools)
	if err != nil {
		return nil, err
	}

	return &GuardedLLMModel{
		original:    newModel,
		breaker:     g.breaker,
		rateLimiter: g.rateLimiter,
		callTimeout: g.callTimeout,
		maxRetries:  g.maxRetries,
		retryWait:   g.retryWait,
		logger:      g.logger,
	}, nil
}

var _ model.ToolCallingChatModel = (*GuardedLLMModel)(nil)
