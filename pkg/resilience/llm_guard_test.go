package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubModel 可编程的模拟LLM模型
type stubModel struct {
	mu       sync.Mutex
	calls    int
	failures int // 前N次调用失败
	err      error
}

func (s *stubModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return nil, s.err
	}
	return &schema.Message{Role: schema.Assistant, Content: "ok"}, nil
}

func (s *stubModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stub不支持流式")
}

func (s *stubModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return s, nil
}

func (s *stubModel) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var _ model.ToolCallingChatModel = (*stubModel)(nil)

func userMessages() []*schema.Message {
	return []*schema.Message{{Role: schema.User, Content: "resume text"}}
}

func TestGuardedLLMModel_PassThrough(t *testing.T) {
	stub := &stubModel{}
	guard := NewGuardedLLMModel(stub, "guard-test-pass", 6000, DefaultBreakerConfig(), nil)

	resp, err := guard.Generate(context.Background(), userMessages())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 1, stub.callCount())
}

func TestGuardedLLMModel_RetriesTransientError(t *testing.T) {
	// 前2次超时，第3次成功
	stub := &stubModel{failures: 2, err: errors.New("request timeout")}
	guard := NewGuardedLLMModel(stub, "guard-test-retry", 6000, DefaultBreakerConfig(), nil,
		WithRetryPolicy(2, time.Millisecond))

	resp, err := guard.Generate(context.Background(), userMessages())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, stub.callCount())
}

func TestGuardedLLMModel_NonRetryableFailsFast(t *testing.T) {
	stub := &stubModel{failures: 10, err: errors.New("invalid api key")}
	guard := NewGuardedLLMModel(stub, "guard-test-fatal", 6000, DefaultBreakerConfig(), nil,
		WithRetryPolicy(2, time.Millisecond))

	_, err := guard.Generate(context.Background(), userMessages())
	require.Error(t, err)
	// 非瞬时错误不重试
	assert.Equal(t, 1, stub.callCount())
}

func TestGuardedLLMModel_CircuitOpenNotRetried(t *testing.T) {
	stub := &stubModel{failures: 100, err: errors.New("request timeout")}
	guard := NewGuardedLLMModel(stub, "guard-test-open", 6000,
		BreakerConfig{FailureThreshold: 1, FailureWindow: time.Minute}, nil,
		WithRetryPolicy(2, time.Millisecond))

	// 第一轮：真实调用失败并触发熔断（等到重试预算耗尽或熔断拒绝）
	_, err := guard.Generate(context.Background(), userMessages())
	require.Error(t, err)

	callsBefore := stub.callCount()

	// 熔断已打开：立即返回 ErrCircuitOpen，不触发真实调用也不重试
	_, err = guard.Generate(context.Background(), userMessages())
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, callsBefore, stub.callCount())
}

func TestGuardedLLMModel_WithToolsSharesBreaker(t *testing.T) {
	stub := &stubModel{}
	guard := NewGuardedLLMModel(stub, "guard-test-tools", 6000, DefaultBreakerConfig(), nil)

	derived, err := guard.WithTools(nil)
	require.NoError(t, err)

	derivedGuard, ok := derived.(*GuardedLLMModel)
	require.True(t, ok)
	assert.Same(t, guard.Breaker(), derivedGuard.Breaker())
}

func TestTokenBucket_AllowWithinCapacity(t *testing.T) {
	tb := NewTokenBucket(60, 2)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	// 容量耗尽后立即拒绝
	assert.False(t, tb.Allow())
}

func TestTokenBucket_WaitRespectsContext(t *testing.T) {
	tb := NewTokenBucket(1, 1) // 每分钟1个，补充极慢
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenBucket_WaitSucceedsWhenTokenAvailable(t *testing.T) {
	tb := NewTokenBucket(6000, 10)
	assert.NoError(t, tb.Wait(context.Background()))
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("request timeout"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("connection reset by peer"), true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("服务器繁忙，请稍后再试"), true},
		{errors.New("invalid api key"), false},
		{ErrCircuitOpen, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryableError(tt.err), "err=%v", tt.err)
	}
}
