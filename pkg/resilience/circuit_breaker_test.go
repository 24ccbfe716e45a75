package resilience

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// newTestBreaker 创建时间和随机数都可控的熔断器
func newTestBreaker(cfg BreakerConfig) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker("test", cfg, nil)
	current := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return current }
	cb.randFunc = func() float64 { return 1.0 } // 去掉抖动，退避取上限
	return cb, &current
}

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
}

// 阈值5：窗口内连续5次失败 CLOSED→OPEN，第6次调用不触发任何网络调用
func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{FailureThreshold: 5, FailureWindow: time.Minute})

	failN(cb, 4)
	assert.Equal(t, StateClosed, cb.State())

	failN(cb, 1)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "熔断打开时不允许发起实际调用")
	assert.Equal(t, int64(1), cb.Stats().RejectedCalls)
}

func TestCircuitBreaker_WindowExpiryResetsCount(t *testing.T) {
	cb, current := newTestBreaker(BreakerConfig{FailureThreshold: 5, FailureWindow: time.Minute})

	failN(cb, 4)
	// 窗口滑过后旧失败被淘汰，第5次失败不触发熔断
	*current = current.Add(2 * time.Minute)
	failN(cb, 1)

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb, current := newTestBreaker(BreakerConfig{
		FailureThreshold: 1,
		BaseTimeout:      2 * time.Second,
		MaxTimeout:       5 * time.Minute,
		Multiplier:       2,
	})

	failN(cb, 1)
	require.Equal(t, StateOpen, cb.State())

	*current = current.Add(cb.currentTimeout + time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, current := newTestBreaker(BreakerConfig{
		FailureThreshold: 1,
		BaseTimeout:      2 * time.Second,
		MaxTimeout:       5 * time.Minute,
		Multiplier:       2,
	})

	failN(cb, 1)
	*current = current.Add(cb.currentTimeout + time.Second)
	require.Equal(t, StateHalfOpen, cb.State())

	failN(cb, 1)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, current := newTestBreaker(BreakerConfig{
		FailureThreshold:    1,
		BaseTimeout:         2 * time.Second,
		MaxTimeout:          5 * time.Minute,
		Multiplier:          2,
		HalfOpenMaxAttempts: 2,
		SuccessThreshold:    2,
	})

	failN(cb, 1)
	*current = current.Add(cb.currentTimeout + time.Second)
	require.Equal(t, StateHalfOpen, cb.State())

	// 连续成功达到阈值后恢复关闭，退避参数归零
	require.NoError(t, cb.Execute(func() error { return nil }))
	require.NoError(t, cb.Execute(func() error { return nil }))

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.failureCount)
	assert.Equal(t, cb.cfg.BaseTimeout, cb.currentTimeout)
}

func TestCircuitBreaker_HalfOpenLimitsProbeCalls(t *testing.T) {
	cb, current := newTestBreaker(BreakerConfig{
		FailureThreshold:    1,
		BaseTimeout:         2 * time.Second,
		MaxTimeout:          5 * time.Minute,
		Multiplier:          2,
		HalfOpenMaxAttempts: 1,
		SuccessThreshold:    1,
	})

	failN(cb, 1)
	*current = current.Add(cb.currentTimeout + time.Second)
	require.Equal(t, StateHalfOpen, cb.State())

	// 首个试探调用尚未返回时配额已占满，并发到来的调用被拒绝
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

// 默认配置下熔断后必须能经半开试探恢复关闭，不会卡死在半开态
func TestCircuitBreaker_DefaultConfigRecovers(t *testing.T) {
	cb, current := newTestBreaker(DefaultBreakerConfig())

	failN(cb, cb.cfg.FailureThreshold)
	require.Equal(t, StateOpen, cb.State())

	*current = current.Add(cb.currentTimeout + time.Second)
	require.Equal(t, StateHalfOpen, cb.State())

	for i := 0; i < cb.cfg.SuccessThreshold; i++ {
		require.NoError(t, cb.Execute(func() error { return nil }))
	}
	assert.Equal(t, StateClosed, cb.State())

	called := false
	require.NoError(t, cb.Execute(func() error { called = true; return nil }))
	assert.True(t, called)
}

// 成功阈值超过半开配额时会被压到配额以内，否则恢复路径永远走不完
func TestBreakerConfig_NormalizeClampsSuccessThreshold(t *testing.T) {
	cfg := BreakerConfig{HalfOpenMaxAttempts: 1, SuccessThreshold: 3}.normalize()
	assert.Equal(t, 1, cfg.SuccessThreshold)

	cb, current := newTestBreaker(BreakerConfig{
		FailureThreshold:    1,
		BaseTimeout:         2 * time.Second,
		HalfOpenMaxAttempts: 1,
		SuccessThreshold:    3,
	})
	failN(cb, 1)
	*current = current.Add(cb.currentTimeout + time.Second)
	require.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

// 退避上限在OPEN→HALF_OPEN→OPEN循环中单调不减，直到封顶
func TestCircuitBreaker_BackoffMonotonic(t *testing.T) {
	cb, current := newTestBreaker(BreakerConfig{
		FailureThreshold: 1,
		BaseTimeout:      2 * time.Second,
		MaxTimeout:       5 * time.Minute,
		Multiplier:       2,
	})

	var timeouts []time.Duration
	failN(cb, 1) // 首次熔断
	timeouts = append(timeouts, cb.currentTimeout)

	for i := 0; i < 10; i++ {
		*current = current.Add(cb.currentTimeout + time.Second)
		require.Equal(t, StateHalfOpen, cb.State())
		failN(cb, 1) // 半开试探失败，重新熔断且退避加重
		timeouts = append(timeouts, cb.currentTimeout)
	}

	for i := 1; i < len(timeouts); i++ {
		assert.GreaterOrEqual(t, timeouts[i], timeouts[i-1],
			"第%d轮退避 %v 小于上一轮 %v", i, timeouts[i], timeouts[i-1])
		assert.LessOrEqual(t, timeouts[i], cb.cfg.MaxTimeout)
	}
	// 足够多轮后应到达封顶值
	assert.Equal(t, cb.cfg.MaxTimeout, timeouts[len(timeouts)-1])
}

// 全抖动：实际冷却时间均匀落在 (0, cap]，但不低于1秒下限
func TestCircuitBreaker_FullJitterBounds(t *testing.T) {
	for _, r := range []float64{0.0, 0.3, 0.7, 1.0} {
		cb, _ := newTestBreaker(BreakerConfig{
			FailureThreshold: 1,
			BaseTimeout:      10 * time.Second,
			MaxTimeout:       5 * time.Minute,
			Multiplier:       2,
		})
		cb.randFunc = func() float64 { return r }

		failN(cb, 1)

		capValue := time.Duration(math.Pow(2, 1) * float64(10*time.Second))
		assert.GreaterOrEqual(t, cb.currentTimeout, time.Second, "rand=%v", r)
		assert.LessOrEqual(t, cb.currentTimeout, capValue, "rand=%v", r)
	}
}

func TestForBackend_SharedPerKey(t *testing.T) {
	a := ForBackend("key-shared-test", DefaultBreakerConfig(), nil)
	b := ForBackend("key-shared-test", DefaultBreakerConfig(), nil)
	c := ForBackend("key-other-test", DefaultBreakerConfig(), nil)

	assert.Same(t, a, b, "同一后端凭证共享同一个熔断器实例")
	assert.NotSame(t, a, c)
}

func TestBreakerConfig_NormalizeFillsDefaults(t *testing.T) {
	cfg := BreakerConfig{}.normalize()
	d := DefaultBreakerConfig()

	assert.Equal(t, d.FailureThreshold, cfg.FailureThreshold)
	assert.Equal(t, d.FailureWindow, cfg.FailureWindow)
	assert.Equal(t, d.BaseTimeout, cfg.BaseTimeout)
	assert.Equal(t, d.MaxTimeout, cfg.MaxTimeout)
	assert.Equal(t, d.Multiplier, cfg.Multiplier)
}
