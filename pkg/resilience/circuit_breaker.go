package resilience

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrCircuitOpen 熔断器处于打开状态时直接返回的错误。
// 调用方（编排器）应将其视为普通的章节提取失败，参与重试，而非致命错误。
var ErrCircuitOpen = errors.New("熔断器已打开，拒绝调用外部依赖")

// CircuitState 熔断器状态
type CircuitState int32

const (
	// StateClosed 关闭状态（初始），调用正常放行
	StateClosed CircuitState = iota
	// StateOpen 打开状态，所有调用立即失败，不发起网络请求
	StateOpen
	// StateHalfOpen 半开状态，放行少量试探调用
	StateHalfOpen
)

// String 返回状态的可读名称
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	// FailureThreshold 窗口内失败次数达到该值后熔断
	FailureThreshold int `yaml:"failure_threshold"`
	// FailureWindow 失败计数的滑动窗口长度
	FailureWindow time.Duration `yaml:"failure_window"`
	// BaseTimeout 熔断后的基础冷却时间
	BaseTimeout time.Duration `yaml:"base_timeout"`
	// MaxTimeout 冷却时间上限
	MaxTimeout time.Duration `yaml:"max_timeout"`
	// Multiplier 指数退避倍率
	Multiplier float64 `yaml:"multiplier"`
	// HalfOpenMaxAttempts 半开状态最多放行的试探调用数
	HalfOpenMaxAttempts int `yaml:"half_open_max_attempts"`
	// SuccessThreshold 半开状态下连续成功多少次后恢复关闭
	SuccessThreshold int `yaml:"success_threshold"`
}

// DefaultBreakerConfig 返回默认熔断配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:    5,
		FailureWindow:       60 * time.Second,
		BaseTimeout:         2 * time.Second,
		MaxTimeout:          5 * time.Minute,
		Multiplier:          2.0,
		HalfOpenMaxAttempts: 2,
		SuccessThreshold:    2,
	}
}

// normalize 填充零值配置项
func (c BreakerConfig) normalize() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = d.FailureWindow
	}
	if c.BaseTimeout <= 0 {
		c.BaseTimeout = d.BaseTimeout
	}
	if c.MaxTimeout <= 0 {
		c.MaxTimeout = d.MaxTimeout
	}
	if c.Multiplier <= 1.0 {
		c.Multiplier = d.Multiplier
	}
	if c.HalfOpenMaxAttempts <= 0 {
		c.HalfOpenMaxAttempts = d.HalfOpenMaxAttempts
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	// 半开试探额度不足以攒够连续成功数时，熔断器会卡死在半开态，
	// 把成功阈值压到额度以内保证一定能走完恢复路径
	if c.SuccessThreshold > c.HalfOpenMaxAttempts {
		c.SuccessThreshold = c.HalfOpenMaxAttempts
	}
	return c
}

// BreakerStats 熔断器统计信息，用于可观测性。
// 生命周期累计值不随状态恢复而清零，连续计数在回到关闭状态时清零。
type BreakerStats struct {
	TotalCalls           int64
	SuccessCalls         int64
	FailedCalls          int64
	RejectedCalls        int64
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
	State                CircuitState
	FailureCount         int
	CurrentTimeout       time.Duration
}

// CircuitBreaker 保护外部LLM依赖的熔断器。
// 与令牌桶限流器一样以互斥锁串行化状态读写，
// 所有并发章节任务共享同一实例（按后端凭证区分，进程级）。
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	mu             sync.Mutex
	state          CircuitState
	failureTimes   []time.Time   // 窗口内的失败时间戳
	failureCount   int           // 熔断计数（用于指数退避，恢复关闭后清零）
	currentTimeout time.Duration // 本轮OPEN状态的冷却时间（含抖动）
	openedAt       time.Time
	halfOpenCalls  int // 半开状态已放行的试探调用数
	stats          BreakerStats

	logger *zerolog.Logger

	// 测试注入点
	now      func() time.Time
	randFunc func() float64
}

// NewCircuitBreaker 创建熔断器。name 用于日志区分不同后端。
func NewCircuitBreaker(name string, cfg BreakerConfig, logger *zerolog.Logger) *CircuitBreaker {
	cfg = cfg.normalize()
	cb := &CircuitBreaker{
		name:           name,
		cfg:            cfg,
		state:          StateClosed,
		currentTimeout: cfg.BaseTimeout,
		logger:         logger,
		now:            time.Now,
		randFunc:       rand.Float64,
	}
	return cb
}

// Execute 在熔断保护下执行调用。
// 熔断打开时立即返回 ErrCircuitOpen，不触发任何网络调用。
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn()
	cb.afterCall(err)
	return err
}

// State 返回当前状态（会先推进OPEN→HALF_OPEN的超时迁移）
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advanceLocked()
	return cb.state
}

// Stats 返回统计信息快照
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := cb.stats
	s.State = cb.state
	s.FailureCount = cb.failureCount
	s.CurrentTimeout = cb.currentTimeout
	return s
}

// beforeCall 检查是否放行本次调用
func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advanceLocked()

	switch cb.state {
	case StateOpen:
		cb.stats.RejectedCalls++
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.cfg.HalfOpenMaxAttempts {
			cb.stats.RejectedCalls++
			return ErrCircuitOpen
		}
		cb.halfOpenCalls++
	}

	cb.stats.TotalCalls++
	return nil
}

// afterCall 根据调用结果推进状态机
func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.onSuccessLocked()
	} else {
		cb.onFailureLocked()
	}
}

// advanceLocked 处理OPEN状态的超时迁移，调用方必须持有锁
func (cb *CircuitBreaker) advanceLocked() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.currentTimeout {
		cb.transitionLocked(StateHalfOpen, "冷却时间结束，进入半开试探")
		cb.halfOpenCalls = 0
	}
}

func (cb *CircuitBreaker) onSuccessLocked() {
	cb.stats.SuccessCalls++
	cb.stats.ConsecutiveSuccesses++
	cb.stats.ConsecutiveFailures = 0

	if cb.state == StateHalfOpen && cb.stats.ConsecutiveSuccesses >= cb.cfg.SuccessThreshold {
		// 试探成功，恢复关闭，退避参数归零
		cb.failureCount = 0
		cb.currentTimeout = cb.cfg.BaseTimeout
		cb.failureTimes = cb.failureTimes[:0]
		cb.transitionLocked(StateClosed, "半开试探连续成功，恢复关闭")
		// 仅重置连续计数，生命周期累计保留
		cb.stats.ConsecutiveSuccesses = 0
		cb.stats.ConsecutiveFailures = 0
	}
}

func (cb *CircuitBreaker) onFailureLocked() {
	cb.stats.FailedCalls++
	cb.stats.ConsecutiveFailures++
	cb.stats.ConsecutiveSuccesses = 0

	now := cb.now()

	switch cb.state {
	case StateHalfOpen:
		// 半开状态任何一次失败立即重新熔断，并加重退避
		cb.failureCount++
		cb.openLocked(now, "半开试探失败，重新熔断")
	case StateClosed:
		// 滑动窗口失败计数
		cb.failureTimes = append(cb.failureTimes, now)
		cb.pruneWindowLocked(now)
		if len(cb.failureTimes) >= cb.cfg.FailureThreshold {
			cb.failureCount++
			cb.openLocked(now, "窗口内失败次数达到阈值")
		}
	}
}

// pruneWindowLocked 淘汰窗口外的失败记录
func (cb *CircuitBreaker) pruneWindowLocked(now time.Time) {
	cutoff := now.Add(-cb.cfg.FailureWindow)
	kept := cb.failureTimes[:0]
	for _, t := range cb.failureTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cb.failureTimes = kept
}

// openLocked 进入OPEN状态并计算带全抖动的冷却时间:
// timeout = uniform(0, min(maxTimeout, base * multiplier^failureCount))，下限1秒
func (cb *CircuitBreaker) openLocked(now time.Time, cause string) {
	cap := float64(cb.cfg.BaseTimeout) * math.Pow(cb.cfg.Multiplier, float64(cb.failureCount))
	if cap > float64(cb.cfg.MaxTimeout) {
		cap = float64(cb.cfg.MaxTimeout)
	}
	timeout := time.Duration(cb.randFunc() * cap)
	if timeout < time.Second {
		timeout = time.Second
	}

	cb.currentTimeout = timeout
	cb.openedAt = now
	cb.failureTimes = cb.failureTimes[:0]
	cb.transitionLocked(StateOpen, cause)
}

// transitionLocked 记录状态迁移日志，调用方必须持有锁
func (cb *CircuitBreaker) transitionLocked(to CircuitState, cause string) {
	from := cb.state
	cb.state = to
	if cb.logger != nil {
		cb.logger.Warn().
			Str("breaker", cb.name).
			Str("from", from.String()).
			Str("to", to.String()).
			Str("cause", cause).
			Dur("current_timeout", cb.currentTimeout).
			Int("failure_count", cb.failureCount).
			Msg("熔断器状态迁移")
	}
}

// --- 按后端凭证区分的熔断器注册表（进程级共享） ---

var (
	registryMu sync.Mutex
	registry   = make(map[string]*CircuitBreaker)
)

// ForBackend 返回指定后端凭证标识对应的熔断器，不存在则创建。
// 同一后端的所有并发提取请求共享同一个熔断器实例。
func ForBackend(key string, cfg BreakerConfig, logger *zerolog.Logger) *CircuitBreaker {
	registryMu.Lock()
	defer registryMu.Unlock()

	if cb, ok := registry[key]; ok {
		return cb
	}
	cb := NewCircuitBreaker(key, cfg, logger)
	registry[key] = cb
	return cb
}
