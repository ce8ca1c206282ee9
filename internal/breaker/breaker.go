// Package breaker 提供对外调用的断路器。与持久化的熔断开关不同，
// 断路器状态只存在于进程内，重启后从零开始计数。
package breaker

import (
	"time"

	"go.uber.org/zap"

	"trade-sentinel/internal/config"
)

// CircuitBreaker 记录连续失败次数，超过阈值后短路对外调用。
// 由交易主循环单写单读，不做内部加锁。
type CircuitBreaker struct {
	cfg    config.BreakerConfig
	logger *zap.Logger

	failureCount    int
	lastFailureTime time.Time
}

// New 创建断路器。
func New(cfg config.BreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = time.Minute
	}
	return &CircuitBreaker{
		cfg:    cfg,
		logger: logger,
	}
}

// RecordFailure 记录一次失败并刷新失败时间戳。
func (b *CircuitBreaker) RecordFailure() {
	b.failureCount++
	b.lastFailureTime = time.Now().UTC()

	if b.failureCount == b.cfg.MaxConsecutiveFailures {
		b.logger.Warn("断路器已打开",
			zap.Int("failure_count", b.failureCount),
			zap.Duration("reset_timeout", b.cfg.ResetTimeout),
		)
	}
}

// RecordSuccess 清零失败计数。
func (b *CircuitBreaker) RecordSuccess() {
	if b.failureCount >= b.cfg.MaxConsecutiveFailures {
		b.logger.Info("断路器恢复闭合", zap.Int("previous_failures", b.failureCount))
	}
	b.failureCount = 0
}

// IsOpen 判断断路器是否处于打开状态。
// 距离最近一次失败超过复位窗口时会先自动清零，使得故障停止后
// 无需显式成功调用也能恢复。
func (b *CircuitBreaker) IsOpen(now time.Time) bool {
	if b.failureCount > 0 && now.Sub(b.lastFailureTime) > b.cfg.ResetTimeout {
		b.logger.Info("断路器超时自动复位", zap.Int("previous_failures", b.failureCount))
		b.failureCount = 0
	}
	return b.failureCount >= b.cfg.MaxConsecutiveFailures
}

// FailureCount 返回当前连续失败次数。
func (b *CircuitBreaker) FailureCount() int {
	return b.failureCount
}
