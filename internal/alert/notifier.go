package alert

import (
	"context"

	"go.uber.org/zap"
)

// Level 表示告警级别。
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Notifier 抽象告警出口：熔断触发、异常行情等关键事件经此上报。
type Notifier interface {
	Notify(ctx context.Context, level Level, title, detail string) error
}

// LogNotifier 将告警写入结构化日志，是默认实现。
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 创建日志告警器。
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify 按级别选择日志等级输出告警。
func (n *LogNotifier) Notify(_ context.Context, level Level, title, detail string) error {
	fields := []zap.Field{
		zap.String("level", string(level)),
		zap.String("title", title),
		zap.String("detail", detail),
	}

	switch level {
	case LevelCritical:
		n.logger.Error("告警", fields...)
	case LevelWarning:
		n.logger.Warn("告警", fields...)
	default:
		n.logger.Info("告警", fields...)
	}
	return nil
}
