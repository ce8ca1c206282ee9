package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trade-sentinel/internal/config"
	"trade-sentinel/internal/metrics"
	"trade-sentinel/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 启动主循环，阻塞直到上下文取消。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易安全系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Exchange.Name),
		zap.Strings("markets", a.cfg.Exchange.Markets),
		zap.String("signal_source", a.cfg.Signal.Source),
		zap.String("execution_mode", a.cfg.Execution.Mode),
	)

	sink := metrics.NewSink(a.logger)

	orch, err := newOrchestrator(a.cfg, a.logger, a.store, sink)
	if err != nil {
		return err
	}

	if err = orch.Start(ctx); err != nil {
		return err
	}

	if a.cfg.Monitor.Enabled {
		if err = startMonitorServer(ctx, orch.Monitor(), sink, a.cfg.Monitor.Port, a.logger); err != nil {
			return err
		}
	}

	loopInterval := a.cfg.Scheduler.LoopInterval
	if loopInterval <= 0 {
		loopInterval = time.Minute
	}

	if err = orch.Tick(ctx); err != nil {
		a.logger.Error("首次执行失败", zap.Error(err))
	}

	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		case <-ticker.C:
			if err = orch.Tick(ctx); err != nil {
				a.logger.Error("执行调度失败", zap.Error(err))
			}
		}
	}
}
