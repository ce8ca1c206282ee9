package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trade-sentinel/internal/config"
)

// KillSwitch 是两态状态机：待命（Armed）与已触发（Triggered）。
// 一旦触发即保持触发，直到操作员显式 Reset；首次触发的原因与时间具有
// 粘性，触发态下的再次触发是空操作。所有变更方法在持久化完成前不会
// 返回成功，保证重启后无法悄悄清除停机状态。
// 由交易主循环单写访问，不做内部加锁。
type KillSwitch struct {
	cfg    config.KillSwitchConfig
	repo   KillSwitchRepo
	logger *zap.Logger
	now    func() time.Time

	state KillSwitchState
}

// NewKillSwitch 创建熔断开关，需随后调用 Init 完成状态恢复。
func NewKillSwitch(cfg config.KillSwitchConfig, repo KillSwitchRepo, logger *zap.Logger) (*KillSwitch, error) {
	if repo == nil {
		return nil, errors.New("risk: 熔断状态仓库不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &KillSwitch{
		cfg:    cfg,
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Init 从仓库恢复状态；不存在时写入默认的待命状态。
func (k *KillSwitch) Init(ctx context.Context) error {
	loaded, err := k.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("risk: 加载熔断状态失败: %w", err)
	}

	if loaded == nil {
		k.state = KillSwitchState{}
		if err := k.persist(ctx); err != nil {
			return err
		}
		k.logger.Info("熔断开关初始化为待命状态")
		return nil
	}

	k.state = *loaded
	if k.state.Triggered {
		k.logger.Warn("熔断开关恢复为已触发状态，交易保持停止",
			zap.String("reason", k.state.Reason),
			zap.Time("triggered_at", k.state.TriggeredAt),
		)
	} else {
		k.logger.Info("熔断开关恢复为待命状态",
			zap.Int("consecutive_losses", k.state.ConsecutiveLosses),
			zap.Int("spread_violations", len(k.state.SpreadViolations)),
		)
	}

	return nil
}

// IsTriggered 返回开关是否处于触发态。
func (k *KillSwitch) IsTriggered() bool {
	return k.state.Triggered
}

// State 返回当前状态的副本。
func (k *KillSwitch) State() KillSwitchState {
	state := k.state
	state.SpreadViolations = append([]time.Time(nil), k.state.SpreadViolations...)
	return state
}

// RecordTradeResult 记录一笔交易胜负并评估连败阈值。
// 一次胜利立即清零连败计数，哪怕处于连败中段。
// 返回值表示本次调用是否让开关从待命转入触发；已触发态下恒为 false，
// 当前触发状态请查询 IsTriggered。
func (k *KillSwitch) RecordTradeResult(ctx context.Context, won bool) (bool, error) {
	if won {
		k.state.ConsecutiveLosses = 0
		if err := k.persist(ctx); err != nil {
			return false, err
		}
		return false, nil
	}

	tripped := false
	k.state.ConsecutiveLosses++
	if k.state.ConsecutiveLosses >= k.cfg.MaxConsecutiveLosses {
		tripped = k.trigger(fmt.Sprintf("连续亏损 %d 次达到上限 %d",
			k.state.ConsecutiveLosses, k.cfg.MaxConsecutiveLosses))
	}

	if err := k.persist(ctx); err != nil {
		return tripped, err
	}
	return tripped, nil
}

// CheckDrawdown 纯粹地评估回撤比例，不维护任何历史。
// 峰值由调用方跟踪。返回值语义同 RecordTradeResult：仅首次转入触发时为 true。
func (k *KillSwitch) CheckDrawdown(ctx context.Context, current, peak float64) (bool, error) {
	if peak <= 0 {
		return false, nil
	}

	drawdownPct := (peak - current) / peak * 100
	if drawdownPct < k.cfg.MaxDrawdownPct {
		return false, nil
	}

	tripped := k.trigger(fmt.Sprintf("回撤 %.2f%% 达到上限 %.2f%%", drawdownPct, k.cfg.MaxDrawdownPct))
	if tripped {
		if err := k.persist(ctx); err != nil {
			return tripped, err
		}
	}
	return tripped, nil
}

// RecordSpreadViolation 追加一次价差违规并在滑动窗口内评估次数。
// 每次读取前先剪除窗口外的旧记录，避免无界增长。
// 返回值语义同 RecordTradeResult：仅首次转入触发时为 true。
func (k *KillSwitch) RecordSpreadViolation(ctx context.Context) (bool, error) {
	now := k.now()
	k.state.SpreadViolations = append(k.state.SpreadViolations, now)
	k.pruneViolations(now)

	tripped := false
	if len(k.state.SpreadViolations) >= k.cfg.SpreadViolationsLimit {
		tripped = k.trigger(fmt.Sprintf("%s 内价差违规 %d 次达到上限 %d",
			k.cfg.SpreadViolationsWindow, len(k.state.SpreadViolations), k.cfg.SpreadViolationsLimit))
	}

	if err := k.persist(ctx); err != nil {
		return tripped, err
	}
	return tripped, nil
}

// CheckAPIErrors 将外部统计的API错误数与阈值比较。
func (k *KillSwitch) CheckAPIErrors(ctx context.Context, count int) (bool, error) {
	k.state.APIErrors = count
	tripped := false
	if count >= k.cfg.APIErrorThreshold {
		tripped = k.trigger(fmt.Sprintf("API 错误 %d 次达到上限 %d", count, k.cfg.APIErrorThreshold))
	}

	if err := k.persist(ctx); err != nil {
		return tripped, err
	}
	return tripped, nil
}

// Trigger 显式触发熔断。已触发时为空操作。
func (k *KillSwitch) Trigger(ctx context.Context, reason string) error {
	if k.state.Triggered {
		return nil
	}
	k.trigger(reason)
	return k.persist(ctx)
}

// Reset 由操作员显式复位：清除原因、触发时间、连败计数与违规窗口。
func (k *KillSwitch) Reset(ctx context.Context) error {
	k.state = KillSwitchState{}
	if err := k.persist(ctx); err != nil {
		return err
	}
	k.logger.Warn("熔断开关已人工复位")
	return nil
}

// trigger 执行待命到触发的转换，返回是否发生了转换。
func (k *KillSwitch) trigger(reason string) bool {
	if k.state.Triggered {
		return false
	}
	k.state.Triggered = true
	k.state.Reason = reason
	k.state.TriggeredAt = k.now()

	k.logger.Error("熔断开关触发，停止全部新交易",
		zap.String("reason", reason),
		zap.Time("triggered_at", k.state.TriggeredAt),
	)
	return true
}

func (k *KillSwitch) pruneViolations(now time.Time) {
	cutoff := now.Add(-k.cfg.SpreadViolationsWindow)
	kept := k.state.SpreadViolations[:0]
	for _, ts := range k.state.SpreadViolations {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	k.state.SpreadViolations = kept
}

func (k *KillSwitch) persist(ctx context.Context) error {
	if err := k.repo.Save(ctx, k.state); err != nil {
		return fmt.Errorf("risk: 持久化熔断状态失败: %w", err)
	}
	return nil
}
