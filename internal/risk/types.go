package risk

import (
	"context"
	"time"
)

// BlockReason 标识触发拦截的守卫。
type BlockReason string

const (
	BlockDailyLoss     BlockReason = "max_daily_loss"
	BlockOpenPositions BlockReason = "max_open_positions"
	BlockPositionUsd   BlockReason = "max_position_usd"
	BlockSpread        BlockReason = "max_spread"
	BlockSlippage      BlockReason = "max_slippage"
	BlockKillSwitch    BlockReason = "kill_switch"
)

// Decision 为一次风控评估的结果。每个周期重新计算，只记日志不落库。
type Decision struct {
	Allowed   bool        `json:"allowed"`
	Reason    string      `json:"reason"`
	BlockedBy BlockReason `json:"blocked_by,omitempty"`
}

// KillSwitchState 为熔断开关的持久化状态，进程重启后必须完整恢复。
type KillSwitchState struct {
	Triggered         bool        `json:"triggered"`
	Reason            string      `json:"reason"`
	TriggeredAt       time.Time   `json:"triggered_at"`
	ConsecutiveLosses int         `json:"consecutive_losses"`
	SpreadViolations  []time.Time `json:"spread_violations"`
	APIErrors         int         `json:"api_errors"`
}

// KillSwitchRepo 抽象熔断状态的持久化：加载已有状态或得到 nil，
// 保存则整行覆盖。状态机逻辑不依赖任何具体存储实现。
type KillSwitchRepo interface {
	Load(ctx context.Context) (*KillSwitchState, error)
	Save(ctx context.Context, state KillSwitchState) error
}
