package monitor

import (
	"time"

	"trade-sentinel/internal/anomaly"
	"trade-sentinel/internal/execution"
	"trade-sentinel/internal/position"
	"trade-sentinel/internal/risk"
	"trade-sentinel/internal/strategy"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventSignal       EventType = "signal"
	EventRiskDecision EventType = "risk_decision"
	EventKillSwitch   EventType = "kill_switch"
	EventAnomaly      EventType = "anomaly"
	EventOrder        EventType = "order"
	EventAccount      EventType = "account"
	EventError        EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SignalPayload 记录策略信号。
type SignalPayload struct {
	Signal strategy.Signal `json:"signal"`
}

// RiskDecisionPayload 记录风控评估结果。
type RiskDecisionPayload struct {
	Symbol   string        `json:"symbol"`
	Decision risk.Decision `json:"decision"`
}

// KillSwitchPayload 记录熔断状态变化。
type KillSwitchPayload struct {
	State risk.KillSwitchState `json:"state"`
}

// AnomalyPayload 记录检测到的异常行情。
type AnomalyPayload struct {
	Anomalies []anomaly.Anomaly `json:"anomalies"`
}

// OrderPayload 记录订单提交结果。
type OrderPayload struct {
	Order execution.Order `json:"order"`
}

// AccountPayload 追踪账户快照。
type AccountPayload struct {
	Snapshot position.Snapshot `json:"snapshot"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
