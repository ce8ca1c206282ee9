package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// 运行模式取值。
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// 信号来源取值。
const (
	SignalSourceIndicator = "indicator"
	SignalSourceAI        = "ai"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	Signal     SignalConfig     `mapstructure:"signal"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Risk       RiskConfig       `mapstructure:"risk"`
	KillSwitch KillSwitchConfig `mapstructure:"kill_switch"`
	Breaker    BreakerConfig    `mapstructure:"circuit_breaker"`
	Anomaly    AnomalyConfig    `mapstructure:"anomaly"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	Markets    []string    `mapstructure:"markets"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	APIPass    string      `mapstructure:"api_password"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制，退避间隔随尝试次数线性增长。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

// SignalConfig 选择信号来源。
type SignalConfig struct {
	Source string `mapstructure:"source"`
}

// OpenAIConfig 描述大模型调用参数，仅在 signal.source=ai 时生效。
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RiskConfig 管理风控闸门参数。
type RiskConfig struct {
	MaxDailyLossUsd  float64 `mapstructure:"max_daily_loss_usd"`
	MaxOpenPositions int     `mapstructure:"max_open_positions"`
	MaxPositionUsd   float64 `mapstructure:"max_position_usd"`
	MaxSpreadBps     float64 `mapstructure:"max_spread_bps"`
	MaxSlippageBps   float64 `mapstructure:"max_slippage_bps"`
}

// KillSwitchConfig 管理熔断开关阈值。
type KillSwitchConfig struct {
	MaxConsecutiveLosses   int           `mapstructure:"max_consecutive_losses"`
	MaxDrawdownPct         float64       `mapstructure:"max_drawdown_pct"`
	SpreadViolationsLimit  int           `mapstructure:"spread_violations_limit"`
	SpreadViolationsWindow time.Duration `mapstructure:"spread_violations_window"`
	APIErrorThreshold      int           `mapstructure:"api_error_threshold"`
}

// BreakerConfig 管理对外调用断路器。
type BreakerConfig struct {
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	ResetTimeout           time.Duration `mapstructure:"reset_timeout"`
}

// AnomalyConfig 管理市场异常检测阈值。
type AnomalyConfig struct {
	MinCandles          int     `mapstructure:"min_candles"`
	VolumeWindow        int     `mapstructure:"volume_window"`
	VolumeSpikeMultiple float64 `mapstructure:"volume_spike_multiple"`
	PriceGapPct         float64 `mapstructure:"price_gap_pct"`
	WickBodyRatio       float64 `mapstructure:"wick_body_ratio"`
	SpreadBlowoutBps    float64 `mapstructure:"spread_blowout_bps"`
}

// ExecutionConfig 控制下单行为。
type ExecutionConfig struct {
	Mode           string  `mapstructure:"mode"`
	SlippageBps    float64 `mapstructure:"slippage_bps"`
	MinNotionalUsd float64 `mapstructure:"min_notional_usd"`
	MinQuantity    float64 `mapstructure:"min_quantity"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制监控与指标接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// SchedulerConfig 控制主循环节奏。
type SchedulerConfig struct {
	LoopInterval time.Duration `mapstructure:"loop_interval"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if len(c.Exchange.Markets) == 0 {
		err = multierr.Append(err, errors.New("exchange.markets 至少包含一个交易对"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.BaseDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.base_delay 必须为正"))
	}

	source := strings.ToLower(strings.TrimSpace(c.Signal.Source))
	if source != SignalSourceIndicator && source != SignalSourceAI {
		err = multierr.Append(err, fmt.Errorf("signal.source 取值非法: %s", c.Signal.Source))
	}
	if source == SignalSourceAI {
		if c.OpenAI.APIKey == "" {
			err = multierr.Append(err, errors.New("openai.api_key 不能为空 (signal.source=ai)"))
		}
		if c.OpenAI.Model == "" {
			err = multierr.Append(err, errors.New("openai.model 不能为空 (signal.source=ai)"))
		}
		if c.OpenAI.Timeout <= 0 {
			err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
		}
	}

	if c.Risk.MaxDailyLossUsd <= 0 {
		err = multierr.Append(err, errors.New("risk.max_daily_loss_usd 必须大于0"))
	}
	if c.Risk.MaxOpenPositions <= 0 {
		err = multierr.Append(err, errors.New("risk.max_open_positions 必须大于0"))
	}
	if c.Risk.MaxPositionUsd <= 0 {
		err = multierr.Append(err, errors.New("risk.max_position_usd 必须大于0"))
	}
	if c.Risk.MaxSpreadBps <= 0 {
		err = multierr.Append(err, errors.New("risk.max_spread_bps 必须大于0"))
	}
	if c.Risk.MaxSlippageBps <= 0 {
		err = multierr.Append(err, errors.New("risk.max_slippage_bps 必须大于0"))
	}

	if c.KillSwitch.MaxConsecutiveLosses <= 0 {
		err = multierr.Append(err, errors.New("kill_switch.max_consecutive_losses 必须大于0"))
	}
	if c.KillSwitch.MaxDrawdownPct <= 0 || c.KillSwitch.MaxDrawdownPct > 100 {
		err = multierr.Append(err, errors.New("kill_switch.max_drawdown_pct 必须位于(0,100]"))
	}
	if c.KillSwitch.SpreadViolationsLimit <= 0 {
		err = multierr.Append(err, errors.New("kill_switch.spread_violations_limit 必须大于0"))
	}
	if c.KillSwitch.SpreadViolationsWindow <= 0 {
		err = multierr.Append(err, errors.New("kill_switch.spread_violations_window 必须大于0"))
	}
	if c.KillSwitch.APIErrorThreshold <= 0 {
		err = multierr.Append(err, errors.New("kill_switch.api_error_threshold 必须大于0"))
	}

	if c.Breaker.MaxConsecutiveFailures <= 0 {
		err = multierr.Append(err, errors.New("circuit_breaker.max_consecutive_failures 必须大于0"))
	}
	if c.Breaker.ResetTimeout <= 0 {
		err = multierr.Append(err, errors.New("circuit_breaker.reset_timeout 必须大于0"))
	}

	if c.Anomaly.MinCandles <= 1 {
		err = multierr.Append(err, errors.New("anomaly.min_candles 必须大于1"))
	}
	if c.Anomaly.VolumeWindow <= 0 {
		err = multierr.Append(err, errors.New("anomaly.volume_window 必须大于0"))
	}
	if c.Anomaly.VolumeSpikeMultiple <= 1 {
		err = multierr.Append(err, errors.New("anomaly.volume_spike_multiple 必须大于1"))
	}
	if c.Anomaly.PriceGapPct <= 0 {
		err = multierr.Append(err, errors.New("anomaly.price_gap_pct 必须大于0"))
	}
	if c.Anomaly.WickBodyRatio <= 1 {
		err = multierr.Append(err, errors.New("anomaly.wick_body_ratio 必须大于1"))
	}
	if c.Anomaly.SpreadBlowoutBps <= 0 {
		err = multierr.Append(err, errors.New("anomaly.spread_blowout_bps 必须大于0"))
	}

	mode := strings.ToLower(strings.TrimSpace(c.Execution.Mode))
	if mode != ModePaper && mode != ModeLive {
		err = multierr.Append(err, fmt.Errorf("execution.mode 取值非法: %s", c.Execution.Mode))
	}
	if c.Execution.SlippageBps < 0 || c.Execution.SlippageBps > 2000 {
		err = multierr.Append(err, errors.New("execution.slippage_bps 应位于[0,2000]"))
	}
	if c.Execution.MinNotionalUsd <= 0 {
		err = multierr.Append(err, errors.New("execution.min_notional_usd 必须大于0"))
	}
	if c.Execution.MinQuantity < 0 {
		err = multierr.Append(err, errors.New("execution.min_quantity 不能为负"))
	}

	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}

	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于[1,65535]"))
	}

	if c.Scheduler.LoopInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.loop_interval 必须大于0"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
