package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "sentinel"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("exchange.name", "binanceusdm")
	v.SetDefault("exchange.markets", []string{"BTC/USDT:USDT"})
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.retry.max_attempts", 3)
	v.SetDefault("exchange.retry.base_delay", "500ms")

	v.SetDefault("signal.source", SignalSourceIndicator)

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4.1")
	v.SetDefault("openai.timeout", "15s")

	v.SetDefault("risk.max_daily_loss_usd", 300)
	v.SetDefault("risk.max_open_positions", 3)
	v.SetDefault("risk.max_position_usd", 1000)
	v.SetDefault("risk.max_spread_bps", 25)
	v.SetDefault("risk.max_slippage_bps", 30)

	v.SetDefault("kill_switch.max_consecutive_losses", 5)
	v.SetDefault("kill_switch.max_drawdown_pct", 10)
	v.SetDefault("kill_switch.spread_violations_limit", 10)
	v.SetDefault("kill_switch.spread_violations_window", "15m")
	v.SetDefault("kill_switch.api_error_threshold", 20)

	v.SetDefault("circuit_breaker.max_consecutive_failures", 5)
	v.SetDefault("circuit_breaker.reset_timeout", "1m")

	v.SetDefault("anomaly.min_candles", 20)
	v.SetDefault("anomaly.volume_window", 20)
	v.SetDefault("anomaly.volume_spike_multiple", 5)
	v.SetDefault("anomaly.price_gap_pct", 2)
	v.SetDefault("anomaly.wick_body_ratio", 4)
	v.SetDefault("anomaly.spread_blowout_bps", 100)

	v.SetDefault("execution.mode", ModePaper)
	v.SetDefault("execution.slippage_bps", 5)
	v.SetDefault("execution.min_notional_usd", 10)
	v.SetDefault("execution.min_quantity", 0)

	v.SetDefault("database.path", "data/sentinel.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.port", 8686)

	v.SetDefault("scheduler.loop_interval", "1m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
