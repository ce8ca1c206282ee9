package advisor

import (
	"bytes"
	"fmt"
	"text/template"

	"trade-sentinel/internal/indicator"
)

const decisionTemplate = `
你是一个谨慎的加密货币量化交易员。你的任务是根据提供的技术指标，给出下一步的交易建议。

交易对: {{ .Symbol }}

决策周期指标（{{ .Decision.Timeframe }}）：
- 最新收盘价: {{ printf "%.4f" .Decision.Close }}
- 快速均线(SMA10): {{ printf "%.4f" .Decision.SMAFast }}
- 慢速均线(SMA30): {{ printf "%.4f" .Decision.SMASlow }}
- RSI(14): {{ printf "%.1f" .Decision.RSI }}
- ATR 相对值: {{ printf "%.4f" .Decision.ATR.Relative }}
- 成交量 / 20周期均量: {{ printf "%.2f" .Decision.Volume.Ratio }}

趋势周期指标（{{ .Trend.Timeframe }}）：
- 最新收盘价: {{ printf "%.4f" .Trend.Close }}
- 快速均线(SMA10): {{ printf "%.4f" .Trend.SMAFast }}
- 慢速均线(SMA30): {{ printf "%.4f" .Trend.SMASlow }}
- RSI(14): {{ printf "%.1f" .Trend.RSI }}

制定建议时请遵循：
1. 先判断趋势周期的方向，决策周期只在同向时给出信号；
2. 不确定时选择 HOLD，置信度宁低勿高；
3. 只做方向判断，仓位与风控由下游系统负责。

请严格输出唯一的 JSON 对象，格式如下：
{
  "symbol": "{{ .Symbol }}",
  "action": "BUY|SELL|HOLD",
  "confidence": 0.0-1.0,
  "reasoning": "支撑结论的关键理由"
}
`

var tmpl = template.Must(template.New("decision").Parse(decisionTemplate))

// PromptContext 用于渲染提示词。
type PromptContext struct {
	Symbol   string
	Decision indicator.Result
	Trend    indicator.Result
}

// BuildPrompt 将指标结果渲染成提示词字符串。
func BuildPrompt(symbol string, decision, trend indicator.Result) (string, error) {
	ctx := PromptContext{
		Symbol:   symbol,
		Decision: decision,
		Trend:    trend,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("渲染提示词失败: %w", err)
	}

	return buf.String(), nil
}
