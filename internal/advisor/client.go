package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"trade-sentinel/internal/config"
	"trade-sentinel/internal/exchange"
	"trade-sentinel/internal/indicator"
	"trade-sentinel/internal/strategy"
)

// Advisor 以大模型为信号源，实现 strategy.Producer。
type Advisor struct {
	cfg        config.OpenAIConfig
	calculator *indicator.Calculator
	logger     *zap.Logger
	sdk        *openai.Client
	now        func() time.Time
}

// New 使用给定配置创建 AI 顾问。
func New(cfg config.OpenAIConfig, calculator *indicator.Calculator, logger *zap.Logger) (*Advisor, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api_key 不能为空")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai model 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &Advisor{
		cfg:        cfg,
		calculator: calculator,
		logger:     logger,
		sdk:        openai.NewClientWithConfig(sdkConfig),
		now:        time.Now,
	}, nil
}

// Name 返回信号源标识。
func (a *Advisor) Name() string {
	return "ai"
}

// Produce 将双周期指标渲染进提示词，请求模型并解析建议。
func (a *Advisor) Produce(ctx context.Context, snapshot exchange.MarketSnapshot) (strategy.Signal, error) {
	decision, err := a.calculator.Compute(exchange.TimeframeDecision, snapshot.Candles)
	if err != nil {
		return strategy.Signal{}, fmt.Errorf("计算决策周期指标失败: %w", err)
	}
	trend, err := a.calculator.Compute(exchange.TimeframeTrend, snapshot.TrendCandle)
	if err != nil {
		return strategy.Signal{}, fmt.Errorf("计算趋势周期指标失败: %w", err)
	}

	prompt, err := BuildPrompt(snapshot.Symbol, decision, trend)
	if err != nil {
		return strategy.Signal{}, err
	}

	response, err := a.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0,
	})
	if err != nil {
		a.logger.Error("调用OpenAI失败", zap.Error(err))
		return strategy.Signal{}, fmt.Errorf("调用OpenAI失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return strategy.Signal{}, errors.New("OpenAI 返回结果为空")
	}

	rawContent := strings.TrimSpace(response.Choices[0].Message.Content)
	if rawContent == "" {
		return strategy.Signal{}, errors.New("OpenAI 返回内容为空")
	}

	verdict, err := parseDecision(rawContent)
	if err != nil {
		a.logger.Error("解析模型建议失败",
			zap.Error(err),
			zap.String("raw_content", rawContent),
		)
		return strategy.Signal{}, err
	}

	if err := verdict.Validate(); err != nil {
		return strategy.Signal{}, err
	}

	a.logger.Info("AI 建议生成成功",
		zap.String("symbol", verdict.Symbol),
		zap.String("action", verdict.Action),
		zap.Float64("confidence", verdict.Confidence),
	)

	return strategy.Signal{
		Symbol:      snapshot.Symbol,
		Action:      strategy.Action(strings.ToUpper(strings.TrimSpace(verdict.Action))),
		Confidence:  verdict.Confidence,
		Reason:      verdict.Reasoning,
		GeneratedAt: a.now().UTC(),
	}, nil
}

func parseDecision(content string) (Decision, error) {
	jsonPayload, err := extractJSON(content)
	if err != nil {
		return Decision{}, err
	}

	var decision Decision
	if err = json.Unmarshal(jsonPayload, &decision); err != nil {
		return Decision{}, fmt.Errorf("解析建议JSON失败: %w", err)
	}

	return decision, nil
}

func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("模型输出未找到有效JSON: %s", content)
	}

	return []byte(content[start : end+1]), nil
}
