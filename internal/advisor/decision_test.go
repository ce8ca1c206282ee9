package advisor

import (
	"strings"
	"testing"
)

func validDecision() Decision {
	return Decision{
		Symbol:     "BTC/USDT",
		Action:     "BUY",
		Confidence: 0.7,
		Reasoning:  "趋势与动量同向",
	}
}

func TestDecisionValidate(t *testing.T) {
	if err := validDecision().Validate(); err != nil {
		t.Fatalf("valid decision rejected: %v", err)
	}

	d := validDecision()
	d.Action = "SHORT"
	if err := d.Validate(); err == nil {
		t.Fatal("unknown action must be rejected")
	}

	d = validDecision()
	d.Action = "hold"
	if err := d.Validate(); err != nil {
		t.Fatalf("action matching is case-insensitive: %v", err)
	}

	d = validDecision()
	d.Confidence = 1.2
	if err := d.Validate(); err == nil {
		t.Fatal("confidence above 1 must be rejected")
	}

	d = validDecision()
	d.Reasoning = "  "
	if err := d.Validate(); err == nil {
		t.Fatal("blank reasoning must be rejected")
	}
}

func TestParseDecision_ExtractsEmbeddedJSON(t *testing.T) {
	content := "分析如下。\n```json\n{\"symbol\":\"BTC/USDT\",\"action\":\"HOLD\",\"confidence\":0.2,\"reasoning\":\"震荡行情\"}\n```\n以上。"

	decision, err := parseDecision(content)
	if err != nil {
		t.Fatalf("parseDecision returned error: %v", err)
	}
	if decision.Action != "HOLD" || decision.Confidence != 0.2 {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}

func TestParseDecision_NoJSON(t *testing.T) {
	if _, err := parseDecision("抱歉，我无法给出建议"); err == nil || !strings.Contains(err.Error(), "JSON") {
		t.Fatalf("expected JSON extraction error, got %v", err)
	}
}
