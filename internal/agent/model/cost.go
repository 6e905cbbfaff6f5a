package model

import (
	"github.com/cloudwego/eino/schema"
)

// Pricing defines USD cost per 1M tokens for input/output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// defaultPricing provides hardcoded USD pricing per 1M text tokens.
var defaultPricing = map[string]Pricing{
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
	"gemini-2.0-flash":      {InputPerM: 0.10, OutputPerM: 0.40},
}

// UsageCost is the priced token usage of one model call.
type UsageCost struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
	InputUSD         float64
	OutputUSD        float64
	TotalUSD         float64
}

// ResolvePricing returns pricing for a model, zero when unknown.
func ResolvePricing(model string) Pricing {
	return defaultPricing[model]
}

// ComputeCost converts token usage to USD using per-1M pricing.
func ComputeCost(modelName string, usage *schema.TokenUsage) UsageCost {
	c := UsageCost{Model: modelName}
	if usage == nil {
		return c
	}
	p := ResolvePricing(modelName)
	c.PromptTokens = usage.PromptTokens
	c.CompletionTokens = usage.CompletionTokens
	c.InputUSD = p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0
	c.OutputUSD = p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0
	c.TotalUSD = c.InputUSD + c.OutputUSD
	return c
}
