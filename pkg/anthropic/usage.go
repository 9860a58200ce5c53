package anthropic

import "go.uber.org/zap"

// TokenUsage is the per-call token accounting reported by the API. Cache
// creation and cache read tokens are tracked separately because the primer
// strategy makes them the bulk of a batch run's input volume.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// pricing is per million tokens, USD.
type pricing struct {
	input  float64
	output float64
}

// Cache writes bill at a premium over plain input; cache reads at a deep
// discount. These multipliers are why priming pays off across retries.
const (
	cacheWriteRate = 1.25
	cacheReadRate  = 0.1
)

var modelPricing = map[string]pricing{
	"claude-haiku-4-5-20251001":  {input: 0.80, output: 4.00},
	"claude-sonnet-4-5-20250929": {input: 3.00, output: 15.00},
	"claude-opus-4-6":            {input: 15.00, output: 75.00},
}

// EstimateCost returns the call's estimated USD cost for the given model,
// or 0 when the model is not in the pricing table.
func (u TokenUsage) EstimateCost(model string) float64 {
	p, ok := modelPricing[model]
	if !ok {
		return 0
	}
	const mtok = 1e6
	cost := float64(u.InputTokens) / mtok * p.input
	cost += float64(u.OutputTokens) / mtok * p.output
	cost += float64(u.CacheCreationInputTokens) / mtok * p.input * cacheWriteRate
	cost += float64(u.CacheReadInputTokens) / mtok * p.input * cacheReadRate
	return cost
}

// LogCost emits one structured cost-attribution record for the call.
func (u TokenUsage) LogCost(model, phase string) {
	zap.L().Info("cost attribution",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}
