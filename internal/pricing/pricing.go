// Package pricing computes ai.cost.usd from a static per-model rate table.
package pricing

// Rates are USD per million tokens for one model.
type Rates struct {
	Input      float64
	Output     float64
	CacheRead  float64
	CacheWrite float64
}

// table holds publicly documented per-million-token list rates. Unknown
// models are never matched against a fallback entry here, by design (see
// Compute).
var table = map[string]Rates{
	"claude-opus-4-20250514":    {Input: 15, Output: 75, CacheRead: 1.5, CacheWrite: 18.75},
	"claude-sonnet-4-20250514":  {Input: 3, Output: 15, CacheRead: 0.3, CacheWrite: 3.75},
	"claude-3-5-sonnet-20241022": {Input: 3, Output: 15, CacheRead: 0.3, CacheWrite: 3.75},
	"claude-3-5-haiku-20241022": {Input: 0.8, Output: 4, CacheRead: 0.08, CacheWrite: 1},
	"claude-3-opus-20240229":    {Input: 15, Output: 75, CacheRead: 1.5, CacheWrite: 18.75},
	"claude-3-haiku-20240307":   {Input: 0.25, Output: 1.25, CacheRead: 0.03, CacheWrite: 0.3},
}

// Usage is the token breakdown one API span reports.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
}

// Result is the cost attributes attached to an API span: ai.cost.usd and
// ai.cost.known.
type Result struct {
	USD   float64
	Known bool
}

// Compute looks up model in the static rate table. When the model is
// unknown, it returns {USD: 0, Known: false} rather than falling back to
// a default model's rates, per the resolved Open Question in DESIGN.md.
func Compute(model string, u Usage) Result {
	rates, ok := table[model]
	if !ok {
		return Result{USD: 0, Known: false}
	}
	usd := float64(u.InputTokens)*rates.Input/1e6 +
		float64(u.OutputTokens)*rates.Output/1e6 +
		float64(u.CacheReadTokens)*rates.CacheRead/1e6 +
		float64(u.CacheWriteTokens)*rates.CacheWrite/1e6
	return Result{USD: usd, Known: true}
}

// Known reports whether model has a pricing table entry.
func Known(model string) bool {
	_, ok := table[model]
	return ok
}
