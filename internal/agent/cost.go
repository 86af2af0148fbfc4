package agent

import (
	"sync"

	"github.com/dkershaw/converge/internal/model"
)

// Price is the per-model pricing entry, expressed per 1k tokens.
type Price struct {
	InputPer1K  float64
	OutputPer1K float64
	Currency    string
}

// CostDetails accumulates monetary cost across model turns.
// Invariant: TotalCost == InputCost + OutputCost.
type CostDetails struct {
	Model      string
	InputCost  float64
	OutputCost float64
	TotalCost  float64
	Currency   string
}

// CostAccountant converts token counts into cost using a read-only pricing
// table fixed at construction. Models absent from the table contribute zero
// cost and surface a one-time warning.
type CostAccountant struct {
	prices map[string]Price

	mu     sync.Mutex
	warned map[string]bool
	warnf  func(format string, args ...any)
}

// NewCostAccountant builds an accountant over pricing. warnf receives the
// unknown-model notice; nil disables it.
func NewCostAccountant(pricing map[string]Price, warnf func(string, ...any)) *CostAccountant {
	prices := make(map[string]Price, len(pricing))
	for id, p := range pricing {
		if p.Currency == "" {
			p.Currency = "USD"
		}
		prices[id] = p
	}
	return &CostAccountant{
		prices: prices,
		warned: make(map[string]bool),
		warnf:  warnf,
	}
}

// Cost prices a single turn's usage on the given model.
func (c *CostAccountant) Cost(modelID string, usage model.TokenUsage) CostDetails {
	p, ok := c.prices[modelID]
	if !ok {
		c.warnOnce(modelID)
		return CostDetails{Model: modelID, Currency: "USD"}
	}
	in := float64(usage.Input) / 1000 * p.InputPer1K
	out := float64(usage.Output) / 1000 * p.OutputPer1K
	return CostDetails{
		Model:      modelID,
		InputCost:  in,
		OutputCost: out,
		TotalCost:  in + out,
		Currency:   p.Currency,
	}
}

// Accumulate adds one turn's usage into running.
func (c *CostAccountant) Accumulate(running *CostDetails, modelID string, usage model.TokenUsage) {
	turn := c.Cost(modelID, usage)
	running.Model = modelID
	running.Currency = turn.Currency
	running.InputCost += turn.InputCost
	running.OutputCost += turn.OutputCost
	running.TotalCost = running.InputCost + running.OutputCost
}

func (c *CostAccountant) warnOnce(modelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.warned[modelID] {
		return
	}
	c.warned[modelID] = true
	if c.warnf != nil {
		c.warnf("no pricing for model %q, cost recorded as zero", modelID)
	}
}
