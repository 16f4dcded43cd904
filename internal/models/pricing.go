package models

import (
	"database/sql/driver"
	"encoding/json"
)

// PricingWildcard is the pricing key used when a model has no dedicated entry
const PricingWildcard = "*"

// ModelPrice is the USD price of one thousand tokens in each direction
type ModelPrice struct {
	InputPer1K  float64 `json:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k"`
}

// PricingTable maps model identifiers to prices. Stored as a JSON column.
type PricingTable map[string]ModelPrice

// Cost calculates the USD cost of a call. Models without pricing cost nothing.
func (p PricingTable) Cost(model string, inputTokens, outputTokens int) float64 {
	price, ok := p[model]
	if !ok {
		price, ok = p[PricingWildcard]
		if !ok {
			return 0
		}
	}
	cost := 0.0
	if inputTokens > 0 {
		cost += (float64(inputTokens) / 1000.0) * price.InputPer1K
	}
	if outputTokens > 0 {
		cost += (float64(outputTokens) / 1000.0) * price.OutputPer1K
	}
	return cost
}

func (p PricingTable) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]ModelPrice(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *PricingTable) Scan(value any) error {
	b, err := jsonBytes("PricingTable", value)
	if err != nil || b == nil {
		*p = nil
		return err
	}
	return json.Unmarshal(b, (*map[string]ModelPrice)(p))
}
