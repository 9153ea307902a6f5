package pricing

import "github.com/ccstat-go/ccstat/domain"

func ptr(v float64) *float64 { return &v }

// embeddedCatalog returns the pricing snapshot shipped with the binary,
// used when the network fetch fails or offline mode is requested.
func embeddedCatalog() map[string]domain.Pricing {
	return map[string]domain.Pricing{
		"claude-3-opus-20240229": {
			InputCostPerToken:           ptr(15.0 / 1_000_000),
			OutputCostPerToken:          ptr(75.0 / 1_000_000),
			CacheCreationInputTokenCost: ptr(18.75 / 1_000_000),
			CacheReadInputTokenCost:     ptr(1.5 / 1_000_000),
		},
		"claude-3-5-sonnet-20241022": {
			InputCostPerToken:           ptr(3.0 / 1_000_000),
			OutputCostPerToken:          ptr(15.0 / 1_000_000),
			CacheCreationInputTokenCost: ptr(3.75 / 1_000_000),
			CacheReadInputTokenCost:     ptr(0.3 / 1_000_000),
		},
		"claude-3-5-haiku-20241022": {
			InputCostPerToken:           ptr(0.8 / 1_000_000),
			OutputCostPerToken:          ptr(4.0 / 1_000_000),
			CacheCreationInputTokenCost: ptr(1.0 / 1_000_000),
			CacheReadInputTokenCost:     ptr(0.08 / 1_000_000),
		},
		"claude-opus-4": {
			InputCostPerToken:           ptr(15.0 / 1_000_000),
			OutputCostPerToken:          ptr(75.0 / 1_000_000),
			CacheCreationInputTokenCost: ptr(18.75 / 1_000_000),
			CacheReadInputTokenCost:     ptr(1.5 / 1_000_000),
		},
		"claude-sonnet-4": {
			InputCostPerToken:           ptr(3.0 / 1_000_000),
			OutputCostPerToken:          ptr(15.0 / 1_000_000),
			CacheCreationInputTokenCost: ptr(3.75 / 1_000_000),
			CacheReadInputTokenCost:     ptr(0.3 / 1_000_000),
		},
		"gpt-5": {
			InputCostPerToken:  ptr(5.0 / 1_000_000),
			OutputCostPerToken: ptr(15.0 / 1_000_000),
		},
		"gpt-4o": {
			InputCostPerToken:  ptr(2.5 / 1_000_000),
			OutputCostPerToken: ptr(10.0 / 1_000_000),
		},
		"gemini-3-pro-preview": {
			InputCostPerToken:  ptr(1.25 / 1_000_000),
			OutputCostPerToken: ptr(5.0 / 1_000_000),
		},
	}
}
