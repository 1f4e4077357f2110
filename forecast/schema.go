package forecast

// Output schemas in JSON Schema form. Providers with native structured
// output enforce them; the others receive them as instructions.

func analysisSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ticker": map[string]any{
				"type":        "string",
				"nullable":    true,
				"description": "Ticker symbol visible on the chart, or null if unreadable.",
			},
			"technical_summary": map[string]any{
				"type":        "string",
				"description": "Two to four sentences on price action, structure and momentum.",
			},
			"trend": map[string]any{
				"type": "string",
				"enum": []string{"bullish", "bearish", "neutral"},
			},
			"support_resistance": map[string]any{
				"type":        "string",
				"description": "Where support and resistance sit and how price has reacted to them.",
			},
			"key_levels": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"support":    map[string]any{"type": "number"},
					"resistance": map[string]any{"type": "number"},
				},
				"required": []string{"support", "resistance"},
			},
		},
		"required": []string{"ticker", "technical_summary", "trend", "support_resistance", "key_levels"},
	}
}

func simulationSchema() map[string]any {
	candle := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"day":   map[string]any{"type": "integer"},
			"open":  map[string]any{"type": "number"},
			"high":  map[string]any{"type": "number"},
			"low":   map[string]any{"type": "number"},
			"close": map[string]any{"type": "number"},
		},
		"required": []string{"day", "open", "high", "low", "close"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"analysis": map[string]any{
				"type":        "string",
				"description": "Narrative explaining the projected path.",
			},
			"ghost_candles": map[string]any{
				"type":     "array",
				"items":    candle,
				"minItems": 10,
				"maxItems": 10,
			},
		},
		"required": []string{"analysis", "ghost_candles"},
	}
}

func backtestSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score": map[string]any{
				"type":        "number",
				"description": "Accuracy of the prediction from 0 to 100.",
			},
			"critique": map[string]any{
				"type":        "string",
				"description": "What the prediction got right and wrong.",
			},
		},
		"required": []string{"score", "critique"},
	}
}
