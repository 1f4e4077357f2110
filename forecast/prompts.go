package forecast

import (
	"fmt"
	"strings"

	"github.com/richinex/ghostcandle/model"
)

const baselineScenario = "baseline"

const analystInstruction = `You are a senior technical analyst. You read price charts precisely and never invent data that is not visible. Respond only in the requested JSON format.`

const analysisPrompt = `Analyze this price chart screenshot.

1. Identify the ticker symbol if it is visible; otherwise use null.
2. Summarize the recent price action, structure and momentum.
3. Classify the prevailing trend as bullish, bearish or neutral.
4. Describe the important support and resistance zones.
5. Give the nearest key support and resistance prices as numbers read off the price axis.`

const marketInstruction = `You are a market intelligence researcher. Use web search to find the most recent news that could move the asset. Be factual and concise.`

func marketPrompt(ticker, technicalContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search for the latest news and market sentiment for %s.\n", ticker)
	if technicalContext != "" {
		fmt.Fprintf(&b, "Technical backdrop from the chart: %s\n", technicalContext)
	}
	fmt.Fprintf(&b, `
Return a single JSON object and nothing else:
{"summary": "two or three sentences on the current narrative", "headlines": ["up to %d recent headlines"]}`, model.MaxHeadlines)
	return b.String()
}

const simulationInstruction = `You are a quantitative market simulator. You project plausible future daily candles that stay consistent with the chart's price scale and volatility. Respond only in the requested JSON format.`

// IsBaseline reports whether scenario asks for the most probable path
// rather than a user-described one.
func IsBaseline(scenario string) bool {
	s := strings.TrimSpace(scenario)
	return s == "" || strings.EqualFold(s, baselineScenario)
}

func simulationPrompt(in SimulationInput) string {
	var b strings.Builder

	ticker := strings.TrimSpace(in.Ticker)
	if ticker == "" {
		ticker = in.Analysis.TickerOrEmpty()
	}
	if ticker != "" {
		fmt.Fprintf(&b, "Asset: %s\n", ticker)
	}

	a := in.Analysis
	fmt.Fprintf(&b, "Prior analysis: %s\n", a.TechnicalSummary)
	fmt.Fprintf(&b, "Trend: %s\n", a.Trend)
	if a.SupportResistance != "" {
		fmt.Fprintf(&b, "Support/resistance: %s\n", a.SupportResistance)
	}
	fmt.Fprintf(&b, "Key levels: support %g, resistance %g\n", a.KeyLevels.Support, a.KeyLevels.Resistance)

	if mc := in.Market; mc != nil && !mc.Unavailable {
		fmt.Fprintf(&b, "\nMarket context: %s\n", mc.Summary)
		for _, h := range mc.Headlines {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}

	b.WriteString("\n")
	if IsBaseline(in.Scenario) {
		b.WriteString("Project the most probable continuation of the current price action.")
	} else {
		fmt.Fprintf(&b, "Project the price path under this scenario: %s", strings.TrimSpace(in.Scenario))
	}
	fmt.Fprintf(&b, `

Produce exactly %d ghost candles for the next %d trading days, starting from the last visible close. Number them day 1 to %d. Each candle must satisfy low <= open, close <= high. Explain the projected path in the analysis field.`,
		model.GhostCandleCount, model.GhostCandleCount, model.GhostCandleCount)
	return b.String()
}

const backtestInstruction = `You are a strict trading performance reviewer. You compare predictions with what actually happened and grade them objectively. Respond only in the requested JSON format.`

func backtestPrompt(in BacktestInput) string {
	var b strings.Builder
	b.WriteString("The attached chart shows what actually happened after a prediction was made.\n")
	if IsBaseline(in.Scenario) {
		b.WriteString("The prediction was the most probable continuation.\n")
	} else {
		fmt.Fprintf(&b, "The prediction assumed this scenario: %s\n", strings.TrimSpace(in.Scenario))
	}

	b.WriteString("\nPredicted candles (day, open, high, low, close):\n")
	for _, c := range in.Predicted {
		fmt.Fprintf(&b, "%d, %g, %g, %g, %g\n", c.Day, c.Open, c.High, c.Low, c.Close)
	}

	b.WriteString(`
Score the prediction from 0 to 100 on direction, magnitude and path shape, where 100 is a near-perfect match. Write a short critique of what it got right and wrong.`)
	return b.String()
}
