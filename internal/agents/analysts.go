package agents

import (
	"fmt"
	"strings"
)

// collaborationHeader frames every analyst as part of the shared workflow
// so reports stay composable downstream.
const collaborationHeader = `You are a helpful AI assistant, collaborating with other assistants on a trading analysis. Use the provided tools to gather data, then write your section of the shared report. Another assistant with different tools will pick up where you leave off.`

const toolReminder = `Call your tools before concluding; do not invent data you have not fetched. If a tool reports that data is unavailable, note the gap and work with what you have.`

// AnalystPersonas returns the requested analyst personas in canonical
// execution order.
func AnalystPersonas(selected []string) []Persona {
	byName := map[string]Persona{
		AnalystMarket:      MarketAnalyst(),
		AnalystSocial:      SocialAnalyst(),
		AnalystNews:        NewsAnalyst(),
		AnalystFundamental: FundamentalsAnalyst(),
	}

	personas := make([]Persona, 0, len(selected))
	for _, name := range AllAnalysts() {
		for _, want := range selected {
			if want == name {
				personas = append(personas, byName[name])
				break
			}
		}
	}
	return personas
}

// MarketAnalyst studies price action and technical indicators.
func MarketAnalyst() Persona {
	return Persona{
		Name:        "market_analyst",
		Description: "Technical analysis of price action and indicators",
		Tools:       []string{"get_stock_quote", "get_technical_indicators"},
		System: func(pc PromptContext) string {
			return collaborationHeader + `

You are a senior market analyst specializing in technical analysis.

Your responsibilities:
1. Analyze current price action relative to the recent range
2. Interpret momentum, volatility, and moving-average indicators
3. Identify support/resistance context and trading signals

` + toolReminder + `

Write a detailed markdown report. End with a markdown table summarizing the key indicator readings and their signal (bullish/bearish/neutral).`
		},
		User: analystUserPrompt("technical market analysis",
			contextKey{ContextPriceHistory, "get_stock_quote"},
			contextKey{ContextTechnicalReport, "get_technical_indicators"},
		),
	}
}

// SocialAnalyst reads retail sentiment from social discussion.
func SocialAnalyst() Persona {
	return Persona{
		Name:        "social_analyst",
		Description: "Retail sentiment from social discussion",
		Tools:       []string{"get_reddit_stock_info", "get_reddit_company_news"},
		System: func(pc PromptContext) string {
			return collaborationHeader + `

You are a social media sentiment analyst.

Your responsibilities:
1. Gauge retail investor mood from discussion threads
2. Separate signal from hype: note thread quality, score, and engagement
3. Flag sentiment shifts or unusual attention

` + toolReminder + `

Write a detailed markdown report on the social sentiment picture. End with a markdown table of the main sentiment drivers.`
		},
		User: analystUserPrompt("social sentiment analysis",
			contextKey{ContextStockNews, "get_reddit_company_news"},
			contextKey{ContextRedditSummary, "get_reddit_stock_info"},
		),
	}
}

// NewsAnalyst covers company and macro headlines.
func NewsAnalyst() Persona {
	return Persona{
		Name:        "news_analyst",
		Description: "Company and macro news coverage",
		Tools:       []string{"get_company_news", "get_global_news", "get_reddit_global_news"},
		System: func(pc PromptContext) string {
			return collaborationHeader + `

You are a news analyst covering both company-specific and macroeconomic developments.

Your responsibilities:
1. Summarize recent company news and assess its price relevance
2. Connect macro headlines to the company's sector and outlook
3. Distinguish confirmed facts from speculation

` + toolReminder + `

Write a detailed markdown report on the news landscape. End with a markdown table of the most material headlines and their likely impact.`
		},
		User: analystUserPrompt("news analysis",
			contextKey{ContextCompanyNews, "get_company_news"},
			contextKey{ContextRedditNews, "get_reddit_global_news"},
			contextKey{ContextGlobalNews, "get_global_news"},
		),
	}
}

// FundamentalsAnalyst covers financials and insider activity.
func FundamentalsAnalyst() Persona {
	return Persona{
		Name:        "fundamentals_analyst",
		Description: "Financial statements, valuation, insider activity",
		Tools: []string{
			"get_fundamentals_summary", "get_company_profile",
			"get_finnhub_balance_sheet", "get_finnhub_cashflow", "get_finnhub_income_stmt",
			"get_finnhub_insider_transactions", "get_finnhub_insider_sentiment",
		},
		System: func(pc PromptContext) string {
			return collaborationHeader + `

You are a fundamentals analyst.

Your responsibilities:
1. Assess valuation, profitability, and balance-sheet health
2. Review the latest reported statements for trends
3. Read insider transactions and sentiment for conviction signals

` + toolReminder + `

Write a detailed markdown report on the company's fundamental position. End with a markdown table of the key financial metrics.`
		},
		User: analystUserPrompt("fundamental analysis",
			contextKey{ContextFundamentalsView, "get_fundamentals_summary"},
			contextKey{ContextBalanceSheet, "get_finnhub_balance_sheet"},
			contextKey{ContextCashflow, "get_finnhub_cashflow"},
			contextKey{ContextIncomeStmt, "get_finnhub_income_stmt"},
			contextKey{ContextInsiderTransactions, "get_finnhub_insider_transactions"},
			contextKey{ContextInsiderSentiment, "get_finnhub_insider_sentiment"},
		),
	}
}

// contextKey pairs a baseline context key with the tool that can fetch it
// when the supervisor left it empty.
type contextKey struct {
	key  string
	tool string
}

func analystUserPrompt(task string, keys ...contextKey) func(PromptContext) string {
	return func(pc PromptContext) string {
		var b strings.Builder
		fmt.Fprintf(&b, "Perform a %s of %s as of %s.", task, pc.Symbol, pc.TradeDate)
		for _, ck := range keys {
			if text, ok := pc.Baseline[ck.key]; ok && strings.TrimSpace(text) != "" {
				fmt.Fprintf(&b, "\n\nPre-fetched %s:\n%s", ck.key, text)
			} else {
				fmt.Fprintf(&b, "\n\nNo pre-fetched %s available; call %s to retrieve it.", ck.key, ck.tool)
			}
		}
		fmt.Fprintf(&b, "\n\nUse your tools to fetch any further data you need for %s before writing your report.", pc.Symbol)
		return b.String()
	}
}
