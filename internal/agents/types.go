package agents

import "strings"

// Report keys written into the shared analysis state. Personas read the
// reports of everyone who ran before them.
const (
	ReportMarket         = "market_report"
	ReportSentiment      = "sentiment_report"
	ReportNews           = "news_report"
	ReportFundamentals   = "fundamentals_report"
	ReportInvestmentPlan = "investment_plan"
	ReportTraderPlan     = "trader_investment_plan"
	ReportFinalDecision  = "final_trade_decision"
)

// Baseline context keys pre-seeded by the supervisor before the graph
// starts. Absent keys mean the analyst fetches the data itself.
const (
	ContextPriceHistory        = "market_price_history"
	ContextTechnicalReport     = "market_technical_report"
	ContextStockNews           = "social_stock_news"
	ContextRedditSummary       = "social_reddit_summary"
	ContextCompanyNews         = "news_company"
	ContextRedditNews          = "news_reddit"
	ContextGlobalNews          = "news_global"
	ContextFundamentalsView    = "fundamentals_summary"
	ContextBalanceSheet        = "fundamentals_balance_sheet"
	ContextCashflow            = "fundamentals_cashflow"
	ContextIncomeStmt          = "fundamentals_income_stmt"
	ContextInsiderTransactions = "fundamentals_insider_transactions"
	ContextInsiderSentiment    = "fundamentals_insider_sentiment"
)

// Analyst persona identifiers accepted in run requests.
const (
	AnalystMarket      = "market"
	AnalystSocial      = "social"
	AnalystNews        = "news"
	AnalystFundamental = "fundamental"
)

// AllAnalysts is the default analyst selection, in execution order.
func AllAnalysts() []string {
	return []string{AnalystMarket, AnalystNews, AnalystSocial, AnalystFundamental}
}

// ValidAnalyst reports whether name is a known analyst persona.
func ValidAnalyst(name string) bool {
	switch name {
	case AnalystMarket, AnalystSocial, AnalystNews, AnalystFundamental:
		return true
	}
	return false
}

// DebateState accumulates one structured bull/bear exchange.
type DebateState struct {
	History         string
	BullHistory     string
	BearHistory     string
	CurrentResponse string
	Count           int
	JudgeDecision   string
}

// RiskDebateState accumulates the three-way risk discussion.
type RiskDebateState struct {
	History                string
	RiskyHistory           string
	SafeHistory            string
	NeutralHistory         string
	LatestSpeaker          string
	CurrentRiskyResponse   string
	CurrentSafeResponse    string
	CurrentNeutralResponse string
	Count                  int
	JudgeDecision          string
}

// PromptContext carries everything a persona may reference in its prompts.
// Missing entries render as "not available yet" rather than failing the run.
type PromptContext struct {
	Symbol      string
	TradeDate   string
	Reports     map[string]string
	Baseline    map[string]string // pre-fetched context keyed by Context* constants
	Investment  *DebateState
	Risk        *RiskDebateState
	PastLessons string
}

// Report returns a named report or a placeholder when absent.
func (pc PromptContext) Report(key string) string {
	if pc.Reports != nil {
		if report, ok := pc.Reports[key]; ok && strings.TrimSpace(report) != "" {
			return report
		}
	}
	return "(not available yet)"
}

// Persona is one agent role: its prompts and the tools it may call.
type Persona struct {
	Name        string
	Description string
	Tools       []string
	System      func(pc PromptContext) string
	User        func(pc PromptContext) string
}
