package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalystPersonasOrderAndSelection(t *testing.T) {
	// Selection is re-ordered into canonical execution order
	personas := AnalystPersonas([]string{AnalystFundamental, AnalystMarket})
	require.Len(t, personas, 2)
	assert.Equal(t, "market_analyst", personas[0].Name)
	assert.Equal(t, "fundamentals_analyst", personas[1].Name)

	all := AnalystPersonas(AllAnalysts())
	require.Len(t, all, 4)
	assert.Equal(t, "market_analyst", all[0].Name)
	assert.Equal(t, "news_analyst", all[1].Name)
	assert.Equal(t, "social_analyst", all[2].Name)
	assert.Equal(t, "fundamentals_analyst", all[3].Name)
}

func TestAnalystPromptsMentionSymbolAndDate(t *testing.T) {
	pc := PromptContext{Symbol: "NVDA", TradeDate: "2026-03-10"}

	for _, persona := range AnalystPersonas(AllAnalysts()) {
		assert.NotEmpty(t, persona.Tools, "analyst %s needs tools", persona.Name)
		user := persona.User(pc)
		assert.Contains(t, user, "NVDA")
		assert.Contains(t, user, "2026-03-10")
	}
}

func TestAnalystPromptsDumpBaselineContext(t *testing.T) {
	pc := PromptContext{
		Symbol:    "NVDA",
		TradeDate: "2026-03-10",
		Baseline: map[string]string{
			ContextPriceHistory: "close 900, up 2%",
		},
	}

	user := MarketAnalyst().User(pc)
	assert.Contains(t, user, "close 900, up 2%")
	// The seeded key is dumped, the unseeded one points at its tool.
	assert.Contains(t, user, "Pre-fetched "+ContextPriceHistory)
	assert.Contains(t, user, "call get_technical_indicators to retrieve it")

	empty := MarketAnalyst().User(PromptContext{Symbol: "NVDA", TradeDate: "2026-03-10"})
	assert.Contains(t, empty, "call get_stock_quote to retrieve it")
}

func TestResearcherPromptsCarryReportsAndDebate(t *testing.T) {
	pc := PromptContext{
		Symbol:    "NVDA",
		TradeDate: "2026-03-10",
		Reports: map[string]string{
			ReportMarket: "momentum is strong",
			ReportNews:   "new chip announced",
		},
		Investment: &DebateState{
			History:     "Bull: buy it\nBear: too expensive",
			BullHistory: "buy it",
			BearHistory: "too expensive",
		},
	}

	bull := BullResearcher().System(pc)
	assert.Contains(t, bull, "momentum is strong")
	assert.Contains(t, bull, "too expensive")

	bear := BearResearcher().System(pc)
	assert.Contains(t, bear, "buy it")

	// Missing reports render as placeholders, not empty holes
	assert.Contains(t, bull, "(not available yet)")

	manager := ResearchManager().System(pc)
	assert.Contains(t, manager, "Bull: buy it")
	assert.Contains(t, manager, "Hold")
}

func TestTraderAndRiskManagerDemandProposal(t *testing.T) {
	pc := PromptContext{
		Symbol:  "NVDA",
		Reports: map[string]string{ReportInvestmentPlan: "recommend buy", ReportTraderPlan: "buy 100 shares"},
	}

	trader := Trader().System(pc)
	assert.Contains(t, trader, "recommend buy")
	assert.Contains(t, trader, ProposalPrefix)

	manager := RiskManager().System(pc)
	assert.Contains(t, manager, "buy 100 shares")
	assert.Contains(t, manager, ProposalPrefix)
}

func TestRiskDebatersSeeOpponents(t *testing.T) {
	pc := PromptContext{
		Symbol: "NVDA",
		Risk: &RiskDebateState{
			History:        "Risky: go big\nSafe: slow down",
			RiskyHistory:   "go big",
			SafeHistory:    "slow down",
			NeutralHistory: "balance it",
		},
	}

	risky := RiskyDebater().System(pc)
	assert.Contains(t, risky, "slow down")
	assert.Contains(t, risky, "balance it")
	assert.NotContains(t, risky, "Latest arguments from the risky analyst")

	safe := SafeDebater().System(pc)
	assert.Contains(t, safe, "go big")

	neutral := NeutralDebater().System(pc)
	assert.Contains(t, neutral, "go big")
	assert.Contains(t, neutral, "slow down")
}

func TestValidAnalyst(t *testing.T) {
	assert.True(t, ValidAnalyst("market"))
	assert.True(t, ValidAnalyst("fundamental"))
	assert.False(t, ValidAnalyst("astrology"))
}
