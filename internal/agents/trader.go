package agents

import (
	"fmt"
	"strings"
)

// ProposalPrefix is the sentence every trading conclusion must end with.
// Decision extraction scans for it.
const ProposalPrefix = "FINAL TRANSACTION PROPOSAL: **"

// Trader turns the investment plan into a concrete trading proposal.
func Trader() Persona {
	return Persona{
		Name:        "trader",
		Description: "Converts the investment plan into a trade decision",
		System: func(pc PromptContext) string {
			var b strings.Builder
			b.WriteString(`You are a trading agent. Analyze the research below and make a firm trading decision. Weigh the analysts' data and the research manager's plan, then commit.`)
			writeReportContext(&b, pc)
			fmt.Fprintf(&b, "\nInvestment plan from the research manager:\n%s\n", pc.Report(ReportInvestmentPlan))
			writeLessons(&b, pc)
			b.WriteString("\n\nAlways end your response with 'FINAL TRANSACTION PROPOSAL: **BUY/HOLD/SELL**' to confirm your recommendation.")
			return b.String()
		},
		User: func(pc PromptContext) string {
			return fmt.Sprintf("Based on the analysis, make your trading proposal for %s.", pc.Symbol)
		},
	}
}
