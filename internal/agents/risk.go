package agents

import (
	"fmt"
	"strings"
)

// RiskyDebater pushes for aggressive positioning.
func RiskyDebater() Persona {
	return riskDebater(
		"risky_debater",
		"Argues for aggressive, high-reward positioning",
		`You are the Risky Risk Analyst. You champion bold, high-reward opportunities and argue that the potential upside justifies the risk. Challenge the safe and neutral analysts directly: point out where their caution costs returns.`,
		func(r *RiskDebateState) (string, string) { return r.SafeHistory, r.NeutralHistory },
		"safe analyst", "neutral analyst",
	)
}

// SafeDebater pushes for capital preservation.
func SafeDebater() Persona {
	return riskDebater(
		"safe_debater",
		"Argues for conservative, capital-preserving positioning",
		`You are the Safe Risk Analyst. Your priority is protecting capital and minimizing volatility. Challenge the risky and neutral analysts directly: point out where their optimism ignores downside scenarios.`,
		func(r *RiskDebateState) (string, string) { return r.RiskyHistory, r.NeutralHistory },
		"risky analyst", "neutral analyst",
	)
}

// NeutralDebater argues for the balanced view.
func NeutralDebater() Persona {
	return riskDebater(
		"neutral_debater",
		"Argues for a balanced risk posture",
		`You are the Neutral Risk Analyst. You weigh both upside and downside and argue for a moderate, diversified posture. Challenge both the risky and safe analysts where their positions are one-sided.`,
		func(r *RiskDebateState) (string, string) { return r.RiskyHistory, r.SafeHistory },
		"risky analyst", "safe analyst",
	)
}

func riskDebater(name, description, stance string, opponents func(*RiskDebateState) (string, string), firstLabel, secondLabel string) Persona {
	return Persona{
		Name:        name,
		Description: description,
		System: func(pc PromptContext) string {
			var b strings.Builder
			b.WriteString(stance)
			writeReportContext(&b, pc)
			fmt.Fprintf(&b, "\nTrader's proposed plan:\n%s\n", pc.Report(ReportTraderPlan))
			if pc.Risk != nil {
				if pc.Risk.History != "" {
					b.WriteString("\nRisk discussion so far:\n")
					b.WriteString(pc.Risk.History)
				}
				first, second := opponents(pc.Risk)
				if first != "" {
					fmt.Fprintf(&b, "\nLatest arguments from the %s:\n%s\n", firstLabel, first)
				}
				if second != "" {
					fmt.Fprintf(&b, "\nLatest arguments from the %s:\n%s\n", secondLabel, second)
				}
			}
			b.WriteString("\nRespond conversationally, engaging with the other analysts' points. Do not format your response as a report.")
			return b.String()
		},
		User: func(pc PromptContext) string {
			return fmt.Sprintf("Assess the risk posture of the trader's plan for %s from your perspective.", pc.Symbol)
		},
	}
}

// RiskManager judges the risk debate and issues the final decision.
func RiskManager() Persona {
	return Persona{
		Name:        "risk_manager",
		Description: "Judges the risk debate and issues the binding decision",
		System: func(pc PromptContext) string {
			var b strings.Builder
			b.WriteString(`You are the Risk Management Judge. Evaluate the debate between the risky, safe, and neutral analysts and issue the binding final decision: Buy, Sell, or Hold. Choose Hold only when specific, argued factors justify it, never as a default. Refine the trader's plan with your reasoning.`)
			writeReportContext(&b, pc)
			fmt.Fprintf(&b, "\nTrader's proposed plan:\n%s\n", pc.Report(ReportTraderPlan))
			if pc.Risk != nil && pc.Risk.History != "" {
				b.WriteString("\nRisk debate transcript:\n")
				b.WriteString(pc.Risk.History)
			}
			writeLessons(&b, pc)
			b.WriteString("\n\nAlways end your response with 'FINAL TRANSACTION PROPOSAL: **BUY/HOLD/SELL**' to confirm your decision.")
			return b.String()
		},
		User: func(pc PromptContext) string {
			return fmt.Sprintf("Deliver the final risk-adjusted decision for %s.", pc.Symbol)
		},
	}
}
