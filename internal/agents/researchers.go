package agents

import (
	"fmt"
	"strings"
)

// BullResearcher argues the case for buying.
func BullResearcher() Persona {
	return Persona{
		Name:        "bull_researcher",
		Description: "Builds the bullish investment case",
		System: func(pc PromptContext) string {
			var b strings.Builder
			b.WriteString(`You are a bull researcher advocating for investing in the stock. Build an evidence-based case emphasizing growth potential, competitive advantages, and positive indicators. Engage directly with the bear's arguments and rebut them point by point in a conversational style.`)
			writeReportContext(&b, pc)
			writeDebateHistory(&b, pc.Investment, "Bear researcher's latest arguments to rebut:", func(d *DebateState) string { return d.BearHistory })
			writeLessons(&b, pc)
			return b.String()
		},
		User: func(pc PromptContext) string {
			return fmt.Sprintf("Present your bullish argument for %s. Counter the bear's concerns where they exist.", pc.Symbol)
		},
	}
}

// BearResearcher argues the case against buying.
func BearResearcher() Persona {
	return Persona{
		Name:        "bear_researcher",
		Description: "Builds the bearish investment case",
		System: func(pc PromptContext) string {
			var b strings.Builder
			b.WriteString(`You are a bear researcher arguing against investing in the stock. Build an evidence-based case emphasizing risks, overvaluation, competitive threats, and negative indicators. Engage directly with the bull's arguments and rebut them point by point in a conversational style.`)
			writeReportContext(&b, pc)
			writeDebateHistory(&b, pc.Investment, "Bull researcher's latest arguments to rebut:", func(d *DebateState) string { return d.BullHistory })
			writeLessons(&b, pc)
			return b.String()
		},
		User: func(pc PromptContext) string {
			return fmt.Sprintf("Present your bearish argument for %s. Counter the bull's claims where they exist.", pc.Symbol)
		},
	}
}

// ResearchManager judges the debate and writes the investment plan.
func ResearchManager() Persona {
	return Persona{
		Name:        "research_manager",
		Description: "Judges the bull/bear debate and commits to a plan",
		System: func(pc PromptContext) string {
			var b strings.Builder
			b.WriteString(`You are the research manager moderating the investment debate. Critically evaluate both sides and commit to a clear recommendation: Buy, Sell, or Hold. Do not default to Hold out of convenience; choose it only when the arguments genuinely balance. Then write an investment plan for the trader: your recommendation, the rationale, and strategic actions with concrete conditions.`)
			writeReportContext(&b, pc)
			if pc.Investment != nil && pc.Investment.History != "" {
				b.WriteString("\n\nFull debate transcript:\n")
				b.WriteString(pc.Investment.History)
			}
			writeLessons(&b, pc)
			return b.String()
		},
		User: func(pc PromptContext) string {
			return fmt.Sprintf("Judge the debate about %s and deliver the investment plan.", pc.Symbol)
		},
	}
}

func writeReportContext(b *strings.Builder, pc PromptContext) {
	fmt.Fprintf(b, "\n\nCompany: %s\nTrade date: %s\n", pc.Symbol, pc.TradeDate)
	fmt.Fprintf(b, "\nMarket research report:\n%s\n", pc.Report(ReportMarket))
	fmt.Fprintf(b, "\nSocial sentiment report:\n%s\n", pc.Report(ReportSentiment))
	fmt.Fprintf(b, "\nNews report:\n%s\n", pc.Report(ReportNews))
	fmt.Fprintf(b, "\nFundamentals report:\n%s\n", pc.Report(ReportFundamentals))
}

func writeDebateHistory(b *strings.Builder, d *DebateState, opponentLabel string, opponent func(*DebateState) string) {
	if d == nil {
		return
	}
	if d.History != "" {
		b.WriteString("\n\nConversation so far:\n")
		b.WriteString(d.History)
	}
	if text := opponent(d); text != "" {
		b.WriteString("\n\n" + opponentLabel + "\n")
		b.WriteString(text)
	}
}

func writeLessons(b *strings.Builder, pc PromptContext) {
	if pc.PastLessons != "" {
		b.WriteString("\n\nLessons from past decisions on similar situations:\n")
		b.WriteString(pc.PastLessons)
	}
}
