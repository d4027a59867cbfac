package graph

import (
	"strings"

	"minerva/internal/agents"
)

// Decision tokens.
const (
	DecisionBuy  = "BUY"
	DecisionHold = "HOLD"
	DecisionSell = "SELL"
)

// ExtractDecision pulls the trade decision out of a transcript by matching
// the last occurrence of the canonical proposal phrase. Absent or malformed
// proposals default to HOLD with the ambiguous flag set.
func ExtractDecision(text string) (string, bool) {
	idx := strings.LastIndex(text, agents.ProposalPrefix)
	if idx < 0 {
		return DecisionHold, true
	}

	rest := text[idx+len(agents.ProposalPrefix):]
	end := strings.Index(rest, "**")
	if end < 0 {
		return DecisionHold, true
	}

	token := strings.ToUpper(strings.TrimSpace(rest[:end]))
	switch token {
	case DecisionBuy, DecisionHold, DecisionSell:
		return token, false
	}
	return DecisionHold, true
}
