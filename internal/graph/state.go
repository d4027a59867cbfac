package graph

import (
	"minerva/internal/adapters/ai"
	"minerva/internal/agents"
)

// LogEntry records the prompts one persona ran with.
type LogEntry struct {
	RoleLabel string `json:"roleLabel"`
	System    string `json:"system"`
	User      string `json:"user"`
}

// State is the run-wide accumulator threaded through the stage graph.
// Stages never mutate it directly; they return a Delta which Apply merges.
type State struct {
	RunID     string
	Symbol    string
	TradeDate string
	Model     string

	Reports         map[string]string
	Baseline        map[string]string // pre-fetched context, set before Execute
	ConversationLog []LogEntry
	Messages        []ai.Message // transcript of the last persona only
	Investment      agents.DebateState
	Risk            agents.RiskDebateState

	Decision  string
	Ambiguous bool
}

// NewState seeds an empty run state.
func NewState(runID, symbol, tradeDate, model string) *State {
	return &State{
		RunID:     runID,
		Symbol:    symbol,
		TradeDate: tradeDate,
		Model:     model,
		Reports:   make(map[string]string),
	}
}

// Delta is the outcome of one stage. Zero-value fields leave the state
// untouched.
type Delta struct {
	Reports         map[string]string // merged by key, last writer wins
	ConversationLog []LogEntry        // appended
	Messages        []ai.Message      // replaces (per-node transcript)
	Investment      *agents.DebateState
	Risk            *agents.RiskDebateState
	Decision        string
	Ambiguous       *bool
}

// Apply merges a delta into the state per the reducer rules.
func (s *State) Apply(d Delta) {
	for key, report := range d.Reports {
		s.Reports[key] = report
	}
	s.ConversationLog = append(s.ConversationLog, d.ConversationLog...)
	if d.Messages != nil {
		s.Messages = d.Messages
	}
	if d.Investment != nil {
		s.Investment = *d.Investment
	}
	if d.Risk != nil {
		s.Risk = *d.Risk
	}
	if d.Decision != "" {
		s.Decision = d.Decision
	}
	if d.Ambiguous != nil {
		s.Ambiguous = *d.Ambiguous
	}
}

// PromptContext projects the state into what personas read.
func (s *State) PromptContext(lessons string) agents.PromptContext {
	investment := s.Investment
	risk := s.Risk
	return agents.PromptContext{
		Symbol:      s.Symbol,
		TradeDate:   s.TradeDate,
		Reports:     s.Reports,
		Baseline:    s.Baseline,
		Investment:  &investment,
		Risk:        &risk,
		PastLessons: lessons,
	}
}
