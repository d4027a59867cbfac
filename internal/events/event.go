package events

import "time"

// Stage values a run event may carry, in lifecycle order.
const (
	StageQueued           = "queued"
	StageAnalysts         = "analysts"
	StageInvestmentDebate = "investment_debate"
	StageResearchManager  = "research_manager"
	StageTrader           = "trader"
	StageRiskDebate       = "risk_debate"
	StageRiskManager      = "risk_manager"
	StageFinalizing       = "finalizing"
	StageDone             = "done"
	StageError            = "error"
)

// Percent schedule per stage. Percent never decreases within a run.
var stagePercent = map[string]int{
	StageQueued:           0,
	StageAnalysts:         10,
	StageInvestmentDebate: 30,
	StageResearchManager:  45,
	StageTrader:           55,
	StageRiskDebate:       75,
	StageRiskManager:      90,
	StageFinalizing:       95,
	StageDone:             100,
}

// PercentFor returns the scheduled percent for a stage. Error events keep
// the last emitted percent, signalled here by -1.
func PercentFor(stage string) int {
	if pct, ok := stagePercent[stage]; ok {
		return pct
	}
	return -1
}

// Terminal reports whether a stage ends the run.
func Terminal(stage string) bool {
	return stage == StageDone || stage == StageError
}

// RunEvent is one progress update of one run.
type RunEvent struct {
	RunID     string                 `json:"runId"`
	Sequence  uint64                 `json:"sequence"`
	Stage     string                 `json:"stage"`
	Label     string                 `json:"label"`
	Percent   int                    `json:"percent"`
	Iteration int                    `json:"iteration,omitempty"`
	ModelID   string                 `json:"modelId"`
	Analysts  []string               `json:"analysts"`
	Mode      string                 `json:"mode"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Type maps an event to its SSE message type.
func (e RunEvent) Type() string {
	switch e.Stage {
	case StageDone:
		return "completion"
	case StageError:
		return "error"
	}
	return "progress"
}
