package decision

import (
	"encoding/json"
	"time"
)

// Decision is the durable outcome of one analysis run, keyed by run ID.
type Decision struct {
	RunID               string          `db:"run_id" json:"runId"`
	Symbol              string          `db:"symbol" json:"symbol"`
	TradeDate           string          `db:"trade_date" json:"tradeDate"`
	DecisionToken       string          `db:"decision_token" json:"decisionToken"`
	Ambiguous           bool            `db:"ambiguous" json:"ambiguous"`
	InvestmentPlan      string          `db:"investment_plan" json:"investmentPlan"`
	TraderPlan          string          `db:"trader_plan" json:"traderPlan"`
	RiskJudge           string          `db:"risk_judge" json:"riskJudge"`
	Payload             json.RawMessage `db:"payload" json:"payload"`
	RawText             string          `db:"raw_text" json:"rawText"`
	ModelID             string          `db:"model_id" json:"modelId"`
	Analysts            json.RawMessage `db:"analysts" json:"analysts"`
	PromptHash          string          `db:"prompt_hash" json:"promptHash"`
	OrchestratorVersion string          `db:"orchestrator_version" json:"orchestratorVersion"`
	CreatedAt           time.Time       `db:"created_at" json:"createdAt"`
}

// RunRecord is secondary run metadata; losing it never blocks the decision.
type RunRecord struct {
	RunID               string          `db:"run_id" json:"runId"`
	Symbol              string          `db:"symbol" json:"symbol"`
	TradeDate           string          `db:"trade_date" json:"tradeDate"`
	Model               string          `db:"model" json:"model"`
	Analysts            json.RawMessage `db:"analysts" json:"analysts"`
	PromptHash          string          `db:"prompt_hash" json:"promptHash"`
	OrchestratorVersion string          `db:"orchestrator_version" json:"orchestratorVersion"`
	LogsPath            string          `db:"logs_path" json:"logsPath"`
}

// Page is one page of a decision listing. NextCursor is the createdAt of
// the last item, empty when the listing is exhausted.
type Page struct {
	Items      []*Decision `json:"items"`
	NextCursor string      `json:"nextCursor,omitempty"`
}
