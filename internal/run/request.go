package run

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"minerva/internal/adapters/config"
	"minerva/internal/agents"
	"minerva/pkg/errors"
)

var symbolPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

const maxRunIDLength = 128

// Request describes one analysis run as submitted by a client.
type Request struct {
	RunID        string   `json:"runId,omitempty"`
	Symbol       string   `json:"symbol"`
	TradeDate    string   `json:"tradeDate,omitempty"`
	ModelID      string   `json:"modelId,omitempty"`
	Analysts     []string `json:"analysts,omitempty"`
	DebateRounds int      `json:"debateRounds,omitempty"`
	RiskRounds   int      `json:"riskRounds,omitempty"`
	UseMockData  bool     `json:"useMockData,omitempty"`
}

// Normalize fills missing optional fields from configuration defaults.
func (r *Request) Normalize(cfg *config.Config) {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	if r.TradeDate == "" {
		r.TradeDate = time.Now().UTC().Format("2006-01-02")
	}
	if r.ModelID == "" {
		r.ModelID = cfg.AI.DefaultModel
	}
	if len(r.Analysts) == 0 {
		r.Analysts = agents.AllAnalysts()
	}
	if r.DebateRounds <= 0 {
		r.DebateRounds = cfg.Orchestrator.DebateRounds
	}
	if r.RiskRounds <= 0 {
		r.RiskRounds = cfg.Orchestrator.RiskRounds
	}
}

// Validate checks the normalized request against the configured limits.
// Failures are ValidationErrors carrying the offending field.
func (r *Request) Validate(cfg *config.Config) error {
	if len(r.RunID) > maxRunIDLength {
		return errors.NewValidationError("runId", fmt.Sprintf("must be at most %d characters", maxRunIDLength))
	}
	if !symbolPattern.MatchString(r.Symbol) {
		return errors.NewValidationError("symbol", "must be 1-5 uppercase letters")
	}
	if _, err := time.Parse("2006-01-02", r.TradeDate); err != nil {
		return errors.NewValidationError("tradeDate", "must be an ISO date (yyyy-mm-dd)")
	}
	if !cfg.AI.ModelAllowed(r.ModelID) {
		return errors.NewValidationError("modelId", fmt.Sprintf("model %q is not in the allow-list", r.ModelID))
	}
	for _, analyst := range r.Analysts {
		if !agents.ValidAnalyst(analyst) {
			return errors.NewValidationError("analysts", fmt.Sprintf("unknown analyst %q", analyst))
		}
	}
	return nil
}
