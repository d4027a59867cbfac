package run

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"minerva/internal/agents"
	"minerva/internal/tools"
)

// OrchestratorVersion is stamped on every persisted decision so replays of
// old runs can be told apart from current behavior.
const OrchestratorVersion = "1.0.0"

// hashContext is a fixed placeholder so the hash depends only on prompt
// templates and tool schemas, not on run inputs.
var hashContext = agents.PromptContext{Symbol: "TICKER", TradeDate: "1970-01-01"}

// PromptHash fingerprints the prompt templates and tool schemas of one run
// shape. Two runs with the same analysts and registry share a hash.
func PromptHash(analysts []string, registry *tools.Registry) string {
	h := sha256.New()

	personas := agents.AnalystPersonas(analysts)
	personas = append(personas,
		agents.BullResearcher(), agents.BearResearcher(), agents.ResearchManager(),
		agents.Trader(),
		agents.RiskyDebater(), agents.SafeDebater(), agents.NeutralDebater(),
		agents.RiskManager(),
	)

	for _, persona := range personas {
		h.Write([]byte(persona.Name))
		h.Write([]byte(persona.System(hashContext)))
		h.Write([]byte(persona.User(hashContext)))

		_, defs, err := registry.Resolve(persona.Tools)
		if err != nil {
			continue
		}
		if encoded, err := json.Marshal(defs); err == nil {
			h.Write(encoded)
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
