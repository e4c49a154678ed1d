// internal/workers/matching/batch-calculate-compatibility/models.go
package batchcalculatecompatibility

import (
	"encoding/json"

	"advisor-match-engine/internal/models"
)

type Input struct {
	SeekerID    string                      `json:"seekerId"`
	ProviderIDs []string                    `json:"providerIds"`
	Strategy    string                      `json:"strategy,omitempty"`
	Preferences json.RawMessage             `json:"preferences,omitempty"`
	Metrics     []models.InteractionMetrics `json:"metrics,omitempty"`
}

type ItemResult struct {
	ProviderID   string   `json:"providerId"`
	Score        int      `json:"score"`
	Explanations []string `json:"explanations"`
	Error        string   `json:"error,omitempty"`
}

type Output struct {
	Results   []ItemResult `json:"results"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

const inputSchema = `{
  "type": "object",
  "required": ["seekerId", "providerIds"],
  "properties": {
    "seekerId": {"type": "string", "minLength": 1},
    "providerIds": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    },
    "strategy": {"type": "string"},
    "preferences": {"type": ["object", "null"]},
    "metrics": {"type": ["array", "null"], "items": {"type": "object"}}
  }
}`
