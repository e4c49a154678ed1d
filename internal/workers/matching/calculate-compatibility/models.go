// internal/workers/matching/calculate-compatibility/models.go
package calculatecompatibility

import (
	"encoding/json"

	"advisor-match-engine/internal/models"
)

type Input struct {
	ProviderID  string                      `json:"providerId"`
	SeekerID    string                      `json:"seekerId"`
	Strategy    string                      `json:"strategy,omitempty"`
	Preferences json.RawMessage             `json:"preferences,omitempty"`
	Metrics     []models.InteractionMetrics `json:"metrics,omitempty"`
}

type Output struct {
	Score        int      `json:"score"`
	Explanations []string `json:"explanations"`
}

const inputSchema = `{
  "type": "object",
  "required": ["providerId", "seekerId"],
  "properties": {
    "providerId": {"type": "string", "minLength": 1},
    "seekerId": {"type": "string", "minLength": 1},
    "strategy": {"type": "string"},
    "preferences": {"type": ["object", "null"]},
    "metrics": {"type": ["array", "null"], "items": {"type": "object"}}
  }
}`
