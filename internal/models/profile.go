// internal/models/profile.go
package models

// Provider is an advisor offering services. Profiles are read-only inputs to scoring.
type Provider struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Languages      []string   `json:"languages"`
	Expertise      []string   `json:"expertise"`
	HourlyRate     float64    `json:"hourlyRate"`
	Location       string     `json:"location,omitempty"`
	AvailableSlots []TimeSlot `json:"availableSlots"`
}

// Seeker is a client looking for an advisor.
type Seeker struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	PreferredLanguages []string `json:"preferredLanguages"`
	ServiceNeeds       []string `json:"serviceNeeds"`
	RiskTolerance      string   `json:"riskTolerance"`
	Budget             float64  `json:"budget"`
	Location           string   `json:"location,omitempty"`
}

// TimeSlot is one weekly slot on a provider's calendar. Start and End are "HH:MM".
type TimeSlot struct {
	Day       string `json:"day"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}

// Risk tolerance levels understood by the risk alignment factor.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)
