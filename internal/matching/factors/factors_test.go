package factors

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"advisor-match-engine/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestProvider() *models.Provider {
	return &models.Provider{
		ID:        "advisor-1",
		Name:      "Test Advisor",
		Languages: []string{"english", "french"},
		Expertise: []string{"tax planning", "retirement planning"},
		Location:  "Austin, TX",
		AvailableSlots: []models.TimeSlot{
			{Day: "monday", Start: "09:00", End: "10:00", Available: true},
			{Day: "tuesday", Start: "09:00", End: "10:00", Available: true},
		},
	}
}

func createTestSeeker() *models.Seeker {
	return &models.Seeker{
		ID:                 "client-1",
		PreferredLanguages: []string{"english"},
		ServiceNeeds:       []string{"tax planning"},
		RiskTolerance:      models.RiskLow,
		Location:           "Austin, TX",
	}
}

// ==========================
// Language
// ==========================

func TestLanguage(t *testing.T) {
	tests := []struct {
		name          string
		provider      []string
		seeker        []string
		expectedScore int
		explanation   string
	}{
		{
			name:          "provider speaks all preferred languages",
			provider:      []string{"english", "french"},
			seeker:        []string{"english"},
			expectedScore: 10,
			explanation:   "Speaks all your preferred languages",
		},
		{
			name:          "case and whitespace insensitive",
			provider:      []string{"English "},
			seeker:        []string{"ENGLISH"},
			expectedScore: 10,
			explanation:   "Speaks all your preferred languages",
		},
		{
			name:          "partial overlap is floored",
			provider:      []string{"english"},
			seeker:        []string{"english", "spanish", "german"},
			expectedScore: 3,
			explanation:   "Speaks 1 of your 3 preferred languages",
		},
		{
			name:          "no overlap",
			provider:      []string{"french"},
			seeker:        []string{"english"},
			expectedScore: 0,
		},
		{
			name:          "empty seeker set",
			provider:      []string{"english"},
			seeker:        nil,
			expectedScore: 0,
		},
		{
			name:          "empty provider set",
			provider:      []string{},
			seeker:        []string{"english"},
			expectedScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := createTestProvider()
			p.Languages = tt.provider
			s := createTestSeeker()
			s.PreferredLanguages = tt.seeker

			got := Language(Input{Provider: p, Seeker: s})

			assert.Equal(t, tt.expectedScore, got.Score)
			assert.Equal(t, tt.explanation, got.Explanation)
		})
	}
}

func TestLanguage_Monotonic(t *testing.T) {
	p := createTestProvider()
	p.Languages = []string{"english", "french", "arabic", "hindi"}

	base := []string{"english", "spanish", "german", "italian"}
	s := createTestSeeker()
	s.PreferredLanguages = base
	before := Language(Input{Provider: p, Seeker: s}).Score

	for _, added := range []string{"french", "arabic", "hindi"} {
		s.PreferredLanguages = append(append([]string{}, s.PreferredLanguages...), added)
		after := Language(Input{Provider: p, Seeker: s}).Score
		assert.GreaterOrEqual(t, after, before, "adding %q must not decrease the score", added)
		before = after
	}
}

// ==========================
// Expertise
// ==========================

func TestExpertise(t *testing.T) {
	tests := []struct {
		name          string
		needs         []string
		expertise     []string
		expectedScore int
		explanation   string
	}{
		{
			name:          "full coverage",
			needs:         []string{"tax planning"},
			expertise:     []string{"tax planning", "insurance"},
			expectedScore: 15,
			explanation:   "Specializes in all of your service needs",
		},
		{
			name:          "majority coverage",
			needs:         []string{"tax", "retirement", "insurance"},
			expertise:     []string{"tax", "retirement"},
			expectedScore: 10,
			explanation:   "Covers most of your service needs (2 of 3)",
		},
		{
			name:          "half coverage is partial tier",
			needs:         []string{"tax", "retirement"},
			expertise:     []string{"tax"},
			expectedScore: 7,
			explanation:   "Has expertise in 1 of 2 of your service needs",
		},
		{
			name:          "no coverage",
			needs:         []string{"tax"},
			expertise:     []string{"insurance"},
			expectedScore: 0,
		},
		{
			name:          "no needs",
			needs:         nil,
			expertise:     []string{"insurance"},
			expectedScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := createTestProvider()
			p.Expertise = tt.expertise
			s := createTestSeeker()
			s.ServiceNeeds = tt.needs

			got := Expertise(Input{Provider: p, Seeker: s})

			assert.Equal(t, tt.expectedScore, got.Score)
			assert.Equal(t, tt.explanation, got.Explanation)
		})
	}
}

// ==========================
// Risk Alignment
// ==========================

func TestRiskAlignment(t *testing.T) {
	tests := []struct {
		name          string
		tolerance     string
		expertise     []string
		expectedScore int
	}{
		{"one recommended category", models.RiskLow, []string{"tax planning"}, 5},
		{"two categories reach the cap", models.RiskLow, []string{"tax planning", "insurance"}, 10},
		{"capped at maximum", models.RiskLow, []string{"tax planning", "insurance", "estate planning"}, 10},
		{"high tolerance", "High", []string{"wealth management"}, 5},
		{"unknown tolerance", "reckless", []string{"wealth management"}, 0},
		{"nothing recommended offered", models.RiskHigh, []string{"insurance"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := createTestProvider()
			p.Expertise = tt.expertise
			s := createTestSeeker()
			s.RiskTolerance = tt.tolerance

			got := RiskAlignment(Input{Provider: p, Seeker: s})

			assert.Equal(t, tt.expectedScore, got.Score)
			assert.LessOrEqual(t, got.Score, RiskWeight)
			assert.Equal(t, got.Score > 0, got.HasExplanation())
		})
	}
}

func TestRiskMatches(t *testing.T) {
	tests := []struct {
		name      string
		tolerance string
		expertise []string
		expected  []string
	}{
		{"recommended category offered", "Low", []string{"Tax Planning", "wealth management"}, []string{"tax planning"}},
		{"nothing recommended offered", models.RiskHigh, []string{"insurance"}, nil},
		{"unknown tolerance", "reckless", []string{"tax planning"}, nil},
		{"no expertise", models.RiskLow, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RiskMatches(tt.tolerance, tt.expertise)
			if tt.expected == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRecommendedCategories_ReturnsCopy(t *testing.T) {
	cats := RecommendedCategories("medium")
	cats[0] = "mutated"
	assert.NotEqual(t, "mutated", RecommendedCategories("medium")[0])
	assert.Nil(t, RecommendedCategories(""))
}

// ==========================
// Availability
// ==========================

func TestAvailability(t *testing.T) {
	tests := []struct {
		name          string
		slots         []models.TimeSlot
		expectedScore int
		explanation   string
	}{
		{
			name:          "no slots",
			slots:         nil,
			expectedScore: 0,
			explanation:   "No availability listed",
		},
		{
			name: "two open slots",
			slots: []models.TimeSlot{
				{Day: "mon", Start: "09:00", End: "10:00", Available: true},
				{Day: "tue", Start: "09:00", End: "10:00", Available: true},
				{Day: "wed", Start: "09:00", End: "10:00", Available: false},
			},
			expectedScore: 2,
			explanation:   "Has 2 open time slots",
		},
		{
			name: "capped at five",
			slots: []models.TimeSlot{
				{Day: "mon", Start: "09:00", End: "10:00", Available: true},
				{Day: "mon", Start: "10:00", End: "11:00", Available: true},
				{Day: "mon", Start: "11:00", End: "12:00", Available: true},
				{Day: "tue", Start: "09:00", End: "10:00", Available: true},
				{Day: "tue", Start: "10:00", End: "11:00", Available: true},
				{Day: "tue", Start: "11:00", End: "12:00", Available: true},
				{Day: "wed", Start: "09:00", End: "10:00", Available: true},
			},
			expectedScore: 5,
			explanation:   "Has 7 open time slots",
		},
		{
			name: "all malformed",
			slots: []models.TimeSlot{
				{Day: "", Start: "09:00", End: "10:00", Available: true},
				{Day: "mon", Start: "nine", End: "10:00", Available: true},
				{Day: "mon", Start: "11:00", End: "10:00", Available: true},
			},
			expectedScore: 0,
			explanation:   "Availability information could not be read",
		},
		{
			name: "malformed slots skipped",
			slots: []models.TimeSlot{
				{Day: "mon", Start: "25:00", End: "26:00", Available: true},
				{Day: "mon", Start: "09:00", End: "09:30", Available: true},
			},
			expectedScore: 1,
			explanation:   "Has 1 open time slot",
		},
		{
			name: "only unavailable slots",
			slots: []models.TimeSlot{
				{Day: "mon", Start: "09:00", End: "10:00", Available: false},
			},
			expectedScore: 0,
			explanation:   "No open time slots at the moment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := createTestProvider()
			p.AvailableSlots = tt.slots

			var got Result
			assert.NotPanics(t, func() { got = Availability(Input{Provider: p}) })
			assert.Equal(t, tt.expectedScore, got.Score)
			assert.Equal(t, tt.explanation, got.Explanation)
		})
	}
}

// ==========================
// Call Interaction
// ==========================

func TestCallInteraction(t *testing.T) {
	tests := []struct {
		name          string
		metrics       *models.InteractionMetrics
		expectedScore int
	}{
		{"no metrics", nil, 0},
		{"zero calls", &models.InteractionMetrics{}, 0},
		{
			name:          "single short completed call",
			metrics:       &models.InteractionMetrics{CallCount: 1, TotalDurationSeconds: 240, CompletedCalls: 1},
			expectedScore: 1 + 0 + 5,
		},
		{
			name:          "each bonus capped independently",
			metrics:       &models.InteractionMetrics{CallCount: 12, TotalDurationSeconds: 3 * 3600, CompletedCalls: 12},
			expectedScore: 15,
		},
		{
			name:          "partial completion",
			metrics:       &models.InteractionMetrics{CallCount: 4, TotalDurationSeconds: 20 * 60, CompletedCalls: 2, MissedCalls: 2},
			expectedScore: 4 + 4 + 2,
		},
		{
			name:          "negative duration ignored",
			metrics:       &models.InteractionMetrics{CallCount: 2, TotalDurationSeconds: -600},
			expectedScore: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CallInteraction(Input{Metrics: tt.metrics})
			assert.Equal(t, tt.expectedScore, got.Score)
			assert.LessOrEqual(t, got.Score, InteractionWeight)
		})
	}
}

// ==========================
// Exclusion & Location
// ==========================

func TestExclusion(t *testing.T) {
	p := createTestProvider()

	none := Exclusion(Input{Provider: p, Preferences: models.Preferences{ExcludedCategories: []string{"crypto"}}})
	assert.Equal(t, Result{}, none)

	hit := Exclusion(Input{Provider: p, Preferences: models.Preferences{ExcludedCategories: []string{"Tax Planning"}}})
	assert.Equal(t, -ExclusionPenalty, hit.Score)
	assert.Contains(t, hit.Explanation, "tax planning")
	assert.Contains(t, hit.Explanation, "Warning")
}

func TestLocation(t *testing.T) {
	p := createTestProvider()
	s := createTestSeeker()

	assert.Equal(t, LocationWeight, Location(Input{Provider: p, Seeker: s}).Score)

	s.Location = "Dallas, TX"
	assert.Equal(t, LocationWeight/2, Location(Input{Provider: p, Seeker: s}).Score)

	s.Location = "Boston, MA"
	assert.Equal(t, 0, Location(Input{Provider: p, Seeker: s}).Score)

	s.Location = ""
	assert.Equal(t, 0, Location(Input{Provider: p, Seeker: s}).Score)
}

func TestScorers_TotalOnNilInputs(t *testing.T) {
	for _, f := range append(Standard(), Factor{Name: "exclusion", Score: Exclusion}) {
		t.Run(f.Name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				got := f.Score(Input{})
				assert.LessOrEqual(t, got.Score, f.MaxScore)
			})
		})
	}
}
