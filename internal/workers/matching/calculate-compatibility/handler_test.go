package calculatecompatibility

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"advisor-match-engine/internal/common/config"
	apperrors "advisor-match-engine/internal/common/errors"
	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/matching/cache"
	"advisor-match-engine/internal/matching/engine"
	"advisor-match-engine/internal/matching/strategy"
	"advisor-match-engine/internal/models"
	"advisor-match-engine/internal/profiles"
)

// ==========================
// Mock Scorer Implementation
// ==========================

type MockScorer struct {
	mock.Mock
}

func (m *MockScorer) CalculateScore(ctx context.Context, req engine.Request) (models.ScoreResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.ScoreResult), args.Error(1)
}

// ==========================
// Test Helpers
// ==========================

func createTestConfig() *Config {
	return LoadConfig(config.WorkerConfig{Timeout: 5000})
}

func variables(t *testing.T, v map[string]interface{}) string {
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

// ==========================
// Input Parsing
// ==========================

func TestParseInput(t *testing.T) {
	tests := []struct {
		name      string
		vars      map[string]interface{}
		expectErr bool
	}{
		{
			name: "minimal input",
			vars: map[string]interface{}{"providerId": "adv-1", "seekerId": "cl-1"},
		},
		{
			name: "full input",
			vars: map[string]interface{}{
				"providerId":  "adv-1",
				"seekerId":    "cl-1",
				"strategy":    "premium",
				"preferences": map[string]interface{}{"prioritizeLocation": true},
				"metrics":     []interface{}{map[string]interface{}{"callCount": 2}},
			},
		},
		{
			name:      "missing provider",
			vars:      map[string]interface{}{"seekerId": "cl-1"},
			expectErr: true,
		},
		{
			name:      "empty seeker",
			vars:      map[string]interface{}{"providerId": "adv-1", "seekerId": ""},
			expectErr: true,
		},
		{
			name:      "preferences of wrong type",
			vars:      map[string]interface{}{"providerId": "adv-1", "seekerId": "cl-1", "preferences": "all"},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := ParseInput(variables(t, tt.vars))
			if tt.expectErr {
				require.Error(t, err)
				assert.Equal(t, apperrors.ErrCodeInvalidJobInput, apperrors.AsStandardError(err).Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "adv-1", input.ProviderID)
		})
	}
}

// ==========================
// Execute
// ==========================

func TestHandler_Execute_PassesResolvedRequest(t *testing.T) {
	scorer := new(MockScorer)
	scorer.On("CalculateScore", mock.Anything, mock.MatchedBy(func(req engine.Request) bool {
		return req.ProviderID == "adv-1" &&
			req.Strategy == "premium" &&
			req.Preferences.PrioritizeLocation &&
			req.Preferences.PrioritizeLanguage &&
			len(req.Metrics) == 1
	})).Return(models.ScoreResult{Score: 77, Explanations: []string{"Speaks all your preferred languages"}}, nil)

	h := NewHandler(createTestConfig(), scorer, logger.NewTestLogger(t), nil)
	input, err := ParseInput(`{"providerId":"adv-1","seekerId":"cl-1","strategy":"premium",
		"preferences":{"prioritizeLocation":true},"metrics":[{"callCount":3}]}`)
	require.NoError(t, err)

	out, err := h.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 77, out.Score)
	assert.Equal(t, []string{"Speaks all your preferred languages"}, out.Explanations)
	scorer.AssertExpectations(t)
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode apperrors.ErrorCode
	}{
		{"unknown strategy", apperrors.NewUnknownStrategyError("gold"), apperrors.ErrCodeUnknownStrategy},
		{"profile store down", apperrors.NewProfileStoreUnavailableError(errors.New("refused")), apperrors.ErrCodeProfileStoreUnavailable},
		{"timeout", context.DeadlineExceeded, apperrors.ErrCodeDeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := new(MockScorer)
			scorer.On("CalculateScore", mock.Anything, mock.Anything).Return(models.ScoreResult{}, tt.err)

			h := NewHandler(createTestConfig(), scorer, logger.NewTestLogger(t), nil)
			_, err := h.Execute(context.Background(), &Input{ProviderID: "adv-1", SeekerID: "cl-1"})

			require.Error(t, err)
			assert.Equal(t, tt.expectedCode, apperrors.AsStandardError(err).Code)
		})
	}
}

func TestHandler_Execute_EmptyExplanationsEncodeAsArray(t *testing.T) {
	scorer := new(MockScorer)
	scorer.On("CalculateScore", mock.Anything, mock.Anything).Return(models.ScoreResult{Score: 10}, nil)

	h := NewHandler(createTestConfig(), scorer, logger.NewTestLogger(t), nil)
	out, err := h.Execute(context.Background(), &Input{ProviderID: "adv-1", SeekerID: "cl-1"})
	require.NoError(t, err)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":10,"explanations":[]}`, string(raw))
}

func TestHandler_Execute_WithEngine(t *testing.T) {
	store := profiles.NewMemoryStore()
	store.PutProvider(models.Provider{ID: "adv-1", Languages: []string{"english"}, Expertise: []string{"tax planning"}})
	store.PutSeeker(models.Seeker{ID: "cl-1", PreferredLanguages: []string{"english"}, ServiceNeeds: []string{"tax planning"}, RiskTolerance: models.RiskLow})

	set, err := strategy.NewSet(strategy.Deps{Profiles: store, Logger: logger.NewTestLogger(t)})
	require.NoError(t, err)
	eng := engine.New(engine.Config{BatchWindow: time.Millisecond}, set, cache.New(), logger.NewTestLogger(t))
	defer eng.Close()

	h := NewHandler(createTestConfig(), eng, logger.NewTestLogger(t), nil)
	out, err := h.Execute(context.Background(), &Input{ProviderID: "adv-1", SeekerID: "cl-1"})
	require.NoError(t, err)
	assert.Greater(t, out.Score, 0)
	assert.NotEmpty(t, out.Explanations)

	_, err = h.Execute(context.Background(), &Input{ProviderID: "adv-1", SeekerID: "cl-1", Strategy: "gold"})
	assert.Equal(t, apperrors.ErrCodeUnknownStrategy, apperrors.AsStandardError(err).Code)
}

func TestLoadConfig_DefaultTimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second, LoadConfig(config.WorkerConfig{}).Timeout)
	assert.Equal(t, 5*time.Second, createTestConfig().Timeout)
}
