// Package persistence keeps computed scores in durable storage so they
// survive restarts and can be ranked across candidate sets.
package persistence

import (
	"context"
	"time"
)

// StoredScore is one persisted score for a provider/seeker pair.
// Fingerprint identifies the strategy and preferences it was computed under.
type StoredScore struct {
	ProviderID   string    `json:"providerId"`
	SeekerID     string    `json:"seekerId"`
	Score        int       `json:"score"`
	Explanations []string  `json:"explanations"`
	Fingerprint  string    `json:"fingerprint"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store is a durable score store keyed by (providerID, seekerID).
// GetStored returns nil, nil on a miss.
type Store interface {
	GetStored(ctx context.Context, providerID, seekerID string) (*StoredScore, error)
	Store(ctx context.Context, score StoredScore) (bool, error)
	TopMatchesForSeeker(ctx context.Context, seekerID string, n int) ([]StoredScore, error)
	TopMatchesForProvider(ctx context.Context, providerID string, n int) ([]StoredScore, error)
	DeleteByEntityID(ctx context.Context, id string) error
}
