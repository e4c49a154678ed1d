package profiles

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"

	apperrors "advisor-match-engine/internal/common/errors"
	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/models"
)

const (
	DefaultProviderIndex = "advisors"
	DefaultSeekerIndex   = "clients"
)

// ElasticsearchStore reads profiles from the directory indices maintained by
// the profile service. Documents are stored with the profile JSON as _source.
type ElasticsearchStore struct {
	client        *elasticsearch.Client
	providerIndex string
	seekerIndex   string
	logger        logger.Logger
}

func NewElasticsearchStore(client *elasticsearch.Client, providerIndex, seekerIndex string, log logger.Logger) *ElasticsearchStore {
	if providerIndex == "" {
		providerIndex = DefaultProviderIndex
	}
	if seekerIndex == "" {
		seekerIndex = DefaultSeekerIndex
	}
	return &ElasticsearchStore{
		client:        client,
		providerIndex: providerIndex,
		seekerIndex:   seekerIndex,
		logger:        log.WithFields(map[string]interface{}{"component": "profiles.elasticsearch"}),
	}
}

type getResponse struct {
	Found  bool            `json:"found"`
	Source json.RawMessage `json:"_source"`
}

func (s *ElasticsearchStore) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	var p models.Provider
	if err := s.get(ctx, s.providerIndex, "provider", id, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}

func (s *ElasticsearchStore) GetSeeker(ctx context.Context, id string) (*models.Seeker, error) {
	var sk models.Seeker
	if err := s.get(ctx, s.seekerIndex, "seeker", id, &sk); err != nil {
		return nil, err
	}
	if sk.ID == "" {
		sk.ID = id
	}
	return &sk, nil
}

func (s *ElasticsearchStore) get(ctx context.Context, index, kind, id string, dest interface{}) error {
	res, err := s.client.Get(index, id, s.client.Get.WithContext(ctx))
	if err != nil {
		return apperrors.NewProfileStoreUnavailableError(err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if res.IsError() {
		return apperrors.NewProfileStoreUnavailableError(fmt.Errorf("elasticsearch get %s/%s: %s", index, id, res.Status()))
	}

	var doc getResponse
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return apperrors.NewProfileStoreUnavailableError(fmt.Errorf("decode %s document: %w", kind, err))
	}
	if !doc.Found {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err := json.Unmarshal(doc.Source, dest); err != nil {
		s.logger.Warn("malformed profile document", map[string]interface{}{
			"index": index,
			"id":    id,
			"error": err,
		})
		return apperrors.NewProfileStoreUnavailableError(err)
	}
	return nil
}
