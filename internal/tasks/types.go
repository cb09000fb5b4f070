package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeModelCacheRefresh = "cache:model_refresh"
	TypeProfileSync       = "profile:sync"
)

// ModelCacheRefreshPayload targets a single provider, or every active
// provider when ProviderID is nil.
type ModelCacheRefreshPayload struct {
	ProviderID *uuid.UUID `json:"provider_id,omitempty"`
}

type ProfileSyncPayload struct{}

func NewModelCacheRefreshTask(providerID *uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(ModelCacheRefreshPayload{ProviderID: providerID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeModelCacheRefresh, payload), nil
}

func NewProfileSyncTask() (*asynq.Task, error) {
	payload, err := json.Marshal(ProfileSyncPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeProfileSync, payload, asynq.Queue("low")), nil
}
