package store

import (
	"context"

	"github.com/eldopolis/portal-core/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var customStoreCreators = make(map[string]types.DocumentStoreCreator)

// RegisterDocumentStore installs an additional backend selectable through
// StoreConfig.Type.
func RegisterDocumentStore(storeType string, creator types.DocumentStoreCreator) {
	customStoreCreators[storeType] = creator
}

func NewDocumentStore(ctx context.Context, storeConfig *types.StoreConfig, logger types.Logger) (types.DocumentStore, error) {
	if storeConfig == nil {
		return nil, types.ErrStoreConfigMissing
	}

	switch storeConfig.Type {
	case "clover":
		return NewCloverStore(ctx, logger, storeConfig)
	case "memory":
		return NewMemoryStore(ctx, logger, storeConfig)
	default:
		if creator, exists := customStoreCreators[storeConfig.Type]; exists {
			return creator(storeConfig)
		}
		return nil, types.Errorf(types.ErrStoreTypeUnknown, "type: %s", storeConfig.Type)
	}
}
