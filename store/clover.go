package store

import (
	"context"
	"sync/atomic"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/types"
)

// CloverStore serves content collections from an embedded clover database.
// The portal treats the store as opaque: single-field filters server-side,
// everything else client-side, so no composite indexes are ever required.
type CloverStore struct {
	db     *clover.DB
	logger types.Logger
	config *types.StoreConfig
	state  atomic.Value
}

func NewCloverStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (types.DocumentStore, error) {
	db, err := clover.Open(config.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open clover store")
	}

	cs := &CloverStore{
		db:     db,
		logger: logger,
		config: config,
	}

	cs.state.Store(StateStopped)
	return cs, nil
}

func (c *CloverStore) Start() error {
	if !c.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if c.getState() == StateStarting {
			c.setState(StateRunning)
		}
	}()

	c.logger.Info("Clover store started", zap.String("path", c.config.Path))
	return nil
}

func (c *CloverStore) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		c.setState(StateStopped)
	}()

	if err := c.db.Close(); err != nil {
		return types.WrapError(err, "failed to close clover store")
	}

	c.logger.Info("Clover store stopped gracefully")
	return nil
}

func (c *CloverStore) IsRunning() bool {
	return c.getState() == StateRunning
}

func (c *CloverStore) QueryCollection(ctx context.Context, request types.QueryRequest) ([]map[string]interface{}, error) {
	exists, err := c.db.HasCollection(request.Collection)
	if err != nil {
		return nil, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		return []map[string]interface{}{}, nil
	}

	query := c.db.Query(request.Collection)

	contains := make(map[string][]interface{})
	for key, value := range request.Filter {
		query, contains = c.applyFieldFilter(query, key, value, contains)
	}

	if request.Cursor > 0 && request.OrderBy != "" {
		if request.Descending {
			query = query.Where(clover.Field(request.OrderBy).Lt(request.Cursor))
		} else {
			query = query.Where(clover.Field(request.OrderBy).Gt(request.Cursor))
		}
	}

	if request.OrderBy != "" {
		direction := 1
		if request.Descending {
			direction = -1
		}
		query = query.Sort(clover.SortOption{Field: request.OrderBy, Direction: direction})
	}

	// Contains-filters run client-side, so the limit is applied after them.
	if request.Limit > 0 && len(contains) == 0 {
		query = query.Limit(request.Limit)
	}

	cloverDocs, err := query.FindAll()
	if err != nil {
		return nil, types.Errorf(types.ErrStoreQueryFailed, "collection %s: %v", request.Collection, err)
	}

	var results []map[string]interface{}
	for _, doc := range cloverDocs {
		docMap := make(map[string]interface{})
		if err := doc.Unmarshal(&docMap); err != nil {
			continue
		}

		delete(docMap, "_id")

		if !matchesContains(docMap, contains) {
			continue
		}

		results = append(results, docMap)
		if request.Limit > 0 && len(results) == request.Limit {
			break
		}
	}

	if results == nil {
		results = []map[string]interface{}{}
	}

	return results, nil
}

func (c *CloverStore) GetDocument(ctx context.Context, collection, id string) (map[string]interface{}, error) {
	exists, err := c.db.HasCollection(collection)
	if err != nil {
		return nil, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		return nil, types.Errorf(types.ErrDocumentNotFound, "collection %s, id %s", collection, id)
	}

	doc, err := c.db.Query(collection).Where(clover.Field("id").Eq(id)).FindFirst()
	if err != nil {
		return nil, types.Errorf(types.ErrStoreQueryFailed, "collection %s: %v", collection, err)
	}

	if doc == nil {
		return nil, types.Errorf(types.ErrDocumentNotFound, "collection %s, id %s", collection, id)
	}

	docMap := make(map[string]interface{})
	if err := doc.Unmarshal(&docMap); err != nil {
		return nil, types.WrapError(err, "failed to decode document")
	}

	delete(docMap, "_id")
	return docMap, nil
}

// Ping answers whether the store is reachable within the context deadline.
// Clover calls do not take a context, so the check runs in a goroutine and
// the caller's deadline wins.
func (c *CloverStore) Ping(ctx context.Context) error {
	done := make(chan error, 1)

	go func() {
		_, err := c.db.HasCollection("news")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return types.Errorf(types.ErrStoreUnavailable, "%v", err)
		}
		return nil
	case <-ctx.Done():
		return types.ErrStoreProbeTimeout
	}
}

func (c *CloverStore) applyFieldFilter(query *clover.Query, key string, value interface{}, contains map[string][]interface{}) (*clover.Query, map[string][]interface{}) {
	switch val := value.(type) {
	case map[string]interface{}:
		for op, opValue := range val {
			switch op {
			case "$eq":
				query = query.Where(clover.Field(key).Eq(opValue))
			case "$ne":
				query = query.Where(clover.Field(key).Neq(opValue))
			case "$gt":
				query = query.Where(clover.Field(key).Gt(opValue))
			case "$gte":
				query = query.Where(clover.Field(key).GtEq(opValue))
			case "$lt":
				query = query.Where(clover.Field(key).Lt(opValue))
			case "$lte":
				query = query.Where(clover.Field(key).LtEq(opValue))
			case "$in":
				if arr, ok := opValue.([]interface{}); ok {
					query = query.Where(clover.Field(key).In(arr...))
				}
			case "$contains":
				// Array membership is not expressible in a clover criteria;
				// collected here and matched after decoding.
				if arr, ok := opValue.([]interface{}); ok {
					contains[key] = arr
				} else {
					contains[key] = []interface{}{opValue}
				}
			}
		}
	default:
		query = query.Where(clover.Field(key).Eq(value))
	}

	return query, contains
}

func matchesContains(doc map[string]interface{}, contains map[string][]interface{}) bool {
	for key, wanted := range contains {
		docValue, exists := doc[key]
		if !exists {
			return false
		}

		arr, ok := docValue.([]interface{})
		if !ok {
			return false
		}

		found := false
		for _, item := range arr {
			for _, want := range wanted {
				if item == want {
					found = true
					break
				}
			}
			if found {
				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}

func (c *CloverStore) getState() State {
	return c.state.Load().(State)
}

func (c *CloverStore) setState(newState State) bool {
	currentState := c.getState()
	return c.state.CompareAndSwap(currentState, newState)
}

func (c *CloverStore) transitionState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}
