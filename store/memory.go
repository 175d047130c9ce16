package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/eldopolis/portal-core/types"
)

// MemoryStore is the in-process DocumentStore backend. It powers local
// development and tests, including per-collection access denial and an
// adjustable probe latency to exercise the connectivity timeout path.
type MemoryStore struct {
	collections map[string][]map[string]interface{}
	forbidden   map[string]bool
	probeDelay  time.Duration
	mutex       sync.RWMutex
	logger      types.Logger
	state       atomic.Value
}

func NewMemoryStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (types.DocumentStore, error) {
	ms := &MemoryStore{
		collections: make(map[string][]map[string]interface{}),
		forbidden:   make(map[string]bool),
		logger:      logger,
	}

	ms.state.Store(StateStopped)
	return ms, nil
}

func (m *MemoryStore) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	m.logger.Info("Memory store started")
	return nil
}

func (m *MemoryStore) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		m.setState(StateStopped)
	}()

	m.mutex.Lock()
	m.collections = make(map[string][]map[string]interface{})
	m.mutex.Unlock()

	m.logger.Info("Memory store stopped gracefully")
	return nil
}

func (m *MemoryStore) IsRunning() bool {
	return m.getState() == StateRunning
}

// Seed loads documents into a collection, assigning an id when missing.
func (m *MemoryStore) Seed(collection string, docs []map[string]interface{}) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, doc := range docs {
		docCopy := make(map[string]interface{})
		deepCopy(doc, docCopy)

		if _, exists := docCopy["id"]; !exists {
			docCopy["id"] = uuid.New().String()
		}

		m.collections[collection] = append(m.collections[collection], docCopy)
	}
}

// Forbid makes every subsequent read of collection fail with
// ErrCollectionForbidden, mimicking a per-collection permission denial.
func (m *MemoryStore) Forbid(collection string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.forbidden[collection] = true
}

// SetProbeDelay makes Ping take at least d before answering.
func (m *MemoryStore) SetProbeDelay(d time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.probeDelay = d
}

func (m *MemoryStore) QueryCollection(ctx context.Context, request types.QueryRequest) ([]map[string]interface{}, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.forbidden[request.Collection] {
		return nil, types.Errorf(types.ErrCollectionForbidden, "collection: %s", request.Collection)
	}

	collection, exists := m.collections[request.Collection]
	if !exists {
		return []map[string]interface{}{}, nil
	}

	results := make([]map[string]interface{}, 0, len(collection))
	for _, doc := range collection {
		if !matchesFilter(doc, request.Filter) {
			continue
		}

		if request.Cursor > 0 && request.OrderBy != "" {
			fieldValue, ok := toFloat64(doc[request.OrderBy])
			if !ok {
				continue
			}
			if request.Descending && fieldValue >= float64(request.Cursor) {
				continue
			}
			if !request.Descending && fieldValue <= float64(request.Cursor) {
				continue
			}
		}

		docCopy := make(map[string]interface{})
		deepCopy(doc, docCopy)
		results = append(results, docCopy)
	}

	if request.OrderBy != "" {
		sortDocuments(results, request.OrderBy, request.Descending)
	}

	if request.Limit > 0 && request.Limit < len(results) {
		results = results[:request.Limit]
	}

	return results, nil
}

func (m *MemoryStore) GetDocument(ctx context.Context, collection, id string) (map[string]interface{}, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.forbidden[collection] {
		return nil, types.Errorf(types.ErrCollectionForbidden, "collection: %s", collection)
	}

	for _, doc := range m.collections[collection] {
		if doc["id"] == id {
			docCopy := make(map[string]interface{})
			deepCopy(doc, docCopy)
			return docCopy, nil
		}
	}

	return nil, types.Errorf(types.ErrDocumentNotFound, "collection %s, id %s", collection, id)
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mutex.RLock()
	delay := m.probeDelay
	m.mutex.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return types.ErrStoreProbeTimeout
		}
	}

	select {
	case <-ctx.Done():
		return types.ErrStoreProbeTimeout
	default:
		return nil
	}
}

func deepCopy(src, dst map[string]interface{}) {
	for k, v := range src {
		switch val := v.(type) {
		case map[string]interface{}:
			nested := make(map[string]interface{})
			deepCopy(val, nested)
			dst[k] = nested
		case []interface{}:
			arr := make([]interface{}, len(val))
			copy(arr, val)
			dst[k] = arr
		default:
			dst[k] = v
		}
	}
}

func matchesFilter(doc map[string]interface{}, filter map[string]interface{}) bool {
	for key, value := range filter {
		if !matchesField(doc, key, value) {
			return false
		}
	}
	return true
}

func matchesField(doc map[string]interface{}, key string, filterValue interface{}) bool {
	keys := strings.Split(key, ".")
	current := doc

	for i, k := range keys {
		if i == len(keys)-1 {
			docValue, exists := current[k]
			if !exists {
				return false
			}
			return compareValues(docValue, filterValue)
		}

		next, exists := current[k]
		if !exists {
			return false
		}
		nextMap, ok := next.(map[string]interface{})
		if !ok {
			return false
		}
		current = nextMap
	}

	return false
}

func compareValues(docValue, filterValue interface{}) bool {
	switch filter := filterValue.(type) {
	case map[string]interface{}:
		for op, value := range filter {
			switch op {
			case "$eq":
				return looseEqual(docValue, value)
			case "$ne":
				return !looseEqual(docValue, value)
			case "$gt":
				return compareNumbers(docValue, value, ">")
			case "$gte":
				return compareNumbers(docValue, value, ">=")
			case "$lt":
				return compareNumbers(docValue, value, "<")
			case "$lte":
				return compareNumbers(docValue, value, "<=")
			case "$in":
				if arr, ok := value.([]interface{}); ok {
					for _, v := range arr {
						if looseEqual(docValue, v) {
							return true
						}
					}
				}
				return false
			case "$contains":
				docArr, ok := docValue.([]interface{})
				if !ok {
					return false
				}
				wanted, ok := value.([]interface{})
				if !ok {
					wanted = []interface{}{value}
				}
				for _, item := range docArr {
					for _, want := range wanted {
						if looseEqual(item, want) {
							return true
						}
					}
				}
				return false
			}
		}
		return false
	default:
		return looseEqual(docValue, filterValue)
	}
}

// looseEqual equates numeric values across int/float representations so a
// filter built from decoded JSON matches seeded Go literals.
func looseEqual(a, b interface{}) bool {
	if a == b {
		return true
	}
	aNum, aOk := toFloat64(a)
	bNum, bOk := toFloat64(b)
	if aOk && bOk {
		return aNum == bNum
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareNumbers(a, b interface{}, op string) bool {
	aVal, aOk := toFloat64(a)
	bVal, bOk := toFloat64(b)

	if !aOk || !bOk {
		return false
	}

	switch op {
	case ">":
		return aVal > bVal
	case ">=":
		return aVal >= bVal
	case "<":
		return aVal < bVal
	case "<=":
		return aVal <= bVal
	}
	return false
}

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func sortDocuments(docs []map[string]interface{}, field string, descending bool) {
	sort.SliceStable(docs, func(i, j int) bool {
		left, leftOk := toFloat64(docs[i][field])
		right, rightOk := toFloat64(docs[j][field])

		if leftOk && rightOk {
			if descending {
				return left > right
			}
			return left < right
		}

		leftStr := fmt.Sprintf("%v", docs[i][field])
		rightStr := fmt.Sprintf("%v", docs[j][field])
		if descending {
			return leftStr > rightStr
		}
		return leftStr < rightStr
	})
}

func (m *MemoryStore) getState() State {
	return m.state.Load().(State)
}

func (m *MemoryStore) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *MemoryStore) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}
