package cache

import (
	"bytes"
	"encoding/base64"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/types"
	"github.com/eldopolis/portal-core/utils"
)

// Durable payloads above this size are base64-wrapped. This only obscures
// the payload in storage inspection tools; it is not compression and the
// durable quota still sees the full encoded length.
const encodeThreshold = 2000

var encodePrefix = []byte("b64:")

// TieredStore layers the transient MemoryTier over a DurableTier. Reads
// check memory first; a durable hit is validated against the type policy,
// promoted into memory and served from there on the next read. Expiry is
// lazy on read; ClearExpired exists only to reclaim space proactively.
type TieredStore struct {
	logger   types.Logger
	policies *PolicyTable
	memory   *MemoryTier
	durable  types.DurableTier
	now      func() time.Time
	started  int32
}

func NewTieredStore(logger types.Logger, policies *PolicyTable, memory *MemoryTier, durable types.DurableTier) *TieredStore {
	return &TieredStore{
		logger:   logger,
		policies: policies,
		memory:   memory,
		durable:  durable,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (t *TieredStore) WithClock(now func() time.Time) *TieredStore {
	t.now = now
	return t
}

// Set writes the transient tier unconditionally and then attempts the
// durable tier. A durable failure triggers one expired-entry sweep and is
// not retried; the caller never sees it.
func (t *TieredStore) Set(key string, value interface{}, contentType types.ContentType) error {
	if key == "" {
		t.logger.Error("Attempted to set cache entry with empty key")
		return types.ErrCacheKeyEmpty
	}

	policy := t.policies.Resolve(contentType)
	now := t.now()

	t.memory.Set(key, &memoryEntry{
		value:     value,
		timestamp: now,
		version:   policy.Version,
		ttl:       policy.TTL,
	})

	if t.durable == nil {
		return nil
	}

	payload, err := t.encodeEntry(value, now, policy)
	if err != nil {
		t.logger.Warn("Failed to serialize cache entry for durable tier",
			zap.String("key", key), zap.Error(err))
		return nil
	}

	if err := t.durable.Write(key, payload); err != nil {
		t.logger.Warn("Durable cache write failed, sweeping expired entries",
			zap.String("key", key), zap.Error(err))
		t.sweepDurable(now)
	}

	return nil
}

// Get resolves key through both tiers. Returns false on any miss, expiry,
// version mismatch or corrupt durable entry; the offending durable entry
// is deleted so the next read goes straight to the remote store.
func (t *TieredStore) Get(key string, contentType types.ContentType, target interface{}) bool {
	policy := t.policies.Resolve(contentType)
	now := t.now()

	if entry, ok := t.memory.Get(key, now); ok {
		if entry.version != policy.Version {
			t.memory.Delete(key)
		} else if assign(target, entry.value) {
			return true
		}
	}

	if t.durable == nil {
		return false
	}

	payload, ok := t.durable.Read(key)
	if !ok {
		return false
	}

	entry, err := t.decodeEntry(payload)
	if err != nil {
		t.logger.Warn("Corrupt durable cache entry dropped",
			zap.String("key", key), zap.Error(err))
		_ = t.durable.Delete(key)
		return false
	}

	if entry.Version != policy.Version || entry.Expired(now) {
		_ = t.durable.Delete(key)
		return false
	}

	if err := utils.UnmarshalInto(entry.Data, target); err != nil {
		t.logger.Warn("Corrupt durable cache payload dropped",
			zap.String("key", key), zap.Error(err))
		_ = t.durable.Delete(key)
		return false
	}

	t.memory.Set(key, &memoryEntry{
		value:     reflect.ValueOf(target).Elem().Interface(),
		timestamp: entry.Timestamp,
		version:   entry.Version,
		ttl:       entry.TTL,
	})

	return true
}

// Invalidate deletes every key containing pattern from both tiers.
func (t *TieredStore) Invalidate(pattern string) error {
	if pattern == "" {
		return types.ErrInvalidParameter
	}

	removed := t.memory.Invalidate(pattern)

	if t.durable != nil {
		keys, err := t.durable.Keys()
		if err != nil {
			return types.WrapError(err, "failed to list durable keys for invalidation")
		}

		for _, key := range keys {
			if strings.Contains(key, pattern) {
				if err := t.durable.Delete(key); err == nil {
					removed++
				}
			}
		}
	}

	t.logger.Debug("Cache invalidated",
		zap.String("pattern", pattern), zap.Int("removed", removed))

	return nil
}

// ClearExpired sweeps both tiers. Correctness never depends on it; Get
// self-heals on read.
func (t *TieredStore) ClearExpired() error {
	now := t.now()

	removed := t.memory.ClearExpired(now)
	removed += t.sweepDurable(now)

	if removed > 0 {
		t.logger.Debug("Expired cache entries cleared", zap.Int("removed", removed))
	}

	return nil
}

func (t *TieredStore) Start() error {
	if !atomic.CompareAndSwapInt32(&t.started, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	if t.durable != nil {
		if err := t.durable.Start(); err != nil && !types.IsError(err, types.ErrServerAlreadyRunning) {
			return err
		}
	}

	t.logger.Info("Tiered cache store started")
	return nil
}

func (t *TieredStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&t.started, 1, 0) {
		return types.ErrServerNotRunning
	}

	if t.durable != nil {
		if err := t.durable.Stop(); err != nil && !types.IsError(err, types.ErrServerNotRunning) {
			return err
		}
	}

	t.logger.Info("Tiered cache store stopped gracefully")
	return nil
}

func (t *TieredStore) IsRunning() bool {
	return atomic.LoadInt32(&t.started) == 1
}

func (t *TieredStore) encodeEntry(value interface{}, now time.Time, policy types.TypePolicy) ([]byte, error) {
	data, err := utils.Marshal(value)
	if err != nil {
		return nil, err
	}

	payload, err := utils.Marshal(&types.CacheEntry{
		Data:      data,
		Timestamp: now,
		Version:   policy.Version,
		TTL:       policy.TTL,
	})
	if err != nil {
		return nil, err
	}

	if len(payload) > encodeThreshold {
		encoded := make([]byte, len(encodePrefix)+base64.StdEncoding.EncodedLen(len(payload)))
		copy(encoded, encodePrefix)
		base64.StdEncoding.Encode(encoded[len(encodePrefix):], payload)
		return encoded, nil
	}

	return payload, nil
}

func (t *TieredStore) decodeEntry(payload []byte) (*types.CacheEntry, error) {
	if bytes.HasPrefix(payload, encodePrefix) {
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(payload)-len(encodePrefix)))
		n, err := base64.StdEncoding.Decode(decoded, payload[len(encodePrefix):])
		if err != nil {
			return nil, types.WrapError(err, "failed to decode durable payload")
		}
		payload = decoded[:n]
	}

	var entry types.CacheEntry
	if err := utils.Unmarshal(payload, &entry); err != nil {
		return nil, types.Errorf(types.ErrCacheEntryCorrupt, "%v", err)
	}

	return &entry, nil
}

func (t *TieredStore) sweepDurable(now time.Time) int {
	if t.durable == nil {
		return 0
	}

	keys, err := t.durable.Keys()
	if err != nil {
		t.logger.Warn("Durable sweep failed to list keys", zap.Error(err))
		return 0
	}

	removed := 0
	for _, key := range keys {
		payload, ok := t.durable.Read(key)
		if !ok {
			continue
		}

		entry, err := t.decodeEntry(payload)
		if err != nil || entry.Expired(now) {
			if t.durable.Delete(key) == nil {
				removed++
			}
		}
	}

	return removed
}

// assign copies value into the pointer target without another round of
// serialization. Returns false when the stored type does not match what
// the caller asked for.
func assign(target, value interface{}) bool {
	targetValue := reflect.ValueOf(target)
	if targetValue.Kind() != reflect.Ptr || targetValue.IsNil() {
		return false
	}

	if value == nil {
		return false
	}

	sourceValue := reflect.ValueOf(value)
	if !sourceValue.Type().AssignableTo(targetValue.Elem().Type()) {
		return false
	}

	targetValue.Elem().Set(sourceValue)
	return true
}
