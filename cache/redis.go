package cache

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eldopolis/portal-core/types"
	"github.com/eldopolis/portal-core/utils"
)

type RedisConfig struct {
	Host               string        `json:"host"`
	Port               int           `json:"port"`
	Password           string        `json:"password"`
	DB                 int           `json:"db"`
	PoolSize           int           `json:"pool_size"`
	MinIdleConnections int           `json:"min_idle_connections"`
	DialTimeout        time.Duration `json:"dial_timeout"`
	ReadTimeout        time.Duration `json:"read_timeout"`
	WriteTimeout       time.Duration `json:"write_timeout"`
	KeyPrefix          string        `json:"key_prefix"`
}

// RedisTier is the durable cache tier backed by a shared redis instance.
// Entry TTLs are enforced by the tiered store on read; redis expiry is set
// to the policy maximum only as a safety net for abandoned keys.
type RedisTier struct {
	ctx     context.Context
	logger  types.Logger
	config  *RedisConfig
	client  *redis.Client
	started int32
}

func NewRedisTier(ctx context.Context, logger types.Logger, config interface{}) (types.DurableTier, error) {
	redisConfig := &RedisConfig{
		Host:               "localhost",
		Port:               6379,
		DB:                 0,
		PoolSize:           10,
		MinIdleConnections: 2,
		DialTimeout:        5 * time.Second,
		ReadTimeout:        3 * time.Second,
		WriteTimeout:       3 * time.Second,
		KeyPrefix:          "eldopolis:cache",
	}

	if config != nil {
		if err := utils.UnmarshalConfig(config, redisConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis tier config")
		}
	}

	tier := &RedisTier{
		ctx:    ctx,
		logger: logger,
		config: redisConfig,
	}

	tier.client = redis.NewClient(&redis.Options{
		Addr:         tier.addr(),
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		MinIdleConns: redisConfig.MinIdleConnections,
		DialTimeout:  redisConfig.DialTimeout,
		ReadTimeout:  redisConfig.ReadTimeout,
		WriteTimeout: redisConfig.WriteTimeout,
	})

	if err := tier.client.Ping(ctx).Err(); err != nil {
		return nil, types.WrapError(err, "failed to connect to redis")
	}

	return tier, nil
}

func (r *RedisTier) Read(key string) ([]byte, bool) {
	if key == "" {
		return nil, false
	}

	result, err := r.client.Get(r.ctx, r.fullKey(key)).Bytes()
	if err != nil {
		if !types.IsError(err, redis.Nil) {
			r.logger.Error("Failed to read durable cache entry",
				zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	return result, true
}

func (r *RedisTier) Write(key string, payload []byte) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	err := r.client.Set(r.ctx, r.fullKey(key), payload, MaxTTL).Err()
	if err != nil {
		r.logger.Error("Failed to write durable cache entry",
			zap.String("key", key), zap.Error(err))
		return types.Errorf(types.ErrCacheQuotaExceeded, "redis write: %v", err)
	}

	return nil
}

func (r *RedisTier) Delete(key string) error {
	if key == "" {
		return nil
	}

	if err := r.client.Del(r.ctx, r.fullKey(key)).Err(); err != nil {
		return types.WrapError(err, "failed to delete durable cache entry")
	}

	return nil
}

func (r *RedisTier) Keys() ([]string, error) {
	prefix := r.config.KeyPrefix + ":"
	var keys []string

	iter := r.client.Scan(r.ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(r.ctx) {
		keys = append(keys, iter.Val()[len(prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, types.WrapError(err, "failed to scan durable cache keys")
	}

	return keys, nil
}

func (r *RedisTier) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	r.logger.Info("Redis durable tier started", zap.String("addr", r.addr()))
	return nil
}

func (r *RedisTier) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.started, 1, 0) {
		return types.ErrServerNotRunning
	}

	if err := r.client.Close(); err != nil {
		return types.WrapError(err, "failed to close redis client")
	}

	r.logger.Info("Redis durable tier stopped gracefully")
	return nil
}

func (r *RedisTier) IsRunning() bool {
	return atomic.LoadInt32(&r.started) == 1
}

func (r *RedisTier) addr() string {
	return r.config.Host + ":" + strconv.Itoa(r.config.Port)
}

func (r *RedisTier) fullKey(key string) string {
	return r.config.KeyPrefix + ":" + key
}
