package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/eldopolis/portal-core/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ServiceConfig, map[string]interface{}, error) {
	if configPath == "" {
		return nil, nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil, types.WrapError(err, "file not found: "+configPath)
	}

	data, err := l.readFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, nil, types.WrapError(err, "failed to read config file")
	}

	config := l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, nil, types.WrapError(err, "failed to parse YAML config")
	}

	rawData := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &rawData); err != nil {
		return nil, nil, types.WrapError(err, "failed to parse YAML config")
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, nil, types.WrapError(err, "config validation failed")
	}

	return config, rawData, nil
}

func (l *Loader) readFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

// Defaults carries the built-in content-type policy table; YAML values
// override it per type.
func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Server: &types.ServerConfig{
			HTTP: &types.HTTPConfig{
				Host:         "localhost",
				Port:         8080,
				ReadTimeout:  30,
				WriteTimeout: 30,
				IdleTimeout:  120,
				Compression:  true,
			},
		},
		Logger: &types.LoggerConfig{
			Level: "debug",
		},
		Cache: &types.CacheConfig{
			Enabled:    true,
			MaxEntries: 500,
			Durable:    "sqlite",
			Policies:   DefaultPolicies(),
		},
		Store: &types.StoreConfig{
			Type:         "clover",
			Path:         "data/content.db",
			ProbeTimeout: 1500,
		},
		Content: &types.ContentConfig{
			PageSize:      10,
			PinnedSponsor: "ucami",
		},
		Prefetch: &types.PrefetchConfig{
			Enabled:            true,
			PredictionDebounce: 10 * time.Second,
			ScheduleDebounce:   5 * time.Second,
			PredictionIdle:     120 * time.Second,
			ExecutionIdle:      90 * time.Second,
		},
		Currency: &types.CurrencyConfig{
			Enabled: false,
			Timeout: 10 * time.Second,
		},
		Events: &types.EventsConfig{
			Enabled:        false,
			ReconnectDelay: 5 * time.Second,
			MaxRetries:     10,
			PingInterval:   30 * time.Second,
		},
		Cron: &types.CronConfig{
			Enabled:  true,
			Timezone: "UTC",
		},
		Metrics: &types.MetricsConfig{
			Enabled:   false,
			Path:      "/metrics",
			Namespace: "eldopolis",
			GoMetrics: true,
		},
		Health: &types.HealthConfig{
			Enabled: true,
		},
	}
}

// DefaultPolicies is the static freshness table for cached content.
func DefaultPolicies() map[types.ContentType]types.TypePolicy {
	return map[types.ContentType]types.TypePolicy{
		types.ContentNews:       {TTL: 30 * time.Minute, Version: "1.0"},
		types.ContentCategories: {TTL: 2 * time.Hour, Version: "1.0"},
		types.ContentAds:        {TTL: time.Hour, Version: "1.0"},
		types.ContentTags:       {TTL: 45 * time.Minute, Version: "1.0"},
		types.ContentCurrency:   {TTL: 15 * time.Minute, Version: "1.0"},
		types.ContentStatic:     {TTL: 24 * time.Hour, Version: "1.0"},
	}
}
