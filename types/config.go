package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name     string          `yaml:"name" json:"name" validate:"required"`
	Version  string          `yaml:"version" json:"version" validate:"required"`
	Server   *ServerConfig   `yaml:"server" json:"server"`
	Logger   *LoggerConfig   `yaml:"logger" json:"logger"`
	Cache    *CacheConfig    `yaml:"cache" json:"cache"`
	Store    *StoreConfig    `yaml:"store" json:"store"`
	Content  *ContentConfig  `yaml:"content" json:"content"`
	Prefetch *PrefetchConfig `yaml:"prefetch" json:"prefetch"`
	Currency *CurrencyConfig `yaml:"currency" json:"currency"`
	Events   *EventsConfig   `yaml:"events" json:"events"`
	Cron     *CronConfig     `yaml:"cron" json:"cron"`
	Metrics  *MetricsConfig  `yaml:"metrics" json:"metrics"`
	Health   *HealthConfig   `yaml:"health" json:"health"`
}

type ServerConfig struct {
	HTTP *HTTPConfig `yaml:"http" json:"http"`
}

type HTTPConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     int    `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	Compression     bool   `yaml:"compression" json:"compression"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

// CacheConfig wires the two tiers. Durable selects the persistent backend
// ("redis" or "sqlite"); Policies overrides the built-in per-type TTL and
// version table.
type CacheConfig struct {
	Enabled    bool                       `yaml:"enabled" json:"enabled"`
	MaxEntries int                        `yaml:"max_entries" json:"max_entries"`
	Durable    string                     `yaml:"durable" json:"durable" validate:"required_if=Enabled true"`
	Config     interface{}                `yaml:"config" json:"config"`
	Policies   map[ContentType]TypePolicy `yaml:"policies" json:"policies"`
}

type StoreConfig struct {
	Type         string `yaml:"type" json:"type" validate:"required"`
	Path         string `yaml:"path" json:"path"`
	ProbeTimeout int    `yaml:"probe_timeout_ms" json:"probe_timeout_ms"`
}

type ContentConfig struct {
	PageSize      int    `yaml:"page_size" json:"page_size" validate:"min=1"`
	PinnedSponsor string `yaml:"pinned_sponsor" json:"pinned_sponsor"`
}

type PrefetchConfig struct {
	Enabled            bool          `yaml:"enabled" json:"enabled"`
	PredictionDebounce time.Duration `yaml:"prediction_debounce" json:"prediction_debounce"`
	ScheduleDebounce   time.Duration `yaml:"schedule_debounce" json:"schedule_debounce"`
	PredictionIdle     time.Duration `yaml:"prediction_idle" json:"prediction_idle"`
	ExecutionIdle      time.Duration `yaml:"execution_idle" json:"execution_idle"`
}

type CurrencyConfig struct {
	Enabled  bool                   `yaml:"enabled" json:"enabled"`
	Upstream string                 `yaml:"upstream" json:"upstream" validate:"required_if=Enabled true,omitempty,url"`
	Timeout  time.Duration          `yaml:"timeout" json:"timeout"`
	Breaker  *CircuitBreakerConfig  `yaml:"circuit_breaker" json:"circuit_breaker"`
	Extra    map[string]interface{} `yaml:"extra" json:"extra"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	HalfOpenRequests int           `yaml:"half_open_requests" json:"half_open_requests"`
}

type EventsConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	URL            string        `yaml:"url" json:"url" validate:"required_if=Enabled true"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	PingInterval   time.Duration `yaml:"ping_interval" json:"ping_interval"`
}

type CronConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Timezone string `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
}

type MetricsConfig struct {
	Enabled   bool              `yaml:"enabled" json:"enabled"`
	Path      string            `yaml:"path" json:"path"`
	Namespace string            `yaml:"namespace" json:"namespace"`
	Labels    map[string]string `yaml:"labels" json:"labels"`
	GoMetrics bool              `yaml:"go_metrics" json:"go_metrics"`
}

type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}
