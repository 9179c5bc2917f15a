package types

import (
	"time"
)

type ConfigManager interface {
	LifecycleManager
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name        string             `yaml:"name" json:"name" validate:"required"`
	Version     string             `yaml:"version" json:"version" validate:"required"`
	Server      *ServerConfig      `yaml:"server" json:"server" validate:"required"`
	Logger      *LoggerConfig      `yaml:"logger" json:"logger"`
	Cache       *CacheConfig       `yaml:"cache" json:"cache"`
	Cron        *CronConfig        `yaml:"cron" json:"cron"`
	Middlewares *MiddlewaresConfig `yaml:"middlewares" json:"middlewares"`
	Metrics     *MetricsConfig     `yaml:"metrics" json:"metrics"`
	Client      *ClientConfig      `yaml:"client" json:"client"`
	Health      *HealthConfig      `yaml:"health" json:"health"`
	Database    *DatabaseConfig    `yaml:"database" json:"database"`
	Affiliate   *AffiliateConfig   `yaml:"affiliate" json:"affiliate"`
}

type ServerConfig struct {
	HTTP *HTTPConfig `yaml:"http" json:"http" validate:"required"`
}

type HTTPConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout" validate:"min=0"`
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout" validate:"min=0"`
	IdleTimeout     int    `yaml:"idle_timeout" json:"idle_timeout" validate:"min=0"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout" validate:"min=0"`
	MaxBodySize     int    `yaml:"max_body_size" json:"max_body_size" validate:"min=0"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	Config interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{} `yaml:"config" json:"config"`
}

type CronConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Timezone      string `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
	StatsSchedule string `yaml:"stats_schedule" json:"stats_schedule"`
	SweepSchedule string `yaml:"sweep_schedule" json:"sweep_schedule"`
}

type MiddlewaresConfig struct {
	Enabled     bool                  `yaml:"enabled" json:"enabled"`
	CORS        *MiddlewareItemConfig `yaml:"cors" json:"cors"`
	Recovery    *MiddlewareItemConfig `yaml:"recovery" json:"recovery"`
	Logging     *MiddlewareItemConfig `yaml:"logging" json:"logging"`
	RateLimit   *MiddlewareItemConfig `yaml:"rate_limit" json:"rate_limit"`
	BodyLimit   *MiddlewareItemConfig `yaml:"body_limit" json:"body_limit"`
	Compression *MiddlewareItemConfig `yaml:"compression" json:"compression"`
}

type MiddlewareItemConfig struct {
	Enabled bool                   `yaml:"enabled" json:"enabled"`
	Weight  int                    `yaml:"weight" json:"weight" validate:"min=0"`
	Params  map[string]interface{} `yaml:"params" json:"params"`
}

type MetricsConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Type    string            `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{}       `yaml:"config" json:"config"`
	Labels  map[string]string `yaml:"labels" json:"labels"`
}

type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

type ClientConfig struct {
	Enabled            bool                  `yaml:"enabled" json:"enabled"`
	DefaultTimeout     time.Duration         `yaml:"default_timeout" json:"default_timeout"`
	MaxIdleConnections int                   `yaml:"max_idle_connections" json:"max_idle_connections" validate:"min=0"`
	IdleConnTimeout    time.Duration         `yaml:"idle_conn_timeout" json:"idle_conn_timeout"`
	DefaultRetries     int                   `yaml:"default_retries" json:"default_retries" validate:"min=0"`
	CircuitBreaker     *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" validate:"min=0"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	HalfOpenRequests int           `yaml:"half_open_requests" json:"half_open_requests" validate:"min=0"`
}

type DatabaseConfig struct {
	Type string `yaml:"type" json:"type" validate:"omitempty,oneof=memory clover"`
	Path string `yaml:"path" json:"path" validate:"required_if=Type clover"`
}

type AffiliateConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	ConverterURL string        `yaml:"converter_url" json:"converter_url" validate:"omitempty,url"`
	AffiliateID  string        `yaml:"affiliate_id" json:"affiliate_id"`
	UTMSource    string        `yaml:"utm_source" json:"utm_source"`
	LinkTTL      time.Duration `yaml:"link_ttl" json:"link_ttl"`
	CacheSize    int           `yaml:"cache_size" json:"cache_size" validate:"min=0"`
}
