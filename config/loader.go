package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-cache/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// LoadFromFile reads the YAML file at configPath, expands ${VAR} references
// and returns the validated config together with its raw document tree.
func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ServiceConfig, map[string]interface{}, error) {
	if configPath == "" {
		return nil, nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil, types.Errorf(types.ErrConfigNotFound, "file: %s", configPath)
	}

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, nil, types.WrapError(err, "failed to read config file")
	}

	return l.LoadFromBytes(data)
}

func (l *Loader) LoadFromBytes(data []byte) (*types.ServiceConfig, map[string]interface{}, error) {
	expanded := []byte(os.ExpandEnv(string(data)))

	config := l.Defaults()
	if err := yaml.Unmarshal(expanded, config); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(expanded, &raw); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	return config, raw, nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
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

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Server: &types.ServerConfig{
			HTTP: &types.HTTPConfig{
				Host:            "localhost",
				Port:            8080,
				ReadTimeout:     30,
				WriteTimeout:    30,
				IdleTimeout:     120,
				ShutdownTimeout: 10,
				MaxBodySize:     4 * 1024 * 1024,
			},
		},
		Logger: &types.LoggerConfig{
			Type:  "default",
			Level: "info",
		},
		Cache: &types.CacheConfig{
			Enabled: true,
			Type:    types.CacheTypeMemory,
		},
		Cron: &types.CronConfig{
			Enabled:       false,
			Timezone:      "UTC",
			StatsSchedule: "0 * * * * *",
			SweepSchedule: "*/30 * * * * *",
		},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Type:    "prometheus",
		},
		Health: &types.HealthConfig{
			Enabled: true,
		},
		Client: &types.ClientConfig{
			Enabled:            false,
			DefaultTimeout:     10 * time.Second,
			MaxIdleConnections: 100,
			IdleConnTimeout:    90 * time.Second,
			DefaultRetries:     2,
			CircuitBreaker: &types.CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				RecoveryTimeout:  30 * time.Second,
				HalfOpenRequests: 1,
			},
		},
		Database: &types.DatabaseConfig{
			Type: types.DatabaseTypeMemory,
		},
		Affiliate: &types.AffiliateConfig{
			Enabled:   false,
			UTMSource: "sai-cache",
			LinkTTL:   24 * time.Hour,
			CacheSize: 10000,
		},
		Middlewares: &types.MiddlewaresConfig{
			Enabled: true,
			CORS: &types.MiddlewareItemConfig{
				Enabled: false,
				Weight:  5,
			},
			Recovery: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  10,
				Params: map[string]interface{}{
					"stack_trace": true,
				},
			},
			Logging: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  20,
				Params: map[string]interface{}{
					"log_level":   "info",
					"log_headers": false,
				},
			},
			RateLimit: &types.MiddlewareItemConfig{
				Enabled: false,
				Weight:  30,
				Params: map[string]interface{}{
					"requests_per_minute": 600,
				},
			},
			BodyLimit: &types.MiddlewareItemConfig{
				Enabled: true,
				Weight:  40,
				Params: map[string]interface{}{
					"max_body_size": 1 << 20,
				},
			},
			Compression: &types.MiddlewareItemConfig{
				Enabled: false,
				Weight:  90,
				Params: map[string]interface{}{
					"min_size": 1024,
					"level":    5,
				},
			},
		},
	}
}
