package types

import (
	"context"
	"time"
)

type HealthStatus string

// A checker reporting anything other than StatusHealthy counts as unhealthy.
const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
)

type HealthChecker func(ctx context.Context) HealthCheck

type HealthManager interface {
	LifecycleManager
	RegisterChecker(name string, checker HealthChecker)
	Check(ctx context.Context) HealthReport
}

// HealthCheck is the outcome of one checker. Details carries per-backend
// data such as the cache type or the database path.
type HealthCheck struct {
	Name      string                 `json:"name"`
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message,omitempty"`
	CheckedAt time.Time              `json:"checked_at"`
	Duration  time.Duration          `json:"duration"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

type HealthReport struct {
	Status    HealthStatus           `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    time.Duration          `json:"uptime"`
	Service   ServiceInfo            `json:"service"`
	Checks    map[string]HealthCheck `json:"checks"`
	Healthy   int                    `json:"healthy"`
	Unhealthy int                    `json:"unhealthy"`
}

type ServiceInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Address string `json:"address"`
}
