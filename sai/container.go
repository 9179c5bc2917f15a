package sai

import (
	"sync/atomic"

	"github.com/saiset-co/sai-cache/affiliate"
	"github.com/saiset-co/sai-cache/cache"
	"github.com/saiset-co/sai-cache/database"
	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/metrics"
	"github.com/saiset-co/sai-cache/types"
)

// Container holds the components of a running service. The package level
// accessors read the container installed with SetContainer.
type Container struct {
	Config        atomic.Pointer[types.ConfigManager]
	Logger        atomic.Pointer[types.LoggerManager]
	Metrics       atomic.Pointer[types.MetricsManager]
	Cache         atomic.Pointer[types.CacheManager]
	ClientManager atomic.Pointer[types.ClientManager]
	Database      atomic.Pointer[types.DatabaseManager]
	Health        atomic.Pointer[types.HealthManager]
	Cron          atomic.Pointer[types.CronManager]
	HTTPServer    atomic.Pointer[types.HTTPServer]
	Rewriter      atomic.Pointer[affiliate.Rewriter]
	Templates     atomic.Pointer[affiliate.TemplateStore]
}

var globalContainer atomic.Pointer[Container]

func InitContainer() *Container {
	return &Container{}
}

func SetContainer(container *Container) {
	globalContainer.Store(container)
}

func current() *Container {
	container := globalContainer.Load()
	if container == nil {
		panic("sai container not initialized")
	}
	return container
}

func Config() types.ConfigManager {
	if ptr := current().Config.Load(); ptr != nil {
		return *ptr
	}
	panic("ConfigManager not initialized")
}

func Logger() types.LoggerManager {
	if ptr := current().Logger.Load(); ptr != nil {
		return *ptr
	}
	panic("Logger not initialized")
}

// Cache returns nil when the cache is disabled.
func Cache() types.CacheManager {
	if ptr := current().Cache.Load(); ptr != nil {
		return *ptr
	}
	return nil
}

func Cron() types.CronManager {
	if ptr := current().Cron.Load(); ptr != nil {
		return *ptr
	}
	return nil
}

func RegisterCacheManager(cacheManagerName string, creator types.CacheManagerCreator) {
	cache.RegisterCacheManager(cacheManagerName, creator)
}

func RegisterDatabaseManager(databaseType string, creator types.DatabaseManagerCreator) {
	database.RegisterDatabaseManager(databaseType, creator)
}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	metrics.RegisterMetricsManager(metricsManagerName, creator)
}

func RegisterLogger(loggerName string, creator types.LoggerCreator) {
	logger.RegisterLogger(loggerName, creator)
}

func (fc *Container) SetConfig(config types.ConfigManager) {
	fc.Config.Store(&config)
}

func (fc *Container) SetLogger(logger types.LoggerManager) {
	fc.Logger.Store(&logger)
}

func (fc *Container) SetMetrics(metrics types.MetricsManager) {
	fc.Metrics.Store(&metrics)
}

func (fc *Container) SetCache(cache types.CacheManager) {
	fc.Cache.Store(&cache)
}

func (fc *Container) SetClientManager(client types.ClientManager) {
	fc.ClientManager.Store(&client)
}

func (fc *Container) SetDatabase(db types.DatabaseManager) {
	fc.Database.Store(&db)
}

func (fc *Container) SetHealth(health types.HealthManager) {
	fc.Health.Store(&health)
}

func (fc *Container) SetCron(cron types.CronManager) {
	fc.Cron.Store(&cron)
}

func (fc *Container) SetHTTPServer(server types.HTTPServer) {
	fc.HTTPServer.Store(&server)
}

func (fc *Container) SetAffiliate(rewriter *affiliate.Rewriter, templates *affiliate.TemplateStore) {
	fc.Rewriter.Store(rewriter)
	fc.Templates.Store(templates)
}
