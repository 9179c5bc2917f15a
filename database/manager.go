package database

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var customDatabaseCreators = make(map[string]types.DatabaseManagerCreator)

func RegisterDatabaseManager(databaseType string, creator types.DatabaseManagerCreator) {
	customDatabaseCreators[databaseType] = creator
}

func NewManager(ctx context.Context, config *types.DatabaseConfig, logger types.Logger, metrics types.MetricsManager) (types.DatabaseManager, error) {
	if config == nil {
		config = &types.DatabaseConfig{Type: types.DatabaseTypeMemory}
	}

	var impl types.DatabaseManager
	var err error

	switch config.Type {
	case types.DatabaseTypeClover:
		impl, err = NewCloverDB(ctx, config, logger)
	case types.DatabaseTypeMemory, "":
		impl, err = NewMemoryDB(ctx, config, logger)
	default:
		creator, exists := customDatabaseCreators[config.Type]
		if !exists {
			return nil, types.Errorf(types.ErrDatabaseTypeUnknown, "type: %s", config.Type)
		}
		impl, err = creator(ctx, config, logger)
	}

	if err != nil {
		return nil, err
	}

	if metrics == nil {
		return impl, nil
	}

	return &instrumentedDatabaseManager{impl: impl, logger: logger, metrics: metrics}, nil
}

// HealthChecker reports the database as healthy while it is running.
func HealthChecker(db types.DatabaseManager) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		check := types.HealthCheck{
			Name:      "database",
			Status:    types.StatusHealthy,
			CheckedAt: time.Now(),
		}

		if !db.IsRunning() {
			check.Status = types.StatusUnhealthy
			check.Message = "database is not running"
		}

		return check
	}
}

type instrumentedDatabaseManager struct {
	impl    types.DatabaseManager
	logger  types.Logger
	metrics types.MetricsManager
}

func (dm *instrumentedDatabaseManager) Start() error {
	return dm.impl.Start()
}

func (dm *instrumentedDatabaseManager) Stop() error {
	err := dm.impl.Stop()
	if err != nil {
		dm.logger.Error("Failed to stop database implementation", zap.Error(err))
	}
	return err
}

func (dm *instrumentedDatabaseManager) IsRunning() bool {
	return dm.impl.IsRunning()
}

func (dm *instrumentedDatabaseManager) CreateDocuments(ctx context.Context, request types.CreateDocumentsRequest) ([]string, error) {
	start := time.Now()
	ids, err := dm.impl.CreateDocuments(ctx, request)

	dm.record("create", request.Collection, err, start)
	return ids, err
}

func (dm *instrumentedDatabaseManager) ReadDocuments(ctx context.Context, request types.ReadDocumentsRequest) ([]map[string]interface{}, int64, error) {
	start := time.Now()
	docs, total, err := dm.impl.ReadDocuments(ctx, request)

	dm.record("read", request.Collection, err, start)
	return docs, total, err
}

func (dm *instrumentedDatabaseManager) UpdateDocuments(ctx context.Context, request types.UpdateDocumentsRequest) (int64, error) {
	start := time.Now()
	updated, err := dm.impl.UpdateDocuments(ctx, request)

	dm.record("update", request.Collection, err, start)
	return updated, err
}

func (dm *instrumentedDatabaseManager) DeleteDocuments(ctx context.Context, request types.DeleteDocumentsRequest) (int64, error) {
	start := time.Now()
	deleted, err := dm.impl.DeleteDocuments(ctx, request)

	dm.record("delete", request.Collection, err, start)
	return deleted, err
}

func (dm *instrumentedDatabaseManager) record(operation, collection string, err error, start time.Time) {
	result := "success"
	if err != nil {
		result = "error"
	}

	dm.metrics.Counter("database_operations_total", map[string]string{
		"operation":  operation,
		"collection": collection,
		"result":     result,
	}).Inc()

	dm.metrics.Histogram("database_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	).ObserveDuration(start)
}
