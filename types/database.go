package types

import "context"

const (
	DatabaseTypeMemory = "memory"
	DatabaseTypeClover = "clover"
)

type DatabaseManager interface {
	LifecycleManager
	CreateDocuments(ctx context.Context, request CreateDocumentsRequest) ([]string, error)
	ReadDocuments(ctx context.Context, request ReadDocumentsRequest) ([]map[string]interface{}, int64, error)
	UpdateDocuments(ctx context.Context, request UpdateDocumentsRequest) (int64, error)
	DeleteDocuments(ctx context.Context, request DeleteDocumentsRequest) (int64, error)
}

type CreateDocumentsRequest struct {
	Collection string
	Data       []interface{}
}

type ReadDocumentsRequest struct {
	Collection string
	Filter     map[string]interface{}
	Sort       map[string]int
	Limit      int
	Skip       int
}

type UpdateDocumentsRequest struct {
	Collection string
	Filter     map[string]interface{}
	Data       map[string]interface{}
}

type DeleteDocumentsRequest struct {
	Collection string
	Filter     map[string]interface{}
}

type DatabaseManagerCreator func(ctx context.Context, config *DatabaseConfig, logger Logger) (DatabaseManager, error)

const (
	DocumentIDField        = "id"
	DocumentCreatedAtField = "cr_time"
	DocumentChangedAtField = "ch_time"
)
