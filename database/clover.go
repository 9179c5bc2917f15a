package database

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
)

const cloverObjectIDField = "_id"

// CloverDB persists collections in an embedded clover store under config.Path.
type CloverDB struct {
	db     *clover.DB
	path   string
	logger types.Logger
	clock  timestamps
	state  atomic.Value
}

func NewCloverDB(_ context.Context, config *types.DatabaseConfig, logger types.Logger) (*CloverDB, error) {
	if config == nil || config.Path == "" {
		return nil, types.Errorf(types.ErrConfigValidateFailed, "clover database requires a path")
	}

	cdb := &CloverDB{
		path:   config.Path,
		logger: logger,
	}

	cdb.state.Store(StateStopped)
	return cdb, nil
}

func (c *CloverDB) Start() error {
	if !c.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	db, err := clover.Open(c.path)
	if err != nil {
		c.state.Store(StateStopped)
		return types.WrapError(err, "failed to open CloverDB")
	}

	c.db = db
	c.state.Store(StateRunning)

	c.logger.Info("CloverDB started", zap.String("path", c.path))
	return nil
}

func (c *CloverDB) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer c.state.Store(StateStopped)

	if err := c.db.Close(); err != nil {
		return types.WrapError(err, "failed to close CloverDB")
	}

	c.logger.Info("CloverDB stopped gracefully")
	return nil
}

func (c *CloverDB) IsRunning() bool {
	return c.state.Load().(State) == StateRunning
}

func (c *CloverDB) CreateDocuments(_ context.Context, request types.CreateDocumentsRequest) ([]string, error) {
	if err := c.ready(request.Collection); err != nil {
		return nil, err
	}

	if len(request.Data) == 0 {
		return []string{}, nil
	}

	if err := c.ensureCollection(request.Collection); err != nil {
		return nil, err
	}

	docs := make([]*clover.Document, 0, len(request.Data))
	ids := make([]string, 0, len(request.Data))

	for _, data := range request.Data {
		document, err := toDocument(data)
		if err != nil {
			return nil, err
		}

		id := uuid.New().String()
		now := c.clock.next()

		doc := clover.NewDocument()
		for key, value := range document {
			doc.Set(key, value)
		}
		doc.Set(types.DocumentIDField, id)
		doc.Set(types.DocumentCreatedAtField, now)
		doc.Set(types.DocumentChangedAtField, now)

		docs = append(docs, doc)
		ids = append(ids, id)
	}

	if err := c.db.Insert(request.Collection, docs...); err != nil {
		return nil, types.WrapError(err, "failed to insert documents")
	}

	return ids, nil
}

func (c *CloverDB) ReadDocuments(_ context.Context, request types.ReadDocumentsRequest) ([]map[string]interface{}, int64, error) {
	if err := c.ready(request.Collection); err != nil {
		return nil, 0, err
	}

	exists, err := c.db.HasCollection(request.Collection)
	if err != nil {
		return nil, 0, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		return []map[string]interface{}{}, 0, nil
	}

	total, err := c.query(request.Collection, request.Filter).Count()
	if err != nil {
		return nil, 0, types.WrapError(err, "failed to count documents")
	}

	query := c.query(request.Collection, request.Filter).Sort(sortOptions(request.Sort)...)

	if request.Skip > 0 {
		query = query.Skip(request.Skip)
	}

	if request.Limit > 0 {
		query = query.Limit(request.Limit)
	}

	docs, err := query.FindAll()
	if err != nil {
		return nil, 0, types.WrapError(err, "failed to find documents")
	}

	results := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		document, err := toMap(doc)
		if err != nil {
			c.logger.Warn("Skipping undecodable document", zap.String("collection", request.Collection), zap.Error(err))
			continue
		}
		results = append(results, document)
	}

	return results, int64(total), nil
}

// UpdateDocuments rewrites each matching document so that $unset can drop
// fields; clover's field-level Update only sets values.
func (c *CloverDB) UpdateDocuments(_ context.Context, request types.UpdateDocumentsRequest) (int64, error) {
	if err := c.ready(request.Collection); err != nil {
		return 0, err
	}

	exists, err := c.db.HasCollection(request.Collection)
	if err != nil {
		return 0, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		return 0, nil
	}

	docs, err := c.query(request.Collection, request.Filter).FindAll()
	if err != nil {
		return 0, types.WrapError(err, "failed to find documents")
	}

	now := c.clock.next()

	var updated int64
	for _, doc := range docs {
		document, err := toMap(doc)
		if err != nil {
			return updated, err
		}

		id := document[types.DocumentIDField]
		applyUpdate(document, request.Data)
		document[types.DocumentIDField] = id
		document[types.DocumentChangedAtField] = now

		if err := c.db.Query(request.Collection).Where(clover.Field(types.DocumentIDField).Eq(id)).Delete(); err != nil {
			return updated, types.WrapError(err, "failed to replace document")
		}

		replacement := clover.NewDocument()
		for key, value := range document {
			replacement.Set(key, value)
		}

		if err := c.db.Insert(request.Collection, replacement); err != nil {
			return updated, types.WrapError(err, "failed to replace document")
		}

		updated++
	}

	return updated, nil
}

func (c *CloverDB) DeleteDocuments(_ context.Context, request types.DeleteDocumentsRequest) (int64, error) {
	if err := c.ready(request.Collection); err != nil {
		return 0, err
	}

	exists, err := c.db.HasCollection(request.Collection)
	if err != nil {
		return 0, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		return 0, nil
	}

	query := c.query(request.Collection, request.Filter)

	count, err := query.Count()
	if err != nil {
		return 0, types.WrapError(err, "failed to count matching documents")
	}

	if count == 0 {
		return 0, nil
	}

	if err := query.Delete(); err != nil {
		return 0, types.WrapError(err, "failed to delete documents")
	}

	return int64(count), nil
}

func (c *CloverDB) ready(collection string) error {
	if collection == "" {
		return types.ErrCollectionIsEmpty
	}

	if !c.IsRunning() {
		return types.Errorf(types.ErrInvalidState, "clover database is not running")
	}

	return nil
}

func (c *CloverDB) ensureCollection(collection string) error {
	exists, err := c.db.HasCollection(collection)
	if err != nil {
		return types.WrapError(err, "failed to check collection existence")
	}

	if exists {
		return nil
	}

	if err := c.db.CreateCollection(collection); err != nil {
		return types.WrapError(err, "failed to create collection")
	}

	return nil
}

func (c *CloverDB) query(collection string, filter map[string]interface{}) *clover.Query {
	query := c.db.Query(collection)

	for key, value := range filter {
		query = applyFieldFilter(query, key, value)
	}

	return query
}

func applyFieldFilter(query *clover.Query, key string, value interface{}) *clover.Query {
	operators, ok := value.(map[string]interface{})
	if !ok {
		return query.Where(clover.Field(key).Eq(value))
	}

	for op, opValue := range operators {
		switch op {
		case "$eq":
			query = query.Where(clover.Field(key).Eq(opValue))
		case "$ne":
			query = query.Where(clover.Field(key).Neq(opValue))
		case "$gt":
			query = query.Where(clover.Field(key).Gt(opValue))
		case "$gte":
			query = query.Where(clover.Field(key).GtEq(opValue))
		case "$lt":
			query = query.Where(clover.Field(key).Lt(opValue))
		case "$lte":
			query = query.Where(clover.Field(key).LtEq(opValue))
		case "$in":
			if arr, ok := opValue.([]interface{}); ok {
				query = query.Where(clover.Field(key).In(arr...))
			}
		case "$nin":
			if arr, ok := opValue.([]interface{}); ok {
				query = query.Where(clover.Field(key).In(arr...).Not())
			}
		case "$exists":
			if exists, ok := opValue.(bool); ok {
				if exists {
					query = query.Where(clover.Field(key).Exists())
				} else {
					query = query.Where(clover.Field(key).NotExists())
				}
			}
		}
	}

	return query
}

func sortOptions(order map[string]int) []clover.SortOption {
	if len(order) == 0 {
		return []clover.SortOption{{Field: types.DocumentCreatedAtField, Direction: 1}}
	}

	fields := make([]string, 0, len(order))
	for field := range order {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	options := make([]clover.SortOption, 0, len(fields))
	for _, field := range fields {
		direction := 1
		if order[field] < 0 {
			direction = -1
		}
		options = append(options, clover.SortOption{Field: field, Direction: direction})
	}

	return options
}

func toMap(doc *clover.Document) (map[string]interface{}, error) {
	document := make(map[string]interface{})

	if err := doc.Unmarshal(&document); err != nil {
		return nil, types.WrapError(err, "failed to decode document")
	}

	delete(document, cloverObjectIDField)
	return document, nil
}

func (c *CloverDB) transitionState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}
