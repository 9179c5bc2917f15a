package database

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/saiset-co/sai-cache/types"
)

// MemoryDB keeps collections in process memory. Contents are lost on Stop.
type MemoryDB struct {
	collections map[string]map[string]map[string]interface{}
	mutex       sync.RWMutex
	logger      types.Logger
	clock       timestamps
	state       atomic.Value
}

func NewMemoryDB(_ context.Context, _ *types.DatabaseConfig, logger types.Logger) (*MemoryDB, error) {
	mdb := &MemoryDB{
		collections: make(map[string]map[string]map[string]interface{}),
		logger:      logger,
	}

	mdb.state.Store(StateStopped)
	return mdb, nil
}

func (m *MemoryDB) Start() error {
	if !m.transitionState(StateStopped, StateRunning) {
		return types.ErrServerAlreadyRunning
	}

	m.logger.Info("MemoryDB started")
	return nil
}

func (m *MemoryDB) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer m.state.Store(StateStopped)

	m.mutex.Lock()
	m.collections = make(map[string]map[string]map[string]interface{})
	m.mutex.Unlock()

	m.logger.Info("MemoryDB stopped gracefully")
	return nil
}

func (m *MemoryDB) IsRunning() bool {
	return m.state.Load().(State) == StateRunning
}

func (m *MemoryDB) CreateDocuments(_ context.Context, request types.CreateDocumentsRequest) ([]string, error) {
	if request.Collection == "" {
		return nil, types.ErrCollectionIsEmpty
	}

	if len(request.Data) == 0 {
		return []string{}, nil
	}

	documents := make([]map[string]interface{}, 0, len(request.Data))
	for _, data := range request.Data {
		document, err := toDocument(data)
		if err != nil {
			return nil, err
		}
		documents = append(documents, document)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	collection, exists := m.collections[request.Collection]
	if !exists {
		collection = make(map[string]map[string]interface{})
		m.collections[request.Collection] = collection
	}

	ids := make([]string, 0, len(documents))

	for _, document := range documents {
		stored := deepCopy(document)
		now := m.clock.next()

		id := uuid.New().String()
		stored[types.DocumentIDField] = id
		stored[types.DocumentCreatedAtField] = now
		stored[types.DocumentChangedAtField] = now

		collection[id] = stored
		ids = append(ids, id)
	}

	return ids, nil
}

func (m *MemoryDB) ReadDocuments(_ context.Context, request types.ReadDocumentsRequest) ([]map[string]interface{}, int64, error) {
	if request.Collection == "" {
		return nil, 0, types.ErrCollectionIsEmpty
	}

	m.mutex.RLock()
	var matched []map[string]interface{}
	for _, doc := range m.collections[request.Collection] {
		if matchesFilter(doc, request.Filter) {
			matched = append(matched, deepCopy(doc))
		}
	}
	m.mutex.RUnlock()

	sortDocuments(matched, map[string]int{types.DocumentCreatedAtField: 1})
	if len(request.Sort) > 0 {
		sortDocuments(matched, request.Sort)
	}

	total := int64(len(matched))

	if request.Skip > 0 {
		if request.Skip >= len(matched) {
			return []map[string]interface{}{}, total, nil
		}
		matched = matched[request.Skip:]
	}

	if request.Limit > 0 && request.Limit < len(matched) {
		matched = matched[:request.Limit]
	}

	if matched == nil {
		matched = []map[string]interface{}{}
	}

	return matched, total, nil
}

func (m *MemoryDB) UpdateDocuments(_ context.Context, request types.UpdateDocumentsRequest) (int64, error) {
	if request.Collection == "" {
		return 0, types.ErrCollectionIsEmpty
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	var updated int64
	now := m.clock.next()

	for _, doc := range m.collections[request.Collection] {
		if !matchesFilter(doc, request.Filter) {
			continue
		}

		id := doc[types.DocumentIDField]
		applyUpdate(doc, deepCopy(request.Data))
		doc[types.DocumentIDField] = id
		doc[types.DocumentChangedAtField] = now
		updated++
	}

	return updated, nil
}

func (m *MemoryDB) DeleteDocuments(_ context.Context, request types.DeleteDocumentsRequest) (int64, error) {
	if request.Collection == "" {
		return 0, types.ErrCollectionIsEmpty
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	collection := m.collections[request.Collection]

	var deleted int64
	for id, doc := range collection {
		if matchesFilter(doc, request.Filter) {
			delete(collection, id)
			deleted++
		}
	}

	return deleted, nil
}

func (m *MemoryDB) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}
