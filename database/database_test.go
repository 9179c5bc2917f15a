package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/types"
)

func backends(t *testing.T) map[string]types.DatabaseManager {
	t.Helper()

	ctx := context.Background()

	memory, err := NewManager(ctx, &types.DatabaseConfig{Type: types.DatabaseTypeMemory}, logger.NewNop(), nil)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}

	clover, err := NewManager(ctx, &types.DatabaseConfig{
		Type: types.DatabaseTypeClover,
		Path: filepath.Join(t.TempDir(), "clover"),
	}, logger.NewNop(), nil)
	if err != nil {
		t.Fatalf("clover: %v", err)
	}

	dbs := map[string]types.DatabaseManager{"memory": memory, "clover": clover}
	for name, db := range dbs {
		if err := db.Start(); err != nil {
			t.Fatalf("%s start: %v", name, err)
		}
		db := db
		t.Cleanup(func() { _ = db.Stop() })
	}

	return dbs
}

func TestDocumentLifecycle(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ids, err := db.CreateDocuments(ctx, types.CreateDocumentsRequest{
				Collection: "templates",
				Data: []interface{}{
					map[string]interface{}{"name": "alpha", "priority": 3},
					map[string]interface{}{"name": "beta", "priority": 1},
					map[string]interface{}{"name": "gamma", "priority": 2},
				},
			})
			if err != nil {
				t.Fatalf("CreateDocuments: %v", err)
			}
			if len(ids) != 3 || ids[0] == ids[1] {
				t.Fatalf("unexpected ids: %v", ids)
			}

			docs, total, err := db.ReadDocuments(ctx, types.ReadDocumentsRequest{Collection: "templates"})
			if err != nil {
				t.Fatalf("ReadDocuments: %v", err)
			}
			if total != 3 || docs[0]["name"] != "alpha" || docs[2]["name"] != "gamma" {
				t.Fatalf("expected insertion order, got %v (total %d)", docs, total)
			}
			if docs[0][types.DocumentIDField] != ids[0] {
				t.Fatalf("expected id %s, got %v", ids[0], docs[0][types.DocumentIDField])
			}

			docs, total, err = db.ReadDocuments(ctx, types.ReadDocumentsRequest{
				Collection: "templates",
				Sort:       map[string]int{"priority": -1},
				Skip:       1,
				Limit:      1,
			})
			if err != nil {
				t.Fatalf("ReadDocuments sorted: %v", err)
			}
			if total != 3 || len(docs) != 1 || docs[0]["name"] != "gamma" {
				t.Fatalf("unexpected page: %v (total %d)", docs, total)
			}

			docs, _, err = db.ReadDocuments(ctx, types.ReadDocumentsRequest{
				Collection: "templates",
				Filter:     map[string]interface{}{"priority": map[string]interface{}{"$gte": 2}},
			})
			if err != nil {
				t.Fatalf("ReadDocuments filtered: %v", err)
			}
			if len(docs) != 2 {
				t.Fatalf("expected 2 documents with priority >= 2, got %d", len(docs))
			}

			updated, err := db.UpdateDocuments(ctx, types.UpdateDocumentsRequest{
				Collection: "templates",
				Filter:     map[string]interface{}{types.DocumentIDField: ids[1]},
				Data: map[string]interface{}{
					"$set":   map[string]interface{}{"name": "beta-2"},
					"$unset": map[string]interface{}{"priority": true},
				},
			})
			if err != nil || updated != 1 {
				t.Fatalf("UpdateDocuments: updated=%d err=%v", updated, err)
			}

			docs, _, _ = db.ReadDocuments(ctx, types.ReadDocumentsRequest{
				Collection: "templates",
				Filter:     map[string]interface{}{types.DocumentIDField: ids[1]},
			})
			if len(docs) != 1 || docs[0]["name"] != "beta-2" {
				t.Fatalf("unexpected updated document: %v", docs)
			}
			if _, ok := docs[0]["priority"]; ok {
				t.Fatal("expected priority to be unset")
			}

			deleted, err := db.DeleteDocuments(ctx, types.DeleteDocumentsRequest{
				Collection: "templates",
				Filter:     map[string]interface{}{"name": "alpha"},
			})
			if err != nil || deleted != 1 {
				t.Fatalf("DeleteDocuments: deleted=%d err=%v", deleted, err)
			}

			_, total, _ = db.ReadDocuments(ctx, types.ReadDocumentsRequest{Collection: "templates"})
			if total != 2 {
				t.Fatalf("expected 2 documents left, got %d", total)
			}
		})
	}
}

func TestMissingCollection(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			docs, total, err := db.ReadDocuments(ctx, types.ReadDocumentsRequest{Collection: "nothing"})
			if err != nil || total != 0 || len(docs) != 0 {
				t.Fatalf("expected empty result, got %v %d %v", docs, total, err)
			}

			deleted, err := db.DeleteDocuments(ctx, types.DeleteDocumentsRequest{Collection: "nothing"})
			if err != nil || deleted != 0 {
				t.Fatalf("expected nothing deleted, got %d %v", deleted, err)
			}

			if _, err := db.CreateDocuments(ctx, types.CreateDocumentsRequest{}); !errors.Is(err, types.ErrCollectionIsEmpty) {
				t.Fatalf("expected ErrCollectionIsEmpty, got %v", err)
			}

			_, err = db.CreateDocuments(ctx, types.CreateDocumentsRequest{Collection: "bad", Data: []interface{}{"text"}})
			if !errors.Is(err, types.ErrInvalidParameter) {
				t.Fatalf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

func TestNewManagerErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := NewManager(ctx, &types.DatabaseConfig{Type: "mongo"}, logger.NewNop(), nil); !errors.Is(err, types.ErrDatabaseTypeUnknown) {
		t.Fatalf("expected ErrDatabaseTypeUnknown, got %v", err)
	}

	if _, err := NewManager(ctx, &types.DatabaseConfig{Type: types.DatabaseTypeClover}, logger.NewNop(), nil); !errors.Is(err, types.ErrConfigValidateFailed) {
		t.Fatalf("expected ErrConfigValidateFailed, got %v", err)
	}
}

func TestHealthChecker(t *testing.T) {
	db, _ := NewMemoryDB(context.Background(), nil, logger.NewNop())
	check := HealthChecker(db)

	if got := check(context.Background()).Status; got != types.StatusUnhealthy {
		t.Fatalf("expected unhealthy before start, got %s", got)
	}

	_ = db.Start()
	defer db.Stop()

	if got := check(context.Background()).Status; got != types.StatusHealthy {
		t.Fatalf("expected healthy, got %s", got)
	}
}

func TestMatchesFilter(t *testing.T) {
	doc := map[string]interface{}{
		"name":  "shopee",
		"count": 5,
		"meta":  map[string]interface{}{"region": "vn"},
	}

	tests := []struct {
		name   string
		filter map[string]interface{}
		want   bool
	}{
		{"empty", nil, true},
		{"equal", map[string]interface{}{"name": "shopee"}, true},
		{"numeric equal across types", map[string]interface{}{"count": 5.0}, true},
		{"nested", map[string]interface{}{"meta.region": "vn"}, true},
		{"nested mismatch", map[string]interface{}{"meta.region": "th"}, false},
		{"gt", map[string]interface{}{"count": map[string]interface{}{"$gt": 4}}, true},
		{"range", map[string]interface{}{"count": map[string]interface{}{"$gt": 1, "$lt": 5}}, false},
		{"in", map[string]interface{}{"name": map[string]interface{}{"$in": []interface{}{"lazada", "shopee"}}}, true},
		{"nin", map[string]interface{}{"name": map[string]interface{}{"$nin": []interface{}{"shopee"}}}, false},
		{"exists", map[string]interface{}{"missing": map[string]interface{}{"$exists": false}}, true},
		{"missing field", map[string]interface{}{"missing": "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesFilter(doc, tt.filter); got != tt.want {
				t.Fatalf("matchesFilter(%v) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}
