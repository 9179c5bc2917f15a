package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/saiset-co/sai-cache/types"
)

const sampleConfig = `
name: sai-cache
version: 1.2.0
server:
  http:
    host: 0.0.0.0
    port: ${SAI_CACHE_TEST_PORT}
cache:
  enabled: true
  type: memory
  config:
    max_size: 500
    default_ttl: 30s
    strategy: lfu
affiliate:
  enabled: true
  converter_url: https://converter.example.com/convert
  link_ttl: 2h
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigurationManagerLoad(t *testing.T) {
	t.Setenv("SAI_CACHE_TEST_PORT", "9090")

	cm, err := NewConfigurationManager(context.Background(), writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("NewConfigurationManager: %v", err)
	}

	if err := cm.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer cm.Stop()

	cfg := cm.GetConfig()
	if cfg.Server.HTTP.Port != 9090 {
		t.Fatalf("expected expanded port 9090, got %d", cfg.Server.HTTP.Port)
	}
	if cfg.Server.HTTP.ReadTimeout != 30 {
		t.Fatalf("expected default read timeout to survive, got %d", cfg.Server.HTTP.ReadTimeout)
	}
	if cfg.Affiliate.LinkTTL != 2*time.Hour {
		t.Fatalf("unexpected link ttl %s", cfg.Affiliate.LinkTTL)
	}
	if cfg.Database.Type != types.DatabaseTypeMemory {
		t.Fatalf("expected default database type, got %q", cfg.Database.Type)
	}

	if got := cm.GetValue("cache.config.strategy", "lru"); got != "lfu" {
		t.Fatalf("unexpected strategy %v", got)
	}
	if got := cm.GetValue("cache.config.missing", 42); got != 42 {
		t.Fatalf("expected default value, got %v", got)
	}

	var cacheBlock struct {
		MaxSize    int    `yaml:"max_size"`
		DefaultTTL string `yaml:"default_ttl"`
	}
	if err := cm.GetAs("cache.config", &cacheBlock); err != nil {
		t.Fatalf("GetAs: %v", err)
	}
	if cacheBlock.MaxSize != 500 || cacheBlock.DefaultTTL != "30s" {
		t.Fatalf("unexpected cache block %+v", cacheBlock)
	}

	if err := cm.GetAs("cache.nope", &cacheBlock); !errors.Is(err, types.ErrConfigInvalidPath) {
		t.Fatalf("expected ErrConfigInvalidPath, got %v", err)
	}
}

func TestConfigurationManagerErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", "version: \"1\"\nserver:\n  http:\n    port: 80\n"},
		{"bad port", "name: a\nversion: \"1\"\nserver:\n  http:\n    port: 70000\n"},
		{"bad yaml", "name: [a\n"},
		{"clover without path", "name: a\nversion: \"1\"\nserver:\n  http:\n    port: 80\ndatabase:\n  type: clover\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfigurationManager(context.Background(), writeConfig(t, tt.body))
			if !errors.Is(err, types.ErrConfigLoadFailed) {
				t.Fatalf("expected ErrConfigLoadFailed, got %v", err)
			}
		})
	}

	if _, err := NewConfigurationManager(context.Background(), filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestParserGetAllPaths(t *testing.T) {
	parser := NewParser(map[string]interface{}{
		"name": "svc",
		"cache": map[string]interface{}{
			"type": "memory",
			"config": map[string]interface{}{
				"max_size": 10,
			},
		},
	})

	paths := parser.GetAllPaths()
	expected := []string{"cache.config.max_size", "cache.type", "name"}

	if len(paths) != len(expected) {
		t.Fatalf("unexpected paths %v", paths)
	}
	for i := range expected {
		if paths[i] != expected[i] {
			t.Fatalf("unexpected paths %v", paths)
		}
	}
}
