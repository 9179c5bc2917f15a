package config

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-cache/types"
)

// Parser resolves dotted paths such as "cache.config.max_size" against the
// raw YAML tree.
type Parser struct {
	data map[string]interface{}
}

func NewParser(data map[string]interface{}) *Parser {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &Parser{data: data}
}

func (p *Parser) GetValue(path string, defaultValue interface{}) interface{} {
	value := p.navigateToPath(path)
	if value == nil {
		return defaultValue
	}
	return value
}

func (p *Parser) GetAs(path string, target interface{}) error {
	value := p.navigateToPath(path)
	if value == nil {
		return types.Errorf(types.ErrConfigInvalidPath, "path: %s", path)
	}

	valueBytes, err := yaml.Marshal(value)
	if err != nil {
		return types.WrapError(err, "failed to marshal config value")
	}

	if err = yaml.Unmarshal(valueBytes, target); err != nil {
		return types.Errorf(types.ErrConfigParseFailed, "path %s: %v", path, err)
	}

	return nil
}

// GetAllPaths lists every leaf path in sorted order.
func (p *Parser) GetAllPaths() []string {
	var paths []string
	collectPaths("", p.data, &paths)
	sort.Strings(paths)
	return paths
}

func collectPaths(prefix string, value interface{}, paths *[]string) {
	node, ok := value.(map[string]interface{})
	if !ok || len(node) == 0 {
		if prefix != "" {
			*paths = append(*paths, prefix)
		}
		return
	}

	for key, child := range node {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		collectPaths(path, child, paths)
	}
}

func (p *Parser) navigateToPath(path string) interface{} {
	if path == "" {
		return p.data
	}

	var current interface{} = p.data

	for _, part := range strings.Split(path, ".") {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}

		current, ok = node[part]
		if !ok || current == nil {
			return nil
		}
	}

	return current
}
