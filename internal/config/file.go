package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileLookup reads a flat YAML document of environment-style keys, e.g.
//
//	WAREHOUSE_MCP_PROJECT_ID: my-project
//	WAREHOUSE_MCP_ENUMERATE_RESOURCES: true
//
// Scalar values of any YAML type are accepted and handed to the typed
// parsers as text. Nested mappings and sequences are rejected.
func FileLookup(path string) (LookupFunc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return parseFileLookup(data)
}

func parseFileLookup(data []byte) (LookupFunc, error) {
	var document yaml.Node
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	values := map[string]string{}
	if len(document.Content) == 0 {
		return mapLookupFunc(values), nil
	}
	root := document.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse config file: top level must be a mapping of keys to values")
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("parse config file: %s must be a scalar (line %d)", key.Value, value.Line)
		}
		values[strings.TrimSpace(key.Value)] = value.Value
	}
	return mapLookupFunc(values), nil
}

// ChainLookup consults each lookup in order and returns the first hit.
func ChainLookup(lookups ...LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		for _, lookup := range lookups {
			if lookup == nil {
				continue
			}
			if value, ok := lookup(key); ok {
				return value, true
			}
		}
		return "", false
	}
}

func mapLookupFunc(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
