// internal/appconfig/schema.go
package appconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema constrains config files to known keys and value shapes so a
// typo fails loudly instead of silently measuring with defaults.
var configSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"host":       map[string]any{"type": "string"},
		"provider":   map[string]any{"type": "string", "enum": []string{"ollama", "llamacpp"}},
		"models":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"prompts":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"repeats":    map[string]any{"type": "integer", "minimum": 1},
		"verbose":    map[string]any{"type": "boolean"},
		"debug":      map[string]any{"type": "boolean"},
		"json":       map[string]any{"type": "boolean"},
		"tui":        map[string]any{"type": "boolean"},
		"unload":     map[string]any{"type": "boolean"},
		"promptFile": map[string]any{"type": "string"},
		"timeout":    map[string]any{"type": "integer", "minimum": 1},
		"logFile":    map[string]any{"type": "string"},
	},
}

// ValidateBytes checks raw config file contents against the config schema.
func ValidateBytes(data []byte) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	schemaLoader := gojsonschema.NewGoLoader(configSchema)
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("config failed validation: %s", strings.Join(details, "; "))
}

// ValidateFile checks the config file at path against the config schema.
func ValidateFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return ValidateBytes(data)
}
