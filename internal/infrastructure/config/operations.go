package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// OperationSpec binds an analysis operation name to a model
type OperationSpec struct {
	Name        string   `yaml:"name"`
	Model       string   `yaml:"model"`
	Input       string   `yaml:"input"`
	Description string   `yaml:"description"`
	Required    []string `yaml:"required"`
}

type operationsFile struct {
	Operations []OperationSpec `yaml:"operations"`
}

// LoadOperations reads an operations file. An empty path yields no specs.
func LoadOperations(path string) ([]OperationSpec, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read operations file: %w", err)
	}
	return ParseOperations(data)
}

// ParseOperations decodes operations YAML
func ParseOperations(data []byte) ([]OperationSpec, error) {
	var file operationsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid operations file: %w", err)
	}

	seen := make(map[string]bool, len(file.Operations))
	for i, op := range file.Operations {
		if op.Name == "" {
			return nil, fmt.Errorf("operation %d: name required", i)
		}
		if op.Model == "" {
			return nil, fmt.Errorf("operation %s: model required", op.Name)
		}
		switch op.Input {
		case "", "text", "image":
		default:
			return nil, fmt.Errorf("operation %s: input must be text or image, got %q", op.Name, op.Input)
		}
		for _, p := range op.Required {
			if p == "" {
				return nil, fmt.Errorf("operation %s: empty required parameter", op.Name)
			}
		}
		if seen[op.Name] {
			return nil, fmt.Errorf("operation %s declared twice", op.Name)
		}
		seen[op.Name] = true
	}
	return file.Operations, nil
}
