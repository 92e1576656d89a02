package training

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoExamples is returned when a training file holds no examples.
var ErrNoExamples = errors.New("no training examples")

// Example is one question with its expected answer.
type Example struct {
	Input  string `json:"input" yaml:"input"`
	Output string `json:"output" yaml:"output"`
}

// LoadExamples reads a JSON or YAML array of examples.
func LoadExamples(path string) ([]Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read examples: %w", err)
	}

	var examples []Example
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &examples)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &examples)
	default:
		return nil, fmt.Errorf("unsupported examples format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse examples %s: %w", path, err)
	}

	if len(examples) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoExamples)
	}
	for i, ex := range examples {
		if strings.TrimSpace(ex.Input) == "" {
			return nil, fmt.Errorf("%s: example %d has no input", path, i)
		}
	}
	return examples, nil
}
