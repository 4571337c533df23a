package services

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type questionsFile struct {
	Questions []string `yaml:"questions"`
}

// LoadFallbackQuestions reads the local example-question list served when
// the backend cannot generate one. A missing file is not an error; it
// just means there is no fallback.
func LoadFallbackQuestions(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var f questionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f.Questions, nil
}
