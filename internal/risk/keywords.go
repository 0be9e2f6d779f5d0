package risk

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// KeywordConfig is the on-disk keyword list.
//
//	keywords:
//	  - suicide
//	  - end my life
type KeywordConfig struct {
	Keywords []string `yaml:"keywords"`
}

// LoadClassifier builds a classifier from a YAML keyword file. An empty path
// yields the default keyword set.
func LoadClassifier(path string) (*Classifier, error) {
	if path == "" {
		return NewDefaultClassifier(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword file: %w", err)
	}

	var config KeywordConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse keyword file: %w", err)
	}

	classifier := NewClassifier(config.Keywords)
	if len(classifier.keywords) == 0 {
		return nil, fmt.Errorf("keyword file %s contains no keywords", path)
	}

	log.Printf("Loaded %d risk keywords from %s", len(classifier.keywords), path)
	return classifier, nil
}
