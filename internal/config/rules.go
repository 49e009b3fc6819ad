package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RulesFile is a standalone whitelist rules document, loadable at
// runtime through `fastgate rule load`.
type RulesFile struct {
	Rules []RuleConfig `yaml:"rules"`
}

// LoadRules reads and validates a standalone rules YAML file.
func LoadRules(path string) (*RulesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rf RulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	for i := range rf.Rules {
		if err := rf.Rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
	}

	return &rf, nil
}
