package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/switchyard/pkg/domain"
	"gopkg.in/yaml.v3"
)

// ProcessConfig binds a target address to a local command.
type ProcessConfig struct {
	Address     domain.Address    `yaml:"address" json:"address" mapstructure:"address"`
	Name        string            `yaml:"name" json:"name" mapstructure:"name"`
	Command     string            `yaml:"command" json:"command" mapstructure:"command"`
	Args        []string          `yaml:"args" json:"args" mapstructure:"args"`
	Environment map[string]string `yaml:"env" json:"env" mapstructure:"env"`
	Description string            `yaml:"description" json:"description" mapstructure:"description"`
}

// ConfigFile represents the structure of targets.yaml
type ConfigFile struct {
	Targets []ProcessConfig `yaml:"targets" json:"targets"`
}

// LoadTargets reads a configuration file (YAML or JSON) keyed by target address.
// A missing file yields an empty set.
func LoadTargets(path string) (map[domain.Address]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[domain.Address]ProcessConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read targets config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	targets := make(map[domain.Address]ProcessConfig, len(cfg.Targets))
	for _, t := range cfg.Targets {
		if t.Address.IsZero() || t.Command == "" {
			continue
		}
		targets[t.Address] = t
	}
	return targets, nil
}
