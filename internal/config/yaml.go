package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// loadYAML overlays the settings present in the YAML file at path onto c.
// Keys missing from the file keep their current value.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}
