package options

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file. Environment variables referenced as
// ${VAR} are expanded before parsing.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML config data
func Parse(data []byte) (*Options, error) {
	expanded := os.ExpandEnv(string(data))

	o := &Options{}
	if err := yaml.Unmarshal([]byte(expanded), o); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	o.applyDefaults()

	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return o, nil
}
