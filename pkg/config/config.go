// Package config loads the rule set from a sops configuration file.
//
// Only the parts of the file that decide what must be normalized before
// encryption are read: the path_regex and encrypted_regex of every entry in
// creation_rules. Every other key (key groups, KMS settings, and so on) is
// left for sops itself.
package config

import (
	"errors"
	"fmt"

	"github.com/macropower/sopsgate/pkg/rule"
	"github.com/macropower/sopsgate/pkg/yaml"
)

// ErrInvalidConfig is returned when a configuration file cannot be used.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultFileNames are the configuration file names sops looks for.
var DefaultFileNames = []string{
	".sops.yaml",
	".sops.yml",
}

// Config is the subset of a sops configuration file used by sopsgate.
type Config struct {
	// CreationRules decide which files are encrypted, and which fields hold secrets.
	CreationRules rule.Rules `json:"creation_rules,omitempty" jsonschema:"title=Creation Rules"`
}

// Load reads, validates and compiles the configuration file at path.
// A missing file returns an error matching [fs.ErrNotExist].
func Load(path string) (*Config, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Parse validates data against the configuration schema, decodes it, and
// compiles every rule. An empty document is a valid configuration with no
// rules.
func Parse(data []byte) (*Config, error) {
	var raw any

	err := yaml.Unmarshal(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg := &Config{}
	if raw == nil {
		return cfg, nil
	}

	validator, err := getValidator()
	if err != nil {
		return nil, err
	}

	err = validator.Validate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, yaml.Locate(err, data))
	}

	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	err = cfg.CreationRules.Compile()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg, nil
}
