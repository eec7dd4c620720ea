package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the output directory
const FileName = "quack.yaml"

// LeakPolicy decides what is published for a call site whose evidence leaked
type LeakPolicy string

const (
	// LeakUndetermined publishes null for leaked sites
	LeakUndetermined LeakPolicy = "undetermined"
	// LeakAvailable publishes every available class of the site
	LeakAvailable LeakPolicy = "available"
)

// Step is an upstream command run before consolidation.
// "{project}" and "{output}" in Args are substituted.
type Step struct {
	Name         string   `yaml:"name"`
	Args         []string `yaml:"args"`
	AllowFailure bool     `yaml:"allow_failure,omitempty"`
}

// Config models quack.yaml
type Config struct {
	Workers      int        `yaml:"workers"`
	LeakPolicy   LeakPolicy `yaml:"leak_policy"`
	Pretty       bool       `yaml:"pretty"`
	Index        bool       `yaml:"index"`
	EvidenceFile string     `yaml:"evidence_file"`
	AvailFile    string     `yaml:"avail_file"`
	Pipeline     []Step     `yaml:"pipeline,omitempty"`
}

// Default returns the configuration used when no file is present
func Default() Config {
	return Config{
		Workers:      1,
		LeakPolicy:   LeakUndetermined,
		Pretty:       true,
		Index:        true,
		EvidenceFile: "joe_analyze.out",
		AvailFile:    "availclass.json",
	}
}

// Load reads the YAML file at path on top of the defaults. A missing file is
// not an error when optional is set.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks values that yaml cannot check on its own
func (c Config) Validate() error {
	switch c.LeakPolicy {
	case LeakUndetermined, LeakAvailable:
	default:
		return fmt.Errorf("unknown leak_policy %q", c.LeakPolicy)
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	if c.EvidenceFile == "" || c.AvailFile == "" {
		return fmt.Errorf("evidence_file and avail_file must not be empty")
	}

	for i, step := range c.Pipeline {
		if len(step.Args) == 0 {
			return fmt.Errorf("pipeline step %d (%s) has no args", i, step.Name)
		}
	}

	return nil
}

// Save writes the configuration as YAML to path
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}
