package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFilename is looked up next to the input sources when no explicit
// configuration path is given.
const DefaultFilename = "atomgo.yaml"

// InlineMode selects how the hardware emitter substitutes single-use wires.
type InlineMode string

const (
	// InlineSingle performs one substitution step per wire.
	InlineSingle InlineMode = "single"
	// InlineFixpoint repeats substitution until nothing changes.
	InlineFixpoint InlineMode = "fixpoint"
	// InlineNone keeps every wire assignment.
	InlineNone InlineMode = "none"
)

// ParseInlineMode converts a command-line spelling into an InlineMode.
func ParseInlineMode(s string) (InlineMode, error) {
	switch m := InlineMode(s); m {
	case InlineSingle, InlineFixpoint, InlineNone:
		return m, nil
	}
	return "", fmt.Errorf("config: unknown inline mode %q", s)
}

// Config holds compiler options and per-class scheduling hints.
type Config struct {
	Inline  InlineMode            `yaml:"inline"`
	Trace   bool                  `yaml:"trace,omitempty"`
	Classes map[string]ClassHints `yaml:"classes,omitempty"`
}

// ClassHints are passed through to the class record of the named class.
type ClassHints struct {
	Rules     []string   `yaml:"rules,omitempty"`
	Priority  []Priority `yaml:"priority,omitempty"`
	Connect   []Connect  `yaml:"connect,omitempty"`
	Overrides []Override `yaml:"overrides,omitempty"`
	Software  []string   `yaml:"software,omitempty"`
}

// Priority attaches a scheduling level to a rule.
type Priority struct {
	Rule  string `yaml:"rule"`
	Level string `yaml:"level"`
}

// Connect wires the interface field Source into Target.
type Connect struct {
	Target    string `yaml:"target"`
	Source    string `yaml:"source"`
	Interface string `yaml:"interface"`
}

// Override replaces the repeat count of a field, turning it into a vector
// of identical fields.
type Override struct {
	Field string `yaml:"field"`
	Count int    `yaml:"count"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	if c.Inline == "" {
		c.Inline = InlineSingle
	}
	if c.Classes == nil {
		c.Classes = make(map[string]ClassHints)
	}
}

func (c *Config) validate() error {
	switch c.Inline {
	case InlineSingle, InlineFixpoint, InlineNone:
	default:
		return fmt.Errorf("unknown inline mode %q", c.Inline)
	}
	for name, hints := range c.Classes {
		for _, o := range hints.Overrides {
			if o.Field == "" || o.Count <= 0 {
				return fmt.Errorf("class %s: override needs a field and a positive count", name)
			}
		}
		for _, conn := range hints.Connect {
			if conn.Target == "" || conn.Source == "" || conn.Interface == "" {
				return fmt.Errorf("class %s: connect needs target, source and interface", name)
			}
		}
	}
	return nil
}

// Hints returns the hints for class name (zero value when absent).
func (c Config) Hints(name string) ClassHints {
	return c.Classes[name]
}

// Load reads and validates a configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Discover loads DefaultFilename from dir when it exists and returns the
// default configuration otherwise.
func Discover(dir string) (Config, error) {
	path := filepath.Join(dir, DefaultFilename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Load(path)
}

// WriteTemplate writes cfg to dir/DefaultFilename.
func WriteTemplate(dir string, cfg Config) error {
	cfg.normalize()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, DefaultFilename))
	if err != nil {
		return fmt.Errorf("config: create %s: %w", DefaultFilename, err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(&cfg); err != nil {
		return fmt.Errorf("config: encode %s: %w", DefaultFilename, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("config: close %s: %w", DefaultFilename, err)
	}
	return nil
}
