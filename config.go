package assetpack

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/meigma/assetpack/format"
)

// Config is the YAML-loadable registry configuration.
//
// Example:
//
//	max_entries: 65536
//	max_entry_size: 67108864
//	workers: 4
//	disabled: [bank]
//	obfuscated:
//	  - tag: title-arc
//	    description: arc archives shipped by one title
//	    inner: arc
//	    key: 0x5A
//	    extensions: [.tarc]
type Config struct {
	// MaxEntries caps the entries a container may declare (0 = default).
	MaxEntries int `yaml:"max_entries"`

	// MaxEntrySize caps ReadEntry allocations in bytes (0 = default).
	MaxEntrySize uint64 `yaml:"max_entry_size"`

	// MaxDecoderMemory caps zstd decoder memory in bytes (0 = no limit).
	MaxDecoderMemory uint64 `yaml:"max_decoder_memory"`

	// Workers is the OpenAll concurrency (0 = GOMAXPROCS).
	Workers int `yaml:"workers"`

	// Disabled lists built-in module tags that are not registered.
	Disabled []string `yaml:"disabled"`

	// Obfuscated registers XOR-obfuscated aliases of container modules.
	Obfuscated []ObfuscatedConfig `yaml:"obfuscated"`
}

// ObfuscatedConfig describes one XOR-obfuscated container alias.
type ObfuscatedConfig struct {
	Tag         string   `yaml:"tag"`
	Description string   `yaml:"description"`
	Inner       string   `yaml:"inner"`
	Key         uint8    `yaml:"key"`
	Extensions  []string `yaml:"extensions"`
}

// LoadConfig decodes and validates a YAML configuration.
// Unknown fields are rejected. Empty input yields an empty Config.
func LoadConfig(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfigFile reads the configuration at path.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	defer f.Close()

	cfg, err := LoadConfig(f)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks limits and alias definitions.
func (c *Config) Validate() error {
	if c.MaxEntries < 0 || c.MaxEntries > format.MaxEntries {
		return fmt.Errorf("%w: max_entries %d outside [0, %d]", ErrInvalidConfig, c.MaxEntries, format.MaxEntries)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: negative workers %d", ErrInvalidConfig, c.Workers)
	}
	for _, tag := range c.Disabled {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("%w: empty disabled tag", ErrInvalidConfig)
		}
	}

	seen := make(map[string]bool, len(c.Obfuscated))
	for i, o := range c.Obfuscated {
		switch {
		case o.Tag == "":
			return fmt.Errorf("%w: obfuscated[%d]: missing tag", ErrInvalidConfig, i)
		case o.Inner == "":
			return fmt.Errorf("%w: obfuscated[%d] %q: missing inner", ErrInvalidConfig, i, o.Tag)
		case o.Inner == o.Tag:
			return fmt.Errorf("%w: obfuscated[%d] %q: wraps itself", ErrInvalidConfig, i, o.Tag)
		case o.Key == 0:
			return fmt.Errorf("%w: obfuscated[%d] %q: key must be non-zero", ErrInvalidConfig, i, o.Tag)
		case seen[o.Tag]:
			return fmt.Errorf("%w: obfuscated[%d]: duplicate tag %q", ErrInvalidConfig, i, o.Tag)
		}
		seen[o.Tag] = true
	}
	return nil
}
