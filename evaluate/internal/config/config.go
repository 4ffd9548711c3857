// Package config loads evaluate.yaml: the site/door identifiers an
// offline access-evaluation run checks a credential against, and where to
// read the credential's files from.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level evaluate.yaml shape.
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Door    DoorConfig    `yaml:"door"`
	Now     *NowConfig    `yaml:"now"`
	Input   InputConfig   `yaml:"input"`
	Runtime RuntimeConfig `yaml:"runtime"`
}

type SiteConfig struct {
	Id uint16 `yaml:"id"`
}

type DoorConfig struct {
	Id uint16 `yaml:"id"`
}

// NowConfig overrides the evaluator's clock; when absent the tool uses the
// wall-clock time at evaluation.
type NowConfig struct {
	Year    uint16 `yaml:"year"`
	Month   uint8  `yaml:"month"`
	Date    uint8  `yaml:"date"`
	Hours   uint8  `yaml:"hours"`
	Minutes uint8  `yaml:"minutes"`
}

type InputConfig struct {
	MobileFile string `yaml:"mobile_file"`
}

type RuntimeConfig struct {
	ReaderIndex    *int   `yaml:"reader_index"`
	AID            uint32 `yaml:"aid"`
	ProjectKeyFile string `yaml:"project_key_file"`
}

func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Site.Id == 0 {
		return fmt.Errorf("config.site.id is required")
	}
	if c.Door.Id == 0 {
		return fmt.Errorf("config.door.id is required")
	}
	if c.UsesCard() {
		if c.Runtime.AID == 0 {
			return fmt.Errorf("config.runtime.aid is required when reader_index is set")
		}
		if strings.TrimSpace(c.Runtime.ProjectKeyFile) == "" {
			return fmt.Errorf("config.runtime.project_key_file is required when reader_index is set")
		}
		return validateReadableFile(c.Runtime.ProjectKeyFile, "config.runtime.project_key_file")
	}
	if strings.TrimSpace(c.Input.MobileFile) == "" {
		return fmt.Errorf("config.input.mobile_file is required unless config.runtime.reader_index is set")
	}
	return validateReadableFile(c.Input.MobileFile, "config.input.mobile_file")
}

// UsesCard reports whether the config points at a live DESFire reader
// instead of a serialized mobile-file snapshot.
func (c *Config) UsesCard() bool {
	return c.Runtime.ReaderIndex != nil
}

func (c *Config) resolvePaths(configPath string) {
	configDir := filepath.Dir(configPath)
	c.Input.MobileFile = resolvePath(configDir, c.Input.MobileFile)
	c.Runtime.ProjectKeyFile = resolvePath(configDir, c.Runtime.ProjectKeyFile)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(baseDir, trimmed)
}

func validateReadableFile(path, field string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s: %q is a directory", field, path)
	}
	return nil
}
