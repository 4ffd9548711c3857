// Package config loads provision.yaml: the site/door/schedule layout and
// the DESFire keys a provisioning run writes onto a fresh credential.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValidationMode int

const (
	ValidationFull ValidationMode = iota
	ValidationEmulator
)

// Config is the top-level provision.yaml shape.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Door       DoorConfig       `yaml:"door"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Credential CredentialConfig `yaml:"credential"`
	Keys       KeysConfig       `yaml:"keys"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
}

type SiteConfig struct {
	Id uint16 `yaml:"id"`
}

type DoorConfig struct {
	Id           uint16 `yaml:"id"`
	AccessBy     string `yaml:"access_by"` // "door" or "group"
	Toggle       bool   `yaml:"toggle"`
	ExtendedTime bool   `yaml:"extended_time"`
}

type PeriodConfig struct {
	From string `yaml:"from"` // "HH:MM"
	To   string `yaml:"to"`   // "HH:MM", "24:00" allowed
}

type DayConfig struct {
	Weekdays []string       `yaml:"weekdays"`
	Periods  []PeriodConfig `yaml:"periods"`
}

type ScheduleConfig struct {
	TimePeriodsPerDay int         `yaml:"time_periods_per_day"`
	Days              []DayConfig `yaml:"days"`
}

type CredentialConfig struct {
	Id                  string `yaml:"id"`
	Type                string `yaml:"type"` // "regular" or "intervention_media"
	MaxEventEntries     int    `yaml:"max_event_entries"`
	MaxBlacklistEntries int    `yaml:"max_blacklist_entries"`
}

type KeysConfig struct {
	ProjectKeyFile   string `yaml:"project_key_file"`
	AppMasterKeyFile string `yaml:"app_master_key_file"`
}

type RuntimeConfig struct {
	AID         uint32 `yaml:"aid"`
	ReaderIndex *int   `yaml:"reader_index"`
}

func Load(path string) (*Config, error) {
	return LoadWithMode(path, ValidationFull)
}

func LoadWithMode(path string, mode ValidationMode) (*Config, error) {
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
	if err := cfg.ValidateWithMode(mode); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	return c.ValidateWithMode(ValidationFull)
}

func (c *Config) ValidateWithMode(mode ValidationMode) error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	switch mode {
	case ValidationEmulator:
		return nil
	case ValidationFull:
		return c.validateFullMode()
	default:
		return fmt.Errorf("unsupported validation mode: %d", mode)
	}
}

func (c *Config) validateCommon() error {
	if c.Site.Id == 0 {
		return fmt.Errorf("config.site.id is required")
	}
	if c.Door.Id == 0 {
		return fmt.Errorf("config.door.id is required")
	}
	switch c.Door.AccessBy {
	case "door", "group":
	default:
		return fmt.Errorf("config.door.access_by must be \"door\" or \"group\", got %q", c.Door.AccessBy)
	}
	if strings.TrimSpace(c.Credential.Id) == "" {
		return fmt.Errorf("config.credential.id is required")
	}
	switch c.Credential.Type {
	case "", "regular", "intervention_media":
	default:
		return fmt.Errorf("config.credential.type must be \"regular\" or \"intervention_media\", got %q", c.Credential.Type)
	}
	if c.Credential.MaxEventEntries <= 0 {
		return fmt.Errorf("config.credential.max_event_entries must be > 0")
	}
	if c.Credential.MaxBlacklistEntries <= 0 {
		return fmt.Errorf("config.credential.max_blacklist_entries must be > 0")
	}
	if len(c.Schedule.Days) == 0 {
		return fmt.Errorf("config.schedule.days must have at least one entry")
	}
	if c.Schedule.TimePeriodsPerDay <= 0 {
		return fmt.Errorf("config.schedule.time_periods_per_day must be > 0")
	}
	return nil
}

func (c *Config) validateFullMode() error {
	if strings.TrimSpace(c.Keys.ProjectKeyFile) == "" {
		return fmt.Errorf("config.keys.project_key_file is required")
	}
	if err := validateReadableFile(c.Keys.ProjectKeyFile, "config.keys.project_key_file"); err != nil {
		return err
	}
	if c.Runtime.AID == 0 {
		return fmt.Errorf("config.runtime.aid is required")
	}
	if c.Runtime.ReaderIndex == nil {
		return fmt.Errorf("config.runtime.reader_index is required")
	}
	if *c.Runtime.ReaderIndex < 0 {
		return fmt.Errorf("config.runtime.reader_index must be >= 0")
	}
	return nil
}

func (c *Config) resolvePaths(configPath string) {
	configDir := filepath.Dir(configPath)
	c.Keys.ProjectKeyFile = resolvePath(configDir, c.Keys.ProjectKeyFile)
	c.Keys.AppMasterKeyFile = resolvePath(configDir, c.Keys.AppMasterKeyFile)
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
