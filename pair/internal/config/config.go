// Package config loads pair.yaml: the demo terminal/transponder identity
// and the single administrative command the pairing exchange carries end
// to end over an in-process loopback connection.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the top-level pair.yaml shape.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Command CommandConfig `yaml:"command"`
	Keys    KeysConfig    `yaml:"keys"`
}

// DeviceConfig names the transponder side of the exchange, the way a
// handset would identify itself to GetTerminalPublicKey. Id is a UUID;
// when left blank in pair.yaml a fresh one is minted for the run.
type DeviceConfig struct {
	Id string `yaml:"id"`
}

// CommandConfig is the administrative command signed by the data key and
// carried inside the command token, plus the validity window the
// terminal checks it against.
type CommandConfig struct {
	CredentialId string        `yaml:"credential_id"`
	Command      string        `yaml:"command"`
	ValidFrom    TimeConfig    `yaml:"valid_from"`
	ValidTo      TimeConfig    `yaml:"valid_to"`
}

type TimeConfig struct {
	Year    uint16 `yaml:"year"`
	Month   uint8  `yaml:"month"`
	Date    uint8  `yaml:"date"`
	Hours   uint8  `yaml:"hours"`
	Minutes uint8  `yaml:"minutes"`
}

// KeysConfig points at the two DER key files the demo needs. When a
// file is blank the corresponding key pair is generated fresh for the
// run and, for the long-term and data keys, its public half is printed
// so it can be pinned into the config for subsequent runs.
type KeysConfig struct {
	TerminalLongTermKeyFile string `yaml:"terminal_long_term_key_file"`
	DataKeyFile             string `yaml:"data_key_file"`
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
	if strings.TrimSpace(cfg.Device.Id) == "" {
		cfg.Device.Id = uuid.New().String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := uuid.Parse(c.Device.Id); err != nil {
		return fmt.Errorf("config.device.id must be a UUID: %w", err)
	}
	if strings.TrimSpace(c.Command.CredentialId) == "" {
		return fmt.Errorf("config.command.credential_id is required")
	}
	if strings.TrimSpace(c.Command.Command) == "" {
		return fmt.Errorf("config.command.command is required")
	}
	if c.Keys.TerminalLongTermKeyFile != "" {
		if err := validateReadableFile(c.Keys.TerminalLongTermKeyFile, "config.keys.terminal_long_term_key_file"); err != nil {
			return err
		}
	}
	if c.Keys.DataKeyFile != "" {
		if err := validateReadableFile(c.Keys.DataKeyFile, "config.keys.data_key_file"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) resolvePaths(configPath string) {
	configDir := filepath.Dir(configPath)
	c.Keys.TerminalLongTermKeyFile = resolvePath(configDir, c.Keys.TerminalLongTermKeyFile)
	c.Keys.DataKeyFile = resolvePath(configDir, c.Keys.DataKeyFile)
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
