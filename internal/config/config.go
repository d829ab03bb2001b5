package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	DataRoot     string `koanf:"data_root"`
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	BackupOnSave bool   `koanf:"backup_on_save"`
	// BackupDir defaults to a backups/ directory next to the data root.
	BackupDir string `koanf:"backup_dir"`
	// AuditLog defaults to edits.log next to the data root.
	AuditLog          string `koanf:"audit_log"`
	ReviewedOutputDir string `koanf:"reviewed_output_dir"`
	SkippedOutputDir  string `koanf:"skipped_output_dir"`
	// SlotsSchema optionally points at a YAML file extending the built-in
	// slot registry with deployment-specific slots and option lists.
	SlotsSchema string `koanf:"slots_schema"`
}

// LoadConfig loads the configuration: defaults, then an optional TOML file,
// then environment variables with the GOLDEDIT_ prefix.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	k.Load(confmap.Provider(map[string]interface{}{
		"data_root":      ".",
		"host":           "127.0.0.1",
		"port":           8000,
		"backup_on_save": true,
	}, "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./goldedit.toml", "$HOME/.goldedit.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Config keys are flat with underscores (data_root, backup_on_save), so
	// the env name maps to the key by lowercasing alone.
	k.Load(env.Provider("GOLDEDIT_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "GOLDEDIT_"))
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	config.applyDerived()
	return &config, nil
}

// applyDerived resolves the data root to an absolute path and fills the
// sibling-directory defaults for backups, outputs, and the audit log.
func (c *Config) applyDerived() {
	if abs, err := filepath.Abs(c.DataRoot); err == nil {
		c.DataRoot = abs
	}
	parent := filepath.Dir(c.DataRoot)
	if c.BackupDir == "" {
		c.BackupDir = filepath.Join(parent, "backups")
	}
	if c.ReviewedOutputDir == "" {
		c.ReviewedOutputDir = filepath.Join(parent, "reviewed")
	}
	if c.SkippedOutputDir == "" {
		c.SkippedOutputDir = filepath.Join(parent, "skipped")
	}
	if c.AuditLog == "" {
		c.AuditLog = filepath.Join(parent, "edits.log")
	}
}

// OverrideDataRoot replaces the data root after loading, re-deriving any
// sibling-directory defaults that were not set explicitly.
func (c *Config) OverrideDataRoot(path string) {
	parent := filepath.Dir(c.DataRoot)
	if c.BackupDir == filepath.Join(parent, "backups") {
		c.BackupDir = ""
	}
	if c.ReviewedOutputDir == filepath.Join(parent, "reviewed") {
		c.ReviewedOutputDir = ""
	}
	if c.SkippedOutputDir == filepath.Join(parent, "skipped") {
		c.SkippedOutputDir = ""
	}
	if c.AuditLog == filepath.Join(parent, "edits.log") {
		c.AuditLog = ""
	}
	c.DataRoot = path
	c.applyDerived()
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# goldedit configuration

data_root = "./output"
host = "127.0.0.1"
port = 8000
backup_on_save = true

# Defaults are siblings of the data root; uncomment to override.
# backup_dir = "./backups"
# audit_log = "./edits.log"
# reviewed_output_dir = "./reviewed"
# skipped_output_dir = "./skipped"
# slots_schema = "./slots_schema.yaml"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.DataRoot == "" {
		return fmt.Errorf("data root is required")
	}
	fi, err := os.Stat(config.DataRoot)
	if err != nil {
		return fmt.Errorf("data root %s: %w", config.DataRoot, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("data root %s is not a directory", config.DataRoot)
	}
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("invalid port %d", config.Port)
	}
	return nil
}
