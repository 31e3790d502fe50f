package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"touchcal/internal/atomicfile"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used to resolve "today" (e.g. "America/Chicago").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday the display layer treats as the
	// first day of the week. Supported values:
	//   - "monday" (default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// DataDir holds the task store, event store and their backups.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// ClassesPath is the human-edited template document.
	ClassesPath string `yaml:"classes_path" json:"classes_path"`

	// ICSClassesPath is the auto-generated template appendix written by the
	// ICS importer. Loaded after ClassesPath; may be absent.
	ICSClassesPath string `yaml:"ics_classes_path" json:"ics_classes_path"`

	// RefreshCron is a cron-style schedule (e.g. "5 0 * * *") on which
	// today's tasks are materialized.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// BackupEnabled toggles timestamped backups of the task and event
	// stores before each overwrite.
	BackupEnabled bool `yaml:"backup_enabled" json:"backup_enabled"`

	// DefaultEventDuration is the event duration in minutes offered by the
	// display layer when none is given.
	DefaultEventDuration int `yaml:"default_event_duration" json:"default_event_duration"`

	// Theme and ShowWeekNumbers are display-layer preferences. The engine
	// only stores them.
	Theme           string `yaml:"theme" json:"theme"`
	ShowWeekNumbers bool   `yaml:"show_week_numbers" json:"show_week_numbers"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:               "127.0.0.1:8080",
		Timezone:             "Local",
		WeekStart:            "monday",
		DataDir:              "/var/lib/touchcal",
		ClassesPath:          "/var/lib/touchcal/classes.txt",
		ICSClassesPath:       "/var/lib/touchcal/classes_from_ics.txt",
		RefreshCron:          "5 0 * * *",
		BackupEnabled:        true,
		DefaultEventDuration: 60,
		Theme:                "light",
		ShowWeekNumbers:      false,
		BasicAuth:            nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
		// ok
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = "monday"
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.ClassesPath == "" {
		c.ClassesPath = filepath.Join(c.DataDir, "classes.txt")
	}
	if c.ICSClassesPath == "" {
		c.ICSClassesPath = filepath.Join(c.DataDir, "classes_from_ics.txt")
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.DefaultEventDuration <= 0 {
		c.DefaultEventDuration = def.DefaultEventDuration
	}
	if c.Theme == "" {
		c.Theme = def.Theme
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there (0600)
//     and returned.
//   - If the file exists, it is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path, atomically
// and with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return atomicfile.WriteFile(path, data, 0o600)
}

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
