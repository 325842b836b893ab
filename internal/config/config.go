package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/lockdown/internal/logger"
)

// StoreDriver selects the schedule store backend.
type StoreDriver string

const (
	// StoreFile keeps schedules and alarm records in JSON files.
	StoreFile StoreDriver = "file"
	// StoreSQLite keeps schedules and alarm records in a SQLite database.
	StoreSQLite StoreDriver = "sqlite"
)

// Config holds settings shared by the lockdown binaries.
type Config struct {
	// ListenAddress is the gRPC control API address of lockdownd.
	ListenAddress string `yaml:"listen_addr"`
	// StateDir holds schedules, alarm records, the grant and the presence marker.
	StateDir string `yaml:"state_dir"`
	// Store selects the schedule store backend.
	Store StoreDriver `yaml:"store"`
	// Timezone is the IANA zone daily windows are expressed in; empty means local.
	Timezone string `yaml:"timezone"`
	// LockCommand overrides the detected host lock command (argv form).
	LockCommand []string `yaml:"lock_command,omitempty"`
	// DesktopNotifications enables notify-send/osascript notices.
	DesktopNotifications bool `yaml:"desktop_notifications"`
	// LogLevel is the daemon log level.
	LogLevel string `yaml:"log_level"`
	// LogFormat is "console" or "json".
	LogFormat string `yaml:"log_format"`
	// Timeout bounds RPC calls and host commands.
	Timeout time.Duration `yaml:"timeout"`
	// ResyncInterval is how often the dispatcher re-checks wall time for missed alarms.
	ResyncInterval time.Duration `yaml:"resync_interval"`
	// LateThreshold marks deliveries later than this as late.
	LateThreshold time.Duration `yaml:"late_threshold"`
	// QueueSize is the capacity of the enforcer event queue.
	QueueSize int `yaml:"queue_size"`
	// Location is resolved from Timezone during validation. It is not persisted.
	Location *time.Location `yaml:"-"`
}

const (
	// AppName is used for XDG subdirectories and notification titles.
	AppName = "lockdown"

	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "lockdown.yaml"

	// DefaultListenAddress is the default control API address.
	DefaultListenAddress = "127.0.0.1:50077"

	// DefaultTimeout is the default duration for RPC calls and host commands.
	DefaultTimeout = 5 * time.Second

	// DefaultResyncInterval is the default wall-clock resync period.
	DefaultResyncInterval = 30 * time.Second

	// DefaultLateThreshold is the default lateness threshold for alarm delivery.
	DefaultLateThreshold = time.Minute

	// DefaultQueueSize is the default enforcer queue capacity.
	DefaultQueueSize = 64

	// DefaultFilePermissions is the default file permission for state and config files.
	DefaultFilePermissions = 0o600

	// DefaultDirPermissions is the default permission for created directories.
	DefaultDirPermissions = 0o700
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errListenAddressRequired is returned when the listen address is missing.
	errListenAddressRequired = errors.New("listen address must be provided")
	// errUnknownStore is returned for an unsupported store driver.
	errUnknownStore = errors.New("unknown store driver")
)

// DefaultPath returns the settings path under the XDG config home.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, DefaultConfigFilename)
}

// DefaultStateDir returns the state directory under the XDG state home.
func DefaultStateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		DesktopNotifications: true,
	}

	// Defaults alone always validate.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates it.
// A missing file at the default location yields the defaults.
func Load(path string) (*Config, error) {
	isDefault := path == ""
	if isDefault {
		path = DefaultPath()
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if isDefault && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Config{
		DesktopNotifications: true,
	}
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultPath()
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filepath.Clean(path)), DefaultDirPermissions); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills in defaults.
//
//nolint:cyclop // One branch per field keeps the defaults readable.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.ListenAddress == "" {
		settings.ListenAddress = DefaultListenAddress
	}

	if _, _, err := net.SplitHostPort(settings.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if settings.StateDir == "" {
		settings.StateDir = DefaultStateDir()
	}

	switch settings.Store {
	case "":
		settings.Store = StoreFile
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("%w: %q", errUnknownStore, settings.Store)
	}

	location := time.Local

	if settings.Timezone != "" {
		loaded, err := time.LoadLocation(settings.Timezone)
		if err != nil {
			return fmt.Errorf("load timezone: %w", err)
		}

		location = loaded
	}

	settings.Location = location

	if settings.LogLevel == "" {
		settings.LogLevel = "info"
	}

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return fmt.Errorf("invalid log level %q", settings.LogLevel)
	}

	if _, ok := logger.ParseFormat(settings.LogFormat); !ok {
		return fmt.Errorf("invalid log format %q", settings.LogFormat)
	}

	// Set default durations if not specified.
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.ResyncInterval <= 0 {
		settings.ResyncInterval = DefaultResyncInterval
	}

	if settings.LateThreshold <= 0 {
		settings.LateThreshold = DefaultLateThreshold
	}

	if settings.QueueSize <= 0 {
		settings.QueueSize = DefaultQueueSize
	}

	return nil
}

// StatePath joins name onto the state directory.
func (c *Config) StatePath(name string) string {
	return filepath.Join(c.StateDir, name)
}
