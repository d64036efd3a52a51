// Package config loads the roster service configuration from an optional YAML
// file, environment variables and command line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolhive-roster/internal/logger"
	"github.com/stacklok/toolhive-roster/internal/store"
	"github.com/stacklok/toolhive-roster/internal/telemetry"
)

const (
	// AppName names the data directory under the XDG data home
	AppName = "thv-roster"

	// EnvPrefix prefixes every environment override, e.g. THV_ROSTER_REGISTRY_FILE
	EnvPrefix = "THV_ROSTER"

	// DefaultAddress is the HTTP listen address for serve
	DefaultAddress = ":8080"

	// DefaultLogLevel is used when no level is configured
	DefaultLogLevel = "info"

	maxSaveRetries = 10
)

// Keys understood by override viper instances. Flags are bound under the same
// names; environment variables use EnvPrefix and underscores.
const (
	KeyRegistryFile = "registry-file"
	KeyEncoding     = "encoding"
	KeyLock         = "lock"
	KeySaveRetries  = "save-retries"
	KeyAddress      = "address"
	KeyLogLevel     = "log-level"
	KeyLogJSON      = "log-json"
)

// Option configures LoadConfig
type Option func(*loaderConfig) error

type loaderConfig struct {
	path      string
	overrides *viper.Viper
}

// WithConfigPath reads the YAML file at path
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}
		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}
		cfg.path = realPath
		return nil
	}
}

// WithOverrides applies values set in v on top of the file. v is typically
// the CLI's viper instance with flags bound and env lookup enabled.
func WithOverrides(v *viper.Viper) Option {
	return func(cfg *loaderConfig) error {
		cfg.overrides = v
		return nil
	}
}

// NewOverrides returns a viper instance reading THV_ROSTER_* variables
func NewOverrides() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Config is the root configuration
type Config struct {
	// RegistryFile is the roster file path. Defaults to
	// $XDG_DATA_HOME/thv-roster/headsets.config.
	RegistryFile string `yaml:"registryFile,omitempty"`

	// Encoding forces "json" or "yaml"; empty infers it from the file extension
	Encoding string `yaml:"encoding,omitempty"`

	// Lock guards load, mutate and save with a lock file. Defaults to true.
	Lock *bool `yaml:"lock,omitempty"`

	// SaveRetries bounds retries of a failed write. Defaults to 3.
	SaveRetries *int `yaml:"saveRetries,omitempty"`

	// Keys adds field name aliases recognised when reading the roster file
	Keys *KeysConfig `yaml:"keys,omitempty"`

	Log       LogConfig         `yaml:"log,omitempty"`
	Server    ServerConfig      `yaml:"server,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// KeysConfig lists extra names for the interpreted roster fields
type KeysConfig struct {
	IDs       []string `yaml:"ids,omitempty"`
	Names     []string `yaml:"names,omitempty"`
	FamilyIDs []string `yaml:"familyIds,omitempty"`
	Active    []string `yaml:"active,omitempty"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
	JSON  bool   `yaml:"json,omitempty"`
}

// ServerConfig configures the HTTP adapter
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
}

// LoadConfig builds the configuration. Without a path the defaults apply.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if loaderCfg.overrides != nil {
		cfg.applyOverrides(loaderCfg.overrides)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

func (c *Config) applyOverrides(v *viper.Viper) {
	if v.IsSet(KeyRegistryFile) {
		c.RegistryFile = v.GetString(KeyRegistryFile)
	}
	if v.IsSet(KeyEncoding) {
		c.Encoding = v.GetString(KeyEncoding)
	}
	if v.IsSet(KeyLock) {
		lock := v.GetBool(KeyLock)
		c.Lock = &lock
	}
	if v.IsSet(KeySaveRetries) {
		retries := v.GetInt(KeySaveRetries)
		c.SaveRetries = &retries
	}
	if v.IsSet(KeyAddress) {
		c.Server.Address = v.GetString(KeyAddress)
	}
	if v.IsSet(KeyLogLevel) {
		c.Log.Level = v.GetString(KeyLogLevel)
	}
	if v.IsSet(KeyLogJSON) {
		c.Log.JSON = v.GetBool(KeyLogJSON)
	}
}

// GetRegistryFile returns the roster file path with an unsafe file name
// replaced by a sanitised one
func (c *Config) GetRegistryFile() string {
	if c.RegistryFile == "" {
		return filepath.Join(xdg.DataHome, AppName, store.DefaultFileName)
	}
	dir, name := filepath.Split(c.RegistryFile)
	return filepath.Join(dir, store.SafeFileName(name))
}

// GetLock reports whether cross-process locking is enabled
func (c *Config) GetLock() bool {
	return c.Lock == nil || *c.Lock
}

// GetSaveRetries returns the configured write retries
func (c *Config) GetSaveRetries() int {
	if c.SaveRetries == nil {
		return store.DefaultSaveRetries
	}
	return *c.SaveRetries
}

// GetAddress returns the HTTP listen address
func (c *Config) GetAddress() string {
	if c.Server.Address == "" {
		return DefaultAddress
	}
	return c.Server.Address
}

// GetLogLevel returns the log level
func (c *Config) GetLogLevel() string {
	if c.Log.Level == "" {
		return DefaultLogLevel
	}
	return c.Log.Level
}

// KeyAliases returns the configured field aliases
func (c *Config) KeyAliases() store.KeyAliases {
	if c.Keys == nil {
		return store.KeyAliases{}
	}
	return store.KeyAliases{
		IDs:       c.Keys.IDs,
		Names:     c.Keys.Names,
		FamilyIDs: c.Keys.FamilyIDs,
		Active:    c.Keys.Active,
	}
}

// NewStore builds the file store described by the configuration
func (c *Config) NewStore() (*store.FileStore, error) {
	enc, err := store.ParseEncoding(c.Encoding)
	if err != nil {
		return nil, err
	}
	return store.NewFileStore(c.GetRegistryFile(),
		store.WithEncoding(enc),
		store.WithKeyAliases(c.KeyAliases()),
		store.WithLocking(c.GetLock()),
		store.WithSaveRetries(c.GetSaveRetries()),
	), nil
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error
	if _, err := store.ParseEncoding(c.Encoding); err != nil {
		errs = append(errs, err)
	}
	if c.SaveRetries != nil && (*c.SaveRetries < 0 || *c.SaveRetries > maxSaveRetries) {
		errs = append(errs, fmt.Errorf("saveRetries must be between 0 and %d, got %d", maxSaveRetries, *c.SaveRetries))
	}
	if _, err := logger.ParseLevel(c.GetLogLevel()); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Keys != nil {
		for _, alias := range slices.Concat(c.Keys.IDs, c.Keys.Names, c.Keys.FamilyIDs, c.Keys.Active) {
			if strings.TrimSpace(alias) == "" {
				errs = append(errs, errors.New("keys: aliases must not be blank"))
				break
			}
		}
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	return errors.Join(errs...)
}
