// Package config resolves run settings from flags, REFSHIFT_* environment
// variables, an optional config file and defaults, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable
const EnvPrefix = "REFSHIFT"

// Keys
const (
	KeyHost           = "host"
	KeyPort           = "port"
	KeyURI            = "uri"
	KeyDB             = "db"
	KeyConnectTimeout = "connect-timeout"
	KeyBatchSize      = "batch-size"
	KeyLogLevel       = "log-level"
	KeyLogFormat      = "log-format"
	KeyOutput         = "output"
	KeyProcessorsFile = "processors-file"
	KeyLockDir        = "lock-dir"
	KeyDryRun         = "dry-run"
	KeyVerbose        = "verbose"
)

// Config holds the resolved settings of a run
type Config struct {
	Host           string
	Port           int
	URI            string
	DB             string
	ConnectTimeout time.Duration
	BatchSize      int
	LogLevel       string
	LogFormat      string
	Output         string
	ProcessorsFile string
	LockDir        string
	DryRun         bool
	Verbose        bool
}

// MongoURI returns the configured URI, built from host and port when unset
func (c Config) MongoURI() string {
	if c.URI != "" {
		return c.URI
	}
	return fmt.Sprintf("mongodb://%s:%d", c.Host, c.Port)
}

// Validate checks settings every command needs
func (c Config) Validate() error {
	if c.DB == "" {
		return fmt.Errorf("database name is required (--db or %s_DB)", EnvPrefix)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch size cannot be negative: %d", c.BatchSize)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// New creates a viper instance with defaults, environment binding and
// config file discovery applied
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyHost, "localhost")
	v.SetDefault(KeyPort, 27017)
	v.SetDefault(KeyConnectTimeout, 10*time.Second)
	v.SetDefault(KeyBatchSize, 0)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyOutput, "text")
	v.SetDefault(KeyLockDir, os.TempDir())

	// REFSHIFT_CONFIG points at an explicit file
	if configFile := os.Getenv(EnvPrefix + "_CONFIG"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("refshift")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.refshift")
		v.AddConfigPath("/etc/refshift")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file, when one is found, binds flags and resolves the settings
func Load(v *viper.Viper, flags *pflag.FlagSet) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	cfg := Config{
		Host:           v.GetString(KeyHost),
		Port:           v.GetInt(KeyPort),
		URI:            v.GetString(KeyURI),
		DB:             v.GetString(KeyDB),
		ConnectTimeout: v.GetDuration(KeyConnectTimeout),
		BatchSize:      v.GetInt(KeyBatchSize),
		LogLevel:       v.GetString(KeyLogLevel),
		LogFormat:      v.GetString(KeyLogFormat),
		Output:         v.GetString(KeyOutput),
		ProcessorsFile: v.GetString(KeyProcessorsFile),
		LockDir:        v.GetString(KeyLockDir),
		DryRun:         v.GetBool(KeyDryRun),
		Verbose:        v.GetBool(KeyVerbose),
	}
	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}
