// Package config loads ecsexec settings from defaults, a YAML config file,
// ECSEXEC_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	appName   = "ecsexec"
	envPrefix = "ECSEXEC"
)

type Config struct {
	Namespace     string        `mapstructure:"namespace"`
	InvokeTimeout time.Duration `mapstructure:"invoke_timeout"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout"`

	AWS     AWSConfig     `mapstructure:"aws"`
	Session SessionConfig `mapstructure:"session"`
	History HistoryConfig `mapstructure:"history"`
	Server  ServerConfig  `mapstructure:"server"`
	TLS     TLSConfig     `mapstructure:"tls"`
	Log     LogConfig     `mapstructure:"log"`
}

type AWSConfig struct {
	Tool           string `mapstructure:"tool"`
	DefaultRegion  string `mapstructure:"default_region"`
	DefaultProfile string `mapstructure:"default_profile"`
	ConfigFile     string `mapstructure:"config_file"`
}

type SessionConfig struct {
	DefaultShell string `mapstructure:"default_shell"`
}

type HistoryConfig struct {
	File     string `mapstructure:"file"`
	MaxItems int    `mapstructure:"max_items"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// TLSConfig holds the mTLS material. Either all paths are set or none are.
type TLSConfig struct {
	Cert string `mapstructure:"cert"`
	Key  string `mapstructure:"key"`
	CA   string `mapstructure:"ca"`
}

// Enabled reports whether TLS material has been configured.
func (t TLSConfig) Enabled() bool {
	return t.Cert != "" || t.Key != "" || t.CA != ""
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Addr returns the server address as host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Dir returns the directory holding the config file and history, normally
// $XDG_CONFIG_HOME/ecsexec.
func Dir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}

	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appName)
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", appName)
	}

	return "." + appName
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Namespace:     "term",
		InvokeTimeout: 30 * time.Second,
		DrainTimeout:  2 * time.Second,
		AWS: AWSConfig{
			Tool:          "aws",
			DefaultRegion: "eu-north-1",
		},
		Session: SessionConfig{DefaultShell: "/bin/bash"},
		History: HistoryConfig{
			File:     filepath.Join(Dir(), "history.yaml"),
			MaxItems: 10,
		},
		Server: ServerConfig{Host: "localhost", Port: 8443},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// SetDefaults registers every key with its default on v. Keys unknown to v
// are not picked up from the environment, so this must run before Load.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("namespace", d.Namespace)
	v.SetDefault("invoke_timeout", d.InvokeTimeout)
	v.SetDefault("drain_timeout", d.DrainTimeout)

	v.SetDefault("aws.tool", d.AWS.Tool)
	v.SetDefault("aws.default_region", d.AWS.DefaultRegion)
	v.SetDefault("aws.default_profile", d.AWS.DefaultProfile)
	v.SetDefault("aws.config_file", d.AWS.ConfigFile)

	v.SetDefault("session.default_shell", d.Session.DefaultShell)

	v.SetDefault("history.file", d.History.File)
	v.SetDefault("history.max_items", d.History.MaxItems)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("tls.cert", d.TLS.Cert)
	v.SetDefault("tls.key", d.TLS.Key)
	v.SetDefault("tls.ca", d.TLS.CA)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// BindFlags binds each named flag in flags to its config key, e.g.
// {"port": "server.port"}. Flags that the user didn't set leave the key's
// lower-precedence value in place.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("flag %q not defined", name)
		}

		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}

	return nil
}

// Load reads configuration into v and returns the validated result. If
// configFile is empty, config.yaml is looked up in Dir() and the working
// directory, and a missing file is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"text", "json"}
)

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Namespace == "" {
		errs = append(errs, errors.New("namespace cannot be empty"))
	}

	if c.InvokeTimeout <= 0 {
		errs = append(errs, errors.New("invoke_timeout must be positive"))
	}

	if c.DrainTimeout <= 0 {
		errs = append(errs, errors.New("drain_timeout must be positive"))
	}

	if c.AWS.Tool == "" {
		errs = append(errs, errors.New("aws.tool cannot be empty"))
	}

	if c.History.MaxItems < 1 {
		errs = append(errs, errors.New("history.max_items must be at least 1"))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("server.port must be in valid range"))
	}

	if c.TLS.Enabled() {
		for key, path := range map[string]string{
			"tls.cert": c.TLS.Cert,
			"tls.key":  c.TLS.Key,
			"tls.ca":   c.TLS.CA,
		} {
			if path == "" {
				errs = append(errs, fmt.Errorf("%s cannot be empty when TLS is enabled", key))
				continue
			}

			if _, err := os.Stat(path); err != nil {
				errs = append(errs, fmt.Errorf("failed to stat %s: %w", key, err))
			}
		}
	}

	if !slices.Contains(validLevels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("log.level must be one of %v", validLevels))
	}

	if !slices.Contains(validFormats, strings.ToLower(c.Log.Format)) {
		errs = append(errs, fmt.Errorf("log.format must be one of %v", validFormats))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	return nil
}
