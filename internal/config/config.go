// Package config handles loading, validating, and applying defaults to the
// autokuma configuration. Configuration is read from a JSON, YAML, or TOML
// file and overridden by AUTOKUMA__-prefixed environment variables using
// "__" as the key separator (AUTOKUMA__KUMA__URL overrides kuma.url).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/autokuma/autokuma/pkg/kuma"
)

// DockerSourceKind selects what the docker adapter enumerates.
type DockerSourceKind string

const (
	DockerSourceContainers DockerSourceKind = "Containers"
	DockerSourceServices   DockerSourceKind = "Services"
	DockerSourceBoth       DockerSourceKind = "Both"
)

// OnDelete is the fate of an orphaned entity after the grace period.
const (
	OnDeleteDelete = "delete"
	OnDeleteKeep   = "keep"
)

// Config is the top-level configuration for the autokuma service.
type Config struct {
	Kuma       KumaConfig       `mapstructure:"kuma"`
	Docker     DockerConfig     `mapstructure:"docker"`
	Kubernetes KubernetesConfig `mapstructure:"kubernetes"`
	Files      FilesConfig      `mapstructure:"files"`

	// SyncInterval and DeleteGracePeriod are in seconds, fractional allowed.
	SyncInterval      float64 `mapstructure:"sync_interval"`
	DeleteGracePeriod float64 `mapstructure:"delete_grace_period"`

	OnDelete string `mapstructure:"on_delete"`

	StaticMonitors string `mapstructure:"static_monitors"`

	TagName  string `mapstructure:"tag_name"`
	TagColor string `mapstructure:"tag_color"`

	DataPath string `mapstructure:"data_path"`

	DefaultSettings string            `mapstructure:"default_settings"`
	Snippets        map[string]string `mapstructure:"snippets"`

	LogDir            string `mapstructure:"log_dir"`
	LogLevel          string `mapstructure:"log_level"`
	LogFormat         string `mapstructure:"log_format"`
	InsecureEnvAccess bool   `mapstructure:"insecure_env_access"`
	Migrate           bool   `mapstructure:"migrate"`

	Metrics MetricsConfig `mapstructure:"metrics"`
}

// KumaConfig configures the connection to Uptime Kuma. Timeouts are in
// seconds, fractional allowed.
type KumaConfig struct {
	URL            string    `mapstructure:"url"`
	Username       string    `mapstructure:"username"`
	Password       string    `mapstructure:"password"`
	MFAToken       string    `mapstructure:"mfa_token"`
	MFASecret      string    `mapstructure:"mfa_secret"`
	AuthToken      string    `mapstructure:"auth_token"`
	Headers        []string  `mapstructure:"headers"`
	ConnectTimeout float64   `mapstructure:"connect_timeout"`
	CallTimeout    float64   `mapstructure:"call_timeout"`
	TLS            TLSConfig `mapstructure:"tls"`
}

// TLSConfig is shared by the Uptime Kuma connection and docker endpoints.
type TLSConfig struct {
	Verify *bool  `mapstructure:"verify"`
	Cert   string `mapstructure:"cert"`
}

// DockerConfig configures the docker label source.
type DockerConfig struct {
	Enabled           bool             `mapstructure:"enabled"`
	SocketPath        string           `mapstructure:"socket_path"`
	Hosts             []DockerEndpoint `mapstructure:"hosts"`
	Source            DockerSourceKind `mapstructure:"source"`
	LabelPrefix       string           `mapstructure:"label_prefix"`
	ExcludeContainers []string         `mapstructure:"exclude_containers"`
	TLS               TLSConfig        `mapstructure:"tls"`
}

// DockerEndpoint is one docker daemon to scan.
type DockerEndpoint struct {
	URL string    `mapstructure:"url"`
	TLS TLSConfig `mapstructure:"tls"`
}

// KubernetesConfig configures the KumaEntity CR source.
type KubernetesConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// FilesConfig configures the static monitor file source.
type FilesConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	FollowSymlinks bool `mapstructure:"follow_symlinks"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load reads the configuration file (if present), applies environment
// overrides and defaults, and validates the result. path may be empty, in
// which case only defaults, well-known locations, and the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName("autokuma")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "autokuma"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	// The "AUTOKUMA_" prefix plus viper's "_" joiner yields the documented
	// AUTOKUMA__ prefix; dots inside keys become "__".
	v.SetEnvPrefix("AUTOKUMA_")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("kuma.url", "")
	v.SetDefault("kuma.username", "")
	v.SetDefault("kuma.password", "")
	v.SetDefault("kuma.mfa_token", "")
	v.SetDefault("kuma.mfa_secret", "")
	v.SetDefault("kuma.auth_token", "")
	v.SetDefault("kuma.headers", []string{})
	v.SetDefault("kuma.connect_timeout", 30.0)
	v.SetDefault("kuma.call_timeout", 30.0)
	v.SetDefault("kuma.tls.cert", "")

	v.SetDefault("docker.enabled", true)
	v.SetDefault("docker.socket_path", "")
	v.SetDefault("docker.source", string(DockerSourceContainers))
	v.SetDefault("docker.label_prefix", "kuma")
	v.SetDefault("docker.exclude_containers", []string{})
	v.SetDefault("docker.tls.cert", "")

	v.SetDefault("kubernetes.enabled", false)
	v.SetDefault("kubernetes.namespace", "")

	v.SetDefault("files.enabled", true)
	v.SetDefault("files.follow_symlinks", false)

	v.SetDefault("sync_interval", 5.0)
	v.SetDefault("delete_grace_period", 60.0)
	v.SetDefault("on_delete", OnDeleteDelete)
	v.SetDefault("static_monitors", "")
	v.SetDefault("tag_name", "AutoKuma")
	v.SetDefault("tag_color", "#42C0FB")
	v.SetDefault("data_path", "")
	v.SetDefault("default_settings", "")
	v.SetDefault("snippets", map[string]string{})
	v.SetDefault("log_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("insecure_env_access", false)
	v.SetDefault("migrate", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 8080)
	v.SetDefault("metrics.path", "/metrics")
}

func (c *Config) validate() error {
	if c.Kuma.URL == "" {
		return fmt.Errorf("kuma.url is required")
	}
	if !strings.HasPrefix(c.Kuma.URL, "http://") && !strings.HasPrefix(c.Kuma.URL, "https://") {
		return fmt.Errorf("kuma.url must be an absolute http(s) URL, got %q", c.Kuma.URL)
	}

	switch c.Docker.Source {
	case DockerSourceContainers, DockerSourceServices, DockerSourceBoth:
	default:
		return fmt.Errorf("docker.source must be one of: Containers, Services, Both; got %q", c.Docker.Source)
	}

	switch c.OnDelete {
	case OnDeleteDelete, OnDeleteKeep:
	default:
		return fmt.Errorf("on_delete must be one of: delete, keep; got %q", c.OnDelete)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of: debug, info, warn, error; got %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be one of: json, text; got %q", c.LogFormat)
	}

	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync_interval must be positive")
	}
	if c.DeleteGracePeriod < 0 {
		return fmt.Errorf("delete_grace_period must not be negative")
	}
	return nil
}

// DataDir returns the resolved data directory, defaulting to /data inside
// containers and the user config directory otherwise.
func (c *Config) DataDir() string {
	if c.DataPath != "" {
		return c.DataPath
	}
	if os.Getenv("AUTOKUMA_DOCKER") != "" {
		return "/data"
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "autokuma")
	}
	return "."
}

// StaticMonitorDir returns the file-source root, defaulting to
// <user config dir>/autokuma/static-monitors; data_path does not move it.
func (c *Config) StaticMonitorDir() string {
	if c.StaticMonitors != "" {
		return c.StaticMonitors
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "autokuma", "static-monitors")
	}
	return ""
}

// KumaClientConfig translates the kuma section into the client's Config.
func (c *Config) KumaClientConfig() kuma.Config {
	return kuma.Config{
		URL:            c.Kuma.URL,
		Username:       c.Kuma.Username,
		Password:       c.Kuma.Password,
		MFAToken:       c.Kuma.MFAToken,
		MFASecret:      c.Kuma.MFASecret,
		AuthToken:      c.Kuma.AuthToken,
		Headers:        c.Kuma.Headers,
		ConnectTimeout: secondsToDuration(c.Kuma.ConnectTimeout),
		CallTimeout:    secondsToDuration(c.Kuma.CallTimeout),
		TLS: kuma.TLSConfig{
			Verify:   c.Kuma.TLS.Verify,
			CertPath: c.Kuma.TLS.Cert,
		},
	}
}

// SyncIntervalDuration returns the tick interval.
func (c *Config) SyncIntervalDuration() time.Duration {
	return secondsToDuration(c.SyncInterval)
}

// GraceDuration returns the deletion grace period.
func (c *Config) GraceDuration() time.Duration {
	return secondsToDuration(c.DeleteGracePeriod)
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
