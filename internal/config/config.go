// Package config loads noajax settings from defaults, an optional YAML file
// and NOAJAX_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zjrosen/noajax/internal/log"
	"github.com/zjrosen/noajax/internal/paths"
	"github.com/zjrosen/noajax/internal/tracing"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "NOAJAX"

// FileName is the config file name (without extension) searched for in the
// data directory and the working directory.
const FileName = "noajax"

// Config is the full noajax configuration.
type Config struct {
	// URL is the keyword path segment. Empty means the built-in default.
	URL     string        `mapstructure:"url"`
	DataDir string        `mapstructure:"data_dir"`
	Watch   bool          `mapstructure:"watch"`
	Log     LogConfig     `mapstructure:"log"`
	Site    SiteConfig    `mapstructure:"site"`
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

// LogConfig controls the logger.
type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// SiteConfig describes the public site.
type SiteConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Charset   string `mapstructure:"charset"`
	Admin     bool   `mapstructure:"admin"`
	AdminPath string `mapstructure:"admin_path"`
	BlogID    int    `mapstructure:"blog_id"`
	// ThemeDir serves the public site from disk instead of the embedded theme.
	ThemeDir string `mapstructure:"theme_dir"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig controls the Prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	Exporter string `mapstructure:"exporter"`
	Endpoint string `mapstructure:"endpoint"`
}

// AuthConfig controls session handling.
type AuthConfig struct {
	Cookie string        `mapstructure:"cookie"`
	TTL    time.Duration `mapstructure:"ttl"`
	// Tokens maps user names to fixed session tokens.
	Tokens map[string]string `mapstructure:"tokens"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("url", "")
	v.SetDefault("data_dir", "")
	v.SetDefault("watch", true)
	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("site.base_url", "http://localhost:8080")
	v.SetDefault("site.charset", "UTF-8")
	v.SetDefault("site.admin", false)
	v.SetDefault("site.admin_path", "/wp-admin/")
	v.SetDefault("site.blog_id", 1)
	v.SetDefault("site.theme_dir", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("tracing.exporter", tracing.ExporterNone)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("auth.cookie", "noajax_session")
	v.SetDefault("auth.ttl", 24*time.Hour)
}

// Loaded is a configuration together with where it came from.
type Loaded struct {
	Config
	// File is the config file that was read, or "" if none was found.
	File string
}

// Load reads configuration. With file set, that file must exist; otherwise
// noajax.yaml is looked up in the data directory and the working directory.
func Load(file string) (Loaded, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Loaded{}, fmt.Errorf("reading config %s: %w", file, err)
		}
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(paths.ResolveDataDir(v.GetString("data_dir")))
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Loaded{}, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Loaded{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.DataDir = paths.ResolveDataDir(cfg.DataDir)

	if err := cfg.Validate(); err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Config: cfg, File: v.ConfigFileUsed()}
	if loaded.File != "" {
		log.Info(log.CatConfig, "config loaded", "file", loaded.File)
	}
	return loaded, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: site.base_url %q must be an absolute http(s) URL", ErrInvalid, c.Site.BaseURL)
	}
	if strings.ContainsAny(c.URL, " \t\r\n?#") {
		return fmt.Errorf("%w: url %q must be a plain path segment", ErrInvalid, c.URL)
	}
	switch c.Tracing.Exporter {
	case "", tracing.ExporterNone, tracing.ExporterStdout, tracing.ExporterOTLP:
	default:
		return fmt.Errorf("%w: tracing.exporter %q", ErrInvalid, c.Tracing.Exporter)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalid)
	}
	return nil
}

// DatabasePath is the rewrite table database inside the data directory.
func (c Config) DatabasePath(filename string) string {
	return filepath.Join(c.DataDir, filename)
}
