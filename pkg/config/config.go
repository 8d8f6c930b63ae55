package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

type Theme struct {
	Name   string `mapstructure:"name"`
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type CacheConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GithubConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

// Config holds the runtime configuration. Values come from .halcyon.yaml,
// HALCYON_* environment variables (a .env file is loaded first) and flags.
type Config struct {
	Listen        string       `mapstructure:"listen"`
	AppURL        string       `mapstructure:"app_url"`
	DefaultTheme  string       `mapstructure:"default_theme"`
	Themes        []Theme      `mapstructure:"themes"`
	Blueprint     string       `mapstructure:"blueprint"`
	Cache         CacheConfig  `mapstructure:"cache"`
	SkipMalformed bool         `mapstructure:"skip_malformed"`
	Watch         bool         `mapstructure:"watch"`
	Log           LogConfig    `mapstructure:"log"`
	Github        GithubConfig `mapstructure:"github"`
	SessionSecret string       `mapstructure:"session_secret"`
}

// LoadEnv loads .env files into the process environment. A missing file is
// not an error; it reports whether anything was loaded.
func LoadEnv(files ...string) (bool, error) {
	if err := godotenv.Load(files...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Setup registers defaults and environment bindings on v.
func Setup(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("app_url", "http://localhost:8080")
	v.SetDefault("default_theme", "")
	v.SetDefault("themes", []map[string]any{})
	v.SetDefault("blueprint", "")
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("skip_malformed", false)
	v.SetDefault("watch", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("github.client_id", "")
	v.SetDefault("github.client_secret", "")
	v.SetDefault("github.redirect_url", "")
	v.SetDefault("session_secret", "")

	v.SetEnvPrefix("HALCYON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names kept for existing deployments.
	_ = v.BindEnv("github.client_id", "HALCYON_GITHUB_CLIENT_ID", "GITHUB_CLIENT_ID")
	_ = v.BindEnv("github.client_secret", "HALCYON_GITHUB_CLIENT_SECRET", "GITHUB_CLIENT_SECRET")
	_ = v.BindEnv("github.redirect_url", "HALCYON_GITHUB_REDIRECT_URL", "GITHUB_REDIRECT_URL")
	_ = v.BindEnv("session_secret", "HALCYON_SESSION_SECRET", "SESSION_SECRET")
	_ = v.BindEnv("app_url", "HALCYON_APP_URL", "APP_URL")
}

// Load reads the configuration from v, which must have been prepared with
// Setup.
func Load(v *viper.Viper) (Config, error) {
	// HALCYON_THEMES=theme1=./themes/theme1,theme2=sqlite:./themes.db
	if s, ok := v.Get("themes").(string); ok {
		themes, err := ParseThemes(s)
		if err != nil {
			return Config{}, err
		}
		list := make([]map[string]any, len(themes))
		for i, t := range themes {
			list[i] = map[string]any{"name": t.Name, "driver": t.Driver, "path": t.Path}
		}
		v.Set("themes", list)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseThemes parses the name=path[,name=path] shorthand. A path may carry
// a driver prefix, as in "sqlite:./themes.db".
func ParseThemes(s string) ([]Theme, error) {
	var themes []Theme
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, path, ok := strings.Cut(part, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("config: invalid theme %q, want name=path", part)
		}
		t := Theme{Name: strings.TrimSpace(name), Driver: DriverFile, Path: strings.TrimSpace(path)}
		if driver, rest, ok := strings.Cut(t.Path, ":"); ok && driver == DriverSQLite {
			t.Driver, t.Path = DriverSQLite, rest
		}
		themes = append(themes, t)
	}
	return themes, nil
}

func (c *Config) normalize() error {
	if len(c.Themes) == 0 {
		c.Themes = []Theme{{Name: "default", Driver: DriverFile, Path: "./themes/default"}}
	}
	seen := map[string]bool{}
	for i := range c.Themes {
		t := &c.Themes[i]
		if t.Name == "" || t.Path == "" {
			return fmt.Errorf("config: theme %d needs a name and a path", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("config: duplicate theme %q", t.Name)
		}
		seen[t.Name] = true
		if t.Driver == "" {
			t.Driver = DriverFile
		}
		if t.Driver != DriverFile && t.Driver != DriverSQLite {
			return fmt.Errorf("config: theme %s: unknown driver %q", t.Name, t.Driver)
		}
	}
	if c.DefaultTheme == "" {
		c.DefaultTheme = c.Themes[0].Name
	}
	if !seen[c.DefaultTheme] {
		return fmt.Errorf("config: default theme %q is not configured", c.DefaultTheme)
	}
	if c.Github.RedirectURL == "" {
		c.Github.RedirectURL = strings.TrimRight(c.AppURL, "/") + "/auth/callback"
	}
	return nil
}

// AuthEnabled reports whether the GitHub login guard is configured.
func (c Config) AuthEnabled() bool { return c.Github.ClientID != "" }

func (c Config) OAuth() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.Github.ClientID,
		ClientSecret: c.Github.ClientSecret,
		Scopes:       []string{"read:user"},
		Endpoint:     github.Endpoint,
		RedirectURL:  c.Github.RedirectURL,
	}
}

// Theme returns the named theme.
func (c Config) Theme(name string) (Theme, bool) {
	for _, t := range c.Themes {
		if t.Name == name {
			return t, true
		}
	}
	return Theme{}, false
}

// getEnv returns the environment value of key, or fallback when unset.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ConfigFile is the config file named by HALCYON_CONFIG, if any.
func ConfigFile() string { return getEnv("HALCYON_CONFIG", "") }
