// Package config handles loading and managing acctdash configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/usernameweb/acctdash/internal/fileutil"
)

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir     string `toml:"data_dir"`
	DatabaseURL string `toml:"database_url"` // SQLite path or postgres:// URL
}

// AccountConfig identifies the signed-in owner for local sessions.
type AccountConfig struct {
	Email string `toml:"email"`
}

// DisplayConfig holds grid presentation settings.
type DisplayConfig struct {
	Locale   string `toml:"locale"`    // "id" (default) or "en"
	Timezone string `toml:"timezone"`  // IANA name; empty means local time
	PageSize int    `toml:"page_size"` // default rows per page
}

// ExportConfig holds export destination and XLSX profile settings.
type ExportConfig struct {
	Dir          string `toml:"dir"`
	Destination  string `toml:"destination"` // "dir" (default) or "s3"
	Platform     string `toml:"platform"`
	CookieDomain string `toml:"cookie_domain"`
	CountryCode  string `toml:"country_code"`
	ProxyType    string `toml:"proxy_type"`
	IPChecker    string `toml:"ip_checker"`
	FilePrefix   string `toml:"file_prefix"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort         int      `toml:"api_port"`
	BindAddr        string   `toml:"bind_addr"`
	APIKey          string   `toml:"api_key"`
	AllowInsecure   bool     `toml:"allow_insecure"`
	CORSOrigins     []string `toml:"cors_origins"`
	CORSCredentials bool     `toml:"cors_credentials"`
	CORSMaxAge      int      `toml:"cors_max_age"`
	RateLimitRPS    float64  `toml:"rate_limit_rps"`
	RateLimitBurst  int      `toml:"rate_limit_burst"`
	OIDCIssuer      string   `toml:"oidc_issuer"`
	OIDCClientID    string   `toml:"oidc_client_id"`
}

// RemoteConfig points the CLI at a remote acctdash server.
type RemoteConfig struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	AllowInsecure  bool   `toml:"allow_insecure"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// S3Config holds object storage settings for exports.
type S3Config struct {
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Prefix    string `toml:"prefix"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
}

// ExportSchedule defines one scheduled export.
type ExportSchedule struct {
	Name     string `toml:"name"`
	Schedule string `toml:"schedule"` // Cron expression (e.g., "0 2 * * *" for 2am daily)
	Format   string `toml:"format"`   // "xlsx" (default) or "csv"
	Owner    string `toml:"owner"`    // defaults to [account] email
	Search   string `toml:"search"`
	Group    string `toml:"group"`
	Tag      string `toml:"tag"`
	Duration string `toml:"duration"`
	Enabled  bool   `toml:"enabled"`
}

// Config represents the acctdash configuration.
type Config struct {
	Data    DataConfig       `toml:"data"`
	Account AccountConfig    `toml:"account"`
	Display DisplayConfig    `toml:"display"`
	Export  ExportConfig     `toml:"export"`
	Server  ServerConfig     `toml:"server"`
	Remote  RemoteConfig     `toml:"remote"`
	S3      S3Config         `toml:"s3"`
	Exports []ExportSchedule `toml:"exports"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	configPath string
}

// DefaultHome returns the default acctdash home directory.
// Respects ACCTDASH_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("ACCTDASH_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".acctdash"
	}
	return filepath.Join(home, ".acctdash")
}

// NewDefaultConfig returns a configuration with default values rooted at
// DefaultHome.
func NewDefaultConfig() *Config {
	return newDefaultConfig(DefaultHome())
}

func newDefaultConfig(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
		},
		Display: DisplayConfig{
			Locale:   "id",
			PageSize: 15,
		},
		Export: ExportConfig{
			Destination:  "dir",
			Platform:     "shopee.co.id",
			CookieDomain: "shopee",
			CountryCode:  "id",
			ProxyType:    "noproxy",
			IPChecker:    "ip2location",
			FilePrefix:   "shopee_accounts",
		},
		Server: ServerConfig{
			APIPort:        8080,
			BindAddr:       "127.0.0.1",
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		Remote: RemoteConfig{
			TimeoutSeconds: 30,
		},
		Exports: []ExportSchedule{},
	}
}

// Load reads the configuration. Resolution:
//   - path set: the file must exist; HomeDir becomes its directory and
//     relative paths inside it resolve against that directory.
//   - homeDir set: reads homeDir/config.toml if present.
//   - neither: reads DefaultHome()/config.toml if present.
func Load(path, homeDir string) (*Config, error) {
	explicit := path != ""
	if explicit {
		path = expandPath(path)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		abs, err := filepath.Abs(path)
		if err == nil {
			path = abs
		}
		homeDir = filepath.Dir(path)
	} else {
		if homeDir != "" {
			homeDir = expandPath(homeDir)
		} else {
			homeDir = DefaultHome()
		}
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := newDefaultConfig(homeDir)
	cfg.configPath = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, decodeError(err)
	}

	resolve := expandPath
	if explicit {
		resolve = func(p string) string { return resolvePath(p, homeDir) }
	}
	cfg.Data.DataDir = resolve(cfg.Data.DataDir)
	cfg.Export.Dir = resolve(cfg.Export.Dir)
	if !strings.Contains(cfg.Data.DatabaseURL, "://") {
		cfg.Data.DatabaseURL = resolve(cfg.Data.DatabaseURL)
	}

	return cfg, nil
}

// decodeError adds a hint for Windows paths written with backslashes in
// double-quoted TOML strings.
func decodeError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "invalid escape") || strings.Contains(msg, "hexadecimal digits") {
		return fmt.Errorf("decode config: %w\n\nhint: use forward slashes (C:/Users/me) "+
			"or single quotes ('C:\\Users\\me') for Windows paths", err)
	}
	return fmt.Errorf("decode config: %w", err)
}

// ConfigFilePath returns the path the configuration was loaded from (or
// would be loaded from when the file does not exist).
func (c *Config) ConfigFilePath() string {
	if c.configPath != "" {
		return c.configPath
	}
	return filepath.Join(c.HomeDir, "config.toml")
}

// DatabaseDSN returns the database URL, or the default SQLite path.
func (c *Config) DatabaseDSN() string {
	if c.Data.DatabaseURL != "" {
		return c.Data.DatabaseURL
	}
	return filepath.Join(c.Data.DataDir, "acctdash.db")
}

// ExportsDir returns the local export destination directory.
func (c *Config) ExportsDir() string {
	if c.Export.Dir != "" {
		return c.Export.Dir
	}
	return filepath.Join(c.Data.DataDir, "exports")
}

// EnsureHomeDir creates the home and data directories with 0700 permissions.
func (c *Config) EnsureHomeDir() error {
	for _, dir := range []string{c.HomeDir, c.Data.DataDir} {
		if dir == "" {
			continue
		}
		if err := fileutil.MkdirPrivate(dir); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// ScheduledExports returns exports with scheduling enabled.
func (c *Config) ScheduledExports() []ExportSchedule {
	var scheduled []ExportSchedule
	for _, e := range c.Exports {
		if e.Enabled && e.Schedule != "" {
			if e.Owner == "" {
				e.Owner = c.Account.Email
			}
			scheduled = append(scheduled, e)
		}
	}
	return scheduled
}

// GetExportSchedule returns a copy of the named export, or nil.
func (c *Config) GetExportSchedule(name string) *ExportSchedule {
	for _, e := range c.Exports {
		if e.Name == name {
			if e.Owner == "" {
				e.Owner = c.Account.Email
			}
			return &e
		}
	}
	return nil
}

// IsLoopback reports whether the server binds only to a loopback address.
func (s ServerConfig) IsLoopback() bool {
	addr := s.BindAddr
	if addr == "" || addr == "localhost" {
		return true
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}

// ErrInsecureServer is returned when the API would be exposed without auth.
var ErrInsecureServer = errors.New("refusing to serve on a non-loopback address without authentication")

// ValidateSecure rejects binding to a public address with neither an API key
// nor an OIDC issuer, unless allow_insecure is set.
func (s ServerConfig) ValidateSecure() error {
	if s.IsLoopback() || s.AllowInsecure {
		return nil
	}
	if s.APIKey == "" && s.OIDCIssuer == "" {
		return fmt.Errorf("%w (bind_addr=%s)\n\nSet [server] api_key or oidc_issuer, "+
			"or allow_insecure = true for trusted networks", ErrInsecureServer, s.BindAddr)
	}
	return nil
}

// MkTempDir creates a private temporary directory. Preferred parent
// directories are tried first, then the system temp dir, then
// DefaultHome()/tmp.
func MkTempDir(pattern string, preferred ...string) (string, error) {
	for _, dir := range preferred {
		if dir == "" {
			continue
		}
		if d, err := os.MkdirTemp(dir, pattern); err == nil {
			return d, nil
		}
	}
	if d, err := os.MkdirTemp("", pattern); err == nil {
		return d, nil
	}
	fallback := filepath.Join(DefaultHome(), "tmp")
	if err := fileutil.MkdirPrivate(fallback); err != nil {
		return "", fmt.Errorf("create temp base: %w", err)
	}
	return os.MkdirTemp(fallback, pattern)
}

// resolvePath expands ~ and makes relative paths absolute against base.
func resolvePath(path, base string) string {
	path = expandPath(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
