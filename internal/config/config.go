package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/johnwmail/haste/internal/keygen"
	"github.com/johnwmail/haste/internal/storage"
)

// Config holds all configuration options for the haste server
type Config struct {
	// Server configuration
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`

	// Document configuration
	MaxLength      int    `mapstructure:"max_length"`
	KeyLength      int    `mapstructure:"key_length"`
	KeyGenerator   string `mapstructure:"key_generator"`
	MaxKeyAttempts int    `mapstructure:"max_key_attempts"`
	RecentLimit    int    `mapstructure:"recent_limit"`

	// Static documents seeded at startup, name -> path
	Documents map[string]string `mapstructure:"documents"`

	// Storage configuration
	StorageType     string            `mapstructure:"storage_type"`
	StorageOptions  map[string]string `mapstructure:"storage_options"`
	BackendTimeout  time.Duration     `mapstructure:"backend_timeout"`
	JanitorInterval time.Duration     `mapstructure:"janitor_interval"`

	// Expiration
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	MaxTTL     time.Duration `mapstructure:"max_ttl"`

	RateLimit string `mapstructure:"rate_limit"`

	// Operational configuration
	LogLevel     string `mapstructure:"log_level"`
	LogFile      string `mapstructure:"log_file"`
	LogFormat    string `mapstructure:"log_format"`
	SettingsFile string `mapstructure:"settings_file"`
	StaticDir    string `mapstructure:"static_dir"`

	// Feature flags
	EnableMetrics      bool `mapstructure:"enable_metrics"`
	EnablePassEndpoint bool `mapstructure:"enable_pass_endpoint"`

	ConfigFile string `mapstructure:"-"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            7777,
		MaxLength:       400000,
		KeyLength:       10,
		KeyGenerator:    keygen.DefaultType,
		MaxKeyAttempts:  10,
		RecentLimit:     20,
		Documents:       map[string]string{},
		StorageType:     "file",
		StorageOptions:  map[string]string{"path": "./data"},
		BackendTimeout:  10 * time.Second,
		JanitorInterval: time.Minute,
		RateLimit:       "500/15min",
		LogLevel:        "info",
		LogFormat:       "text",
		SettingsFile:    "./data/.settings.json",
		StaticDir:       "./static",
		EnableMetrics:   true,
	}
}

// LoadFromFlags parses command-line flags and environment variables
func LoadFromFlags() (*Config, error) {
	return Load(os.Args[1:])
}

// Load builds the configuration from, in increasing precedence: defaults,
// the optional config file, HASTE_* environment variables (also read from
// a .env file) and command-line args.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	cfg.ConfigFile = configFileArg(args, getEnvString("HASTE_CONFIG", ""))
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	fs := flag.NewFlagSet("haste", flag.ContinueOnError)
	cfg.bindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "Path to a JSON, YAML or TOML config file")

	fs.StringVar(&c.Host, "host", getEnvString("HASTE_HOST", c.Host), "Address to listen on")
	fs.IntVar(&c.Port, "port", getEnvInt("HASTE_PORT", c.Port), "HTTP port")
	fs.StringVar(&c.BaseURL, "base-url", getEnvString("HASTE_BASE_URL", c.BaseURL), "Base URL for document links (derived from the request when empty)")

	fs.IntVar(&c.MaxLength, "max-length", getEnvInt("HASTE_MAX_LENGTH", c.MaxLength), "Maximum document size in bytes")
	fs.IntVar(&c.KeyLength, "key-length", getEnvInt("HASTE_KEY_LENGTH", c.KeyLength), "Length of generated keys")
	fs.StringVar(&c.KeyGenerator, "key-generator", getEnvString("HASTE_KEY_GENERATOR", c.KeyGenerator), "Key generator: "+strings.Join(keygen.Types(), ", "))
	fs.IntVar(&c.MaxKeyAttempts, "max-key-attempts", getEnvInt("HASTE_MAX_KEY_ATTEMPTS", c.MaxKeyAttempts), "Key collision retry budget")
	fs.IntVar(&c.RecentLimit, "recent-limit", getEnvInt("HASTE_RECENT_LIMIT", c.RecentLimit), "Number of documents listed by /recent")

	c.Documents = getEnvMap("HASTE_DOCUMENTS", c.Documents)
	fs.Func("document", "Static document to seed, as name=path (repeatable)", mapFlag(&c.Documents))

	fs.StringVar(&c.StorageType, "storage-type", getEnvString("HASTE_STORAGE_TYPE", c.StorageType), "Storage backend: "+strings.Join(storage.Backends(), ", "))
	c.StorageOptions = getEnvMap("HASTE_STORAGE_OPTIONS", c.StorageOptions)
	fs.Func("storage-opt", "Storage backend option, as key=value (repeatable)", mapFlag(&c.StorageOptions))
	fs.DurationVar(&c.BackendTimeout, "backend-timeout", getEnvDuration("HASTE_BACKEND_TIMEOUT", c.BackendTimeout), "Timeout of a single storage call")
	fs.DurationVar(&c.JanitorInterval, "janitor-interval", getEnvDuration("HASTE_JANITOR_INTERVAL", c.JanitorInterval), "Interval between expired document sweeps")

	fs.DurationVar(&c.DefaultTTL, "default-ttl", getEnvDuration("HASTE_DEFAULT_TTL", c.DefaultTTL), "Default document lifetime (0 keeps documents forever)")
	fs.DurationVar(&c.MaxTTL, "max-ttl", getEnvDuration("HASTE_MAX_TTL", c.MaxTTL), "Maximum lifetime for public uploads (0 for no cap)")

	fs.StringVar(&c.RateLimit, "rate-limit", getEnvString("HASTE_RATE_LIMIT", c.RateLimit), "Upload rate limit per IP (e.g., 10/min, empty to disable)")

	fs.StringVar(&c.LogLevel, "log-level", getEnvString("HASTE_LOG_LEVEL", c.LogLevel), "Log level (debug, info, warn, error)")
	fs.StringVar(&c.LogFile, "log-file", getEnvString("HASTE_LOG_FILE", c.LogFile), "Path to log file")
	fs.StringVar(&c.LogFormat, "log-format", getEnvString("HASTE_LOG_FORMAT", c.LogFormat), "Log format (text, json)")
	fs.StringVar(&c.SettingsFile, "settings-file", getEnvString("HASTE_SETTINGS_FILE", c.SettingsFile), "Path of the persisted settings")
	fs.StringVar(&c.StaticDir, "static-dir", getEnvString("HASTE_STATIC_DIR", c.StaticDir), "Directory of the web client")

	fs.BoolVar(&c.EnableMetrics, "enable-metrics", getEnvBool("HASTE_ENABLE_METRICS", c.EnableMetrics), "Enable metrics endpoint")
	fs.BoolVar(&c.EnablePassEndpoint, "enable-pass-endpoint", getEnvBool("HASTE_ENABLE_PASS_ENDPOINT", c.EnablePassEndpoint), "Expose GET/POST /pass for the upload password")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "haste - shared paste service\n\n")
		fmt.Fprintf(fs.Output(), "Usage: %s [options]\n\n", fs.Name())
		fmt.Fprintf(fs.Output(), "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), "\nEnvironment Variables:\n")
		fmt.Fprintf(fs.Output(), "  All flags can be set via environment variables with HASTE_ prefix\n")
		fmt.Fprintf(fs.Output(), "  Example: HASTE_STORAGE_TYPE=redis HASTE_STORAGE_OPTIONS=addr=localhost:6379,db=0\n")
	}
}

// LoadFile reads a config file with viper. Keys absent from the file keep
// their current values. Viper lowercases map keys, so document names in a
// file are lowercase.
func (c *Config) LoadFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := v.Unmarshal(c); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.Port))
	}

	if c.KeyLength < 1 || c.KeyLength > keygen.MaxLength {
		errs = append(errs, fmt.Errorf("key length must be between 1 and %d: %d", keygen.MaxLength, c.KeyLength))
	}

	if c.MaxLength < 1 || c.MaxLength > 100*1024*1024 {
		errs = append(errs, fmt.Errorf("max length must be between 1 byte and 100MB: %d", c.MaxLength))
	}

	if c.MaxKeyAttempts < 1 || c.MaxKeyAttempts > 100 {
		errs = append(errs, fmt.Errorf("max key attempts must be between 1 and 100: %d", c.MaxKeyAttempts))
	}

	if c.RecentLimit < 1 {
		errs = append(errs, fmt.Errorf("recent limit must be positive: %d", c.RecentLimit))
	}

	if c.DefaultTTL < 0 || c.MaxTTL < 0 {
		errs = append(errs, fmt.Errorf("ttl values cannot be negative"))
	}

	if c.BackendTimeout <= 0 {
		errs = append(errs, fmt.Errorf("backend timeout must be positive: %s", c.BackendTimeout))
	}

	if !slices.Contains(storage.Backends(), c.StorageType) {
		errs = append(errs, storage.UnknownBackendError{Name: c.StorageType})
	}

	if !slices.Contains(keygen.Types(), c.KeyGenerator) {
		errs = append(errs, fmt.Errorf("invalid key generator: %s (valid: %s)", c.KeyGenerator, strings.Join(keygen.Types(), ", ")))
	}

	for name := range c.Documents {
		// request paths drop everything after the first dot
		if name == "" || strings.ContainsAny(name, "./") {
			errs = append(errs, fmt.Errorf("invalid static document name %q: must not be empty or contain '.' or '/'", name))
		}
	}

	if _, _, err := ParseRateLimit(c.RateLimit); err != nil {
		errs = append(errs, err)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format: %s (valid: text, json)", c.LogFormat))
	}

	return errors.Join(errs...)
}

// IsStaticDocument reports whether key names a configured static document
func (c *Config) IsStaticDocument(key string) bool {
	_, ok := c.Documents[key]
	return ok
}

// ListenAddr returns the host:port the HTTP server binds to
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ParseRateLimit parses values such as "10/min", "60 per hour" or
// "500/15min" into an event count and window. An empty value disables
// limiting and returns a zero count.
func ParseRateLimit(s string) (int, time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, 0, nil
	}
	s = strings.ReplaceAll(s, "per", "/")
	s = strings.ReplaceAll(s, " ", "")
	count, unit, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, fmt.Errorf("invalid rate limit %q: want <count>/<window>", s)
	}
	n, err := strconv.Atoi(count)
	if err != nil || n < 0 {
		return 0, 0, fmt.Errorf("invalid rate limit count %q", count)
	}

	// optional multiplier, as in 15min
	mult := 1
	digits := len(unit) - len(strings.TrimLeft(unit, "0123456789"))
	if digits > 0 {
		mult, _ = strconv.Atoi(unit[:digits])
		unit = unit[digits:]
	}

	var window time.Duration
	switch unit {
	case "s", "sec", "secs", "second", "seconds":
		window = time.Second
	case "m", "min", "mins", "minute", "minutes":
		window = time.Minute
	case "h", "hr", "hour", "hours":
		window = time.Hour
	default:
		return 0, 0, fmt.Errorf("invalid rate limit window %q", unit)
	}
	if mult < 1 {
		return 0, 0, fmt.Errorf("invalid rate limit window multiplier in %q", s)
	}
	return n, window * time.Duration(mult), nil
}

// configFileArg finds -config/--config in args before flag parsing, so
// that the file can supply defaults for every other flag.
func configFileArg(args []string, def string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return def
}

// mapFlag parses repeated name=value flags into m
func mapFlag(m *map[string]string) func(string) error {
	return func(s string) error {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return fmt.Errorf("expected name=value, got %q", s)
		}
		if *m == nil {
			*m = make(map[string]string)
		}
		(*m)[k] = v
		return nil
	}
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvMap merges comma-separated name=value pairs from key into a copy
// of defaultValue.
func getEnvMap(key string, defaultValue map[string]string) map[string]string {
	out := make(map[string]string, len(defaultValue))
	for k, v := range defaultValue {
		out[k] = v
	}
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		if k, v, ok := strings.Cut(strings.TrimSpace(pair), "="); ok && k != "" {
			out[k] = v
		}
	}
	return out
}
