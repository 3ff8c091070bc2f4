package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Mail      MailConfig      `yaml:"mail"`
	Storage   StorageConfig   `yaml:"storage"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Limits    LimitsConfig    `yaml:"limits"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Log       LogConfig       `yaml:"log"`

	// BaseURI is the public URL of this API, used to build links in emails
	BaseURI string `yaml:"base_uri"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`

	// TrustedProxies lists the CIDRs (or bare IPs) of reverse proxies whose
	// X-Forwarded-For and X-Real-IP headers are believed. Empty means the
	// socket peer is always the client.
	TrustedProxies []string `yaml:"trusted_proxies"`

	// Health/metrics server (separate port for k8s liveness and readiness)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	AutoMigrate bool          `yaml:"auto_migrate"`
}

// RedisConfig holds Redis settings. An empty URL disables Redis.
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
}

// AuthConfig holds token and password settings
type AuthConfig struct {
	AccessTokenSecret  string        `yaml:"access_token_secret"`
	AccessTokenExpiry  time.Duration `yaml:"access_token_expiry"`
	RefreshTokenSecret string        `yaml:"refresh_token_secret"`
	RefreshTokenExpiry time.Duration `yaml:"refresh_token_expiry"`
	OneTimeTokenExpiry time.Duration `yaml:"one_time_token_expiry"`
	BcryptCost         int           `yaml:"bcrypt_cost"`
	CookieMaxAge       time.Duration `yaml:"cookie_max_age"`
	CookieDomain       string        `yaml:"cookie_domain"`
}

// MailConfig holds outbound email settings
type MailConfig struct {
	// Driver is "smtp" or "log"
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	// TLSPolicy is "opportunistic", "mandatory" or "none"
	TLSPolicy string `yaml:"tls_policy"`
}

// StorageConfig holds object storage settings for attachments and avatars
type StorageConfig struct {
	S3Endpoint       string `yaml:"s3_endpoint"`
	S3Region         string `yaml:"s3_region"`
	S3Bucket         string `yaml:"s3_bucket"`
	S3AccessKey      string `yaml:"s3_access_key"`
	S3SecretKey      string `yaml:"s3_secret_key"`
	S3ForcePathStyle bool   `yaml:"s3_force_path_style"`
	PublicBaseURL    string `yaml:"public_base_url"`

	// LocalDir holds uploads when no bucket is configured. They are served
	// under BaseURI + "/static".
	LocalDir string `yaml:"local_dir"`
}

// RateLimitConfig holds limits for the abuse-prone endpoints
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	LoginRequests int           `yaml:"login_requests"`
	LoginWindow   time.Duration `yaml:"login_window"`
	EmailRequests int           `yaml:"email_requests"`
	EmailWindow   time.Duration `yaml:"email_window"`
}

// LimitsConfig holds request and domain size limits
type LimitsConfig struct {
	MaxAttachments int   `yaml:"max_attachments"`
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	MaxBodyBytes   int64 `yaml:"max_body_bytes"`
}

// JobsConfig holds background job schedules
type JobsConfig struct {
	TokenJanitorSchedule string `yaml:"token_janitor_schedule"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			URL:         "postgres://localhost/taskhub?sslmode=disable",
			MaxConns:    20,
			MinConns:    5,
			Timeout:     5 * time.Second,
			MaxLifetime: 30 * time.Minute,
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			MaxRetries: 3,
			PoolSize:   10,
		},
		Auth: AuthConfig{
			AccessTokenExpiry:  5 * time.Minute,
			RefreshTokenExpiry: 7 * 24 * time.Hour,
			OneTimeTokenExpiry: 20 * time.Minute,
			BcryptCost:         10,
			CookieMaxAge:       24 * time.Hour,
		},
		Mail: MailConfig{
			Driver:    "log",
			Port:      587,
			From:      "taskhub <no-reply@taskhub.local>",
			TLSPolicy: "opportunistic",
		},
		Storage: StorageConfig{
			S3Region: "us-east-1",
			LocalDir: "./uploads",
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			LoginRequests: 5,
			LoginWindow:   5 * time.Minute,
			EmailRequests: 5,
			EmailWindow:   time.Hour,
		},
		Limits: LimitsConfig{
			MaxAttachments: 5,
			MaxUploadBytes: 10 << 20,
			MaxBodyBytes:   1 << 20,
		},
		Jobs: JobsConfig{
			TokenJanitorSchedule: "@every 15m",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		BaseURI: "http://localhost:8080",
	}
}

// LoadConfig loads configuration from defaults, an optional YAML file named
// by TASKHUB_CONFIG_FILE, and environment variables, in that order.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("TASKHUB_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.Server.Host = getEnv("TASKHUB_HOST", c.Server.Host)
	c.Server.Port = getEnv("PORT", getEnv("TASKHUB_PORT", c.Server.Port))
	c.Server.ReadTimeout = getEnvDuration("TASKHUB_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("TASKHUB_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("TASKHUB_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("TASKHUB_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.HealthPort = getEnv("TASKHUB_HEALTH_PORT", c.Server.HealthPort)
	c.Server.AllowedOrigins = getEnvList("TASKHUB_ALLOWED_ORIGINS", c.Server.AllowedOrigins)
	c.Server.TrustedProxies = getEnvList("TASKHUB_TRUSTED_PROXIES", c.Server.TrustedProxies)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.MaxConns = getEnvInt("TASKHUB_DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvInt("TASKHUB_DB_MIN_CONNS", c.Database.MinConns)
	c.Database.Timeout = getEnvDuration("TASKHUB_DB_TIMEOUT", c.Database.Timeout)
	c.Database.AutoMigrate = getEnvBool("TASKHUB_DB_AUTO_MIGRATE", c.Database.AutoMigrate)

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.MaxRetries = getEnvInt("REDIS_MAX_RETRIES", c.Redis.MaxRetries)
	c.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", c.Redis.PoolSize)

	c.Auth.AccessTokenSecret = getEnv("ACCESS_TOKEN_SECRET", c.Auth.AccessTokenSecret)
	c.Auth.AccessTokenExpiry = getEnvDuration("ACCESS_TOKEN_EXPIRY", c.Auth.AccessTokenExpiry)
	c.Auth.RefreshTokenSecret = getEnv("REFRESH_TOKEN_SECRET", c.Auth.RefreshTokenSecret)
	c.Auth.RefreshTokenExpiry = getEnvDuration("REFRESH_TOKEN_EXPIRY", c.Auth.RefreshTokenExpiry)
	c.Auth.OneTimeTokenExpiry = getEnvDuration("ONE_TIME_TOKEN_EXPIRY", c.Auth.OneTimeTokenExpiry)
	c.Auth.BcryptCost = getEnvInt("BCRYPT_COST", c.Auth.BcryptCost)
	c.Auth.CookieMaxAge = getEnvDuration("COOKIE_MAX_AGE", c.Auth.CookieMaxAge)
	c.Auth.CookieDomain = getEnv("COOKIE_DOMAIN", c.Auth.CookieDomain)

	c.Mail.Driver = getEnv("MAIL_DRIVER", c.Mail.Driver)
	c.Mail.Host = getEnv("SMTP_HOST", c.Mail.Host)
	c.Mail.Port = getEnvInt("SMTP_PORT", c.Mail.Port)
	c.Mail.Username = getEnv("SMTP_USER", c.Mail.Username)
	c.Mail.Password = getEnv("SMTP_PASS", c.Mail.Password)
	c.Mail.From = getEnv("MAIL_FROM", c.Mail.From)
	c.Mail.TLSPolicy = getEnv("SMTP_TLS_POLICY", c.Mail.TLSPolicy)

	c.Storage.S3Endpoint = getEnv("S3_ENDPOINT", c.Storage.S3Endpoint)
	c.Storage.S3Region = getEnv("S3_REGION", c.Storage.S3Region)
	c.Storage.S3Bucket = getEnv("S3_BUCKET", c.Storage.S3Bucket)
	c.Storage.S3AccessKey = getEnv("S3_ACCESS_KEY", c.Storage.S3AccessKey)
	c.Storage.S3SecretKey = getEnv("S3_SECRET_KEY", c.Storage.S3SecretKey)
	c.Storage.S3ForcePathStyle = getEnvBool("S3_FORCE_PATH_STYLE", c.Storage.S3ForcePathStyle)
	c.Storage.PublicBaseURL = getEnv("S3_PUBLIC_BASE_URL", c.Storage.PublicBaseURL)
	c.Storage.LocalDir = getEnv("UPLOAD_DIR", c.Storage.LocalDir)

	c.RateLimit.Enabled = getEnvBool("RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.LoginRequests = getEnvInt("RATE_LIMIT_LOGIN_REQUESTS", c.RateLimit.LoginRequests)
	c.RateLimit.LoginWindow = getEnvDuration("RATE_LIMIT_LOGIN_WINDOW", c.RateLimit.LoginWindow)
	c.RateLimit.EmailRequests = getEnvInt("RATE_LIMIT_EMAIL_REQUESTS", c.RateLimit.EmailRequests)
	c.RateLimit.EmailWindow = getEnvDuration("RATE_LIMIT_EMAIL_WINDOW", c.RateLimit.EmailWindow)

	c.Limits.MaxAttachments = getEnvInt("MAX_ATTACHMENTS", c.Limits.MaxAttachments)
	c.Limits.MaxUploadBytes = getEnvInt64("MAX_UPLOAD_BYTES", c.Limits.MaxUploadBytes)
	c.Limits.MaxBodyBytes = getEnvInt64("MAX_BODY_BYTES", c.Limits.MaxBodyBytes)

	c.Jobs.TokenJanitorSchedule = getEnv("TOKEN_JANITOR_SCHEDULE", c.Jobs.TokenJanitorSchedule)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.BaseURI = getEnv("BASE_URI", c.BaseURI)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	for _, proxy := range c.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(proxy); err != nil {
			if _, err := netip.ParseAddr(proxy); err != nil {
				return fmt.Errorf("invalid trusted proxy %q: must be a CIDR or IP address", proxy)
			}
		}
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if c.Auth.AccessTokenSecret == "" {
		return fmt.Errorf("ACCESS_TOKEN_SECRET is required")
	}
	if c.Auth.RefreshTokenSecret == "" {
		return fmt.Errorf("REFRESH_TOKEN_SECRET is required")
	}
	if c.Auth.AccessTokenSecret == c.Auth.RefreshTokenSecret {
		return fmt.Errorf("access and refresh token secrets must be different")
	}
	if c.Auth.AccessTokenExpiry <= 0 || c.Auth.RefreshTokenExpiry <= 0 {
		return fmt.Errorf("token expiries must be positive")
	}
	if c.Auth.AccessTokenExpiry >= c.Auth.RefreshTokenExpiry {
		return fmt.Errorf("access token expiry must be shorter than refresh token expiry")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}

	switch c.Mail.Driver {
	case "log":
	case "smtp":
		if c.Mail.Host == "" || c.Mail.Port == 0 {
			return fmt.Errorf("SMTP host and port are required for the smtp mail driver")
		}
		if c.Mail.From == "" {
			return fmt.Errorf("MAIL_FROM is required for the smtp mail driver")
		}
		switch c.Mail.TLSPolicy {
		case "", "opportunistic", "mandatory", "none":
		default:
			return fmt.Errorf("invalid SMTP TLS policy: %s (must be opportunistic, mandatory or none)", c.Mail.TLSPolicy)
		}
	default:
		return fmt.Errorf("invalid mail driver: %s (must be smtp or log)", c.Mail.Driver)
	}

	if c.Limits.MaxAttachments < 0 {
		return fmt.Errorf("max attachments must not be negative")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.LoginRequests <= 0 || c.RateLimit.LoginWindow <= 0 {
			return fmt.Errorf("login rate limit must be positive")
		}
		if c.RateLimit.EmailRequests <= 0 || c.RateLimit.EmailWindow <= 0 {
			return fmt.Errorf("email rate limit must be positive")
		}
	}

	return nil
}

// ObjectStorageEnabled reports whether an S3 bucket is configured
func (c *Config) ObjectStorageEnabled() bool {
	return c.Storage.S3Bucket != ""
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
// Accepts a trailing "d" for days in addition to time.ParseDuration units.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := parseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDuration(value string) (time.Duration, error) {
	if strings.HasSuffix(value, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(value, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(value)
}
