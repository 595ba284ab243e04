package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Admin     AdminConfig     `mapstructure:"admin"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Debug     bool            `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`
	TLSCertFile  string        `mapstructure:"tls_cert_file"`
	TLSKeyFile   string        `mapstructure:"tls_key_file"`
	CORSOrigins  string        `mapstructure:"cors_origins"`
}

// Address returns the host:port listen address
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig contains embedded database settings
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	JWTSecret        string        `mapstructure:"jwt_secret"`
	PasswordPepper   string        `mapstructure:"password_pepper"`
	AccessTokenTTL   time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL  time.Duration `mapstructure:"refresh_token_ttl"`
	MaxLoginAttempts int           `mapstructure:"max_login_attempts"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration"`
	LoginRatePerMin  int           `mapstructure:"login_rate_per_minute"`
	PasswordMinLen   int           `mapstructure:"password_min_length"`
}

// RealtimeConfig contains realtime/websocket settings
type RealtimeConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	BroadcastBuffer int           `mapstructure:"broadcast_buffer"`
	SendQueueSize   int           `mapstructure:"send_queue_size"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ActivityLogSize int           `mapstructure:"activity_log_size"`
}

// BackupConfig contains database backup settings
type BackupConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	CronSchedule  string        `mapstructure:"cron_schedule"`
	Prefix        string        `mapstructure:"prefix"`
	Compress      bool          `mapstructure:"compress"`
	Retention     time.Duration `mapstructure:"retention"`
	S3Endpoint    string        `mapstructure:"s3_endpoint"`
	S3AccessKey   string        `mapstructure:"s3_access_key"`
	S3SecretKey   string        `mapstructure:"s3_secret_key"`
	S3Bucket      string        `mapstructure:"s3_bucket"`
	S3Region      string        `mapstructure:"s3_region"`
	S3UseSSL      bool          `mapstructure:"s3_use_ssl"`
	TempDir       string        `mapstructure:"temp_dir"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
}

// RateLimitConfig selects the rate limit store backend
type RateLimitConfig struct {
	Backend           string `mapstructure:"backend"`
	RedisURL          string `mapstructure:"redis_url"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// SMTPConfig contains outbound mail settings. When disabled, verification
// tokens are written to the log instead.
type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	StartTLS bool   `mapstructure:"starttls"`
	BaseURL  string `mapstructure:"base_url"`
}

// AdminConfig contains initial admin bootstrap settings
type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	viper.SetConfigName("nexabase")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/nexabase")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("NEXABASE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("Config file loaded")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration values are present
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (set NEXABASE_AUTH_JWT_SECRET)")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Backup.Enabled && c.Backup.S3Bucket == "" {
		return fmt.Errorf("backup.s3_bucket is required when backup is enabled")
	}
	return nil
}

func setDefaults() {
	// Server
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.idle_timeout", 120*time.Second)
	viper.SetDefault("server.body_limit", 4*1024*1024)
	viper.SetDefault("server.cors_origins", "*")

	// Database
	viper.SetDefault("database.path", "data/nexabase.db")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("database.max_conn_lifetime", time.Hour)
	viper.SetDefault("database.busy_timeout", 5*time.Second)

	// Auth
	viper.SetDefault("auth.access_token_ttl", 15*time.Minute)
	viper.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	viper.SetDefault("auth.max_login_attempts", 5)
	viper.SetDefault("auth.lockout_duration", time.Hour)
	viper.SetDefault("auth.login_rate_per_minute", 10)
	viper.SetDefault("auth.password_min_length", 8)

	// Realtime
	viper.SetDefault("realtime.enabled", true)
	viper.SetDefault("realtime.broadcast_buffer", 1000)
	viper.SetDefault("realtime.send_queue_size", 64)
	viper.SetDefault("realtime.ping_interval", 30*time.Second)
	viper.SetDefault("realtime.write_timeout", 10*time.Second)
	viper.SetDefault("realtime.activity_log_size", 500)

	// Rate limiting
	viper.SetDefault("ratelimit.backend", "local")
	viper.SetDefault("ratelimit.requests_per_minute", 120)

	// SMTP
	viper.SetDefault("smtp.enabled", false)
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.starttls", true)
	viper.SetDefault("smtp.base_url", "http://localhost:8090")

	// Backup
	viper.SetDefault("backup.enabled", false)
	viper.SetDefault("backup.cron_schedule", "0 3 * * *")
	viper.SetDefault("backup.prefix", "nexabase")
	viper.SetDefault("backup.compress", true)
	viper.SetDefault("backup.retention", 30*24*time.Hour)
	viper.SetDefault("backup.s3_region", "us-east-1")
	viper.SetDefault("backup.s3_use_ssl", true)
	viper.SetDefault("backup.temp_dir", os.TempDir())
	viper.SetDefault("backup.upload_timeout", 10*time.Minute)
}

// loadEnvFile loads environment variables from a .env file if present
func loadEnvFile() error {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		return err
	}
	return godotenv.Load()
}
