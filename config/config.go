package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"familypoints/database"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string `toml:"database_url"`
	DatabaseName string `toml:"database_name"`

	// HTTP configuration
	HTTPAddr   string `toml:"http_addr"`
	JWTSecret  string `toml:"jwt_secret"`
	AdminToken string `toml:"admin_token"` // Empty disables the admin endpoints

	// Shared infrastructure (optional)
	RedisAddr   string `toml:"redis_addr"`   // Empty means the in-process rate limiter is used
	NATSServers string `toml:"nats_servers"` // Empty disables NATS forwarding

	// Discord notifications (optional)
	DiscordToken     string `toml:"discord_token"`
	DiscordChannelID string `toml:"discord_channel_id"`

	// Sweeps
	SweepInterval         time.Duration `toml:"-"`
	AutoApproveHours      int           `toml:"auto_approve_hours"`       // Used when a task has no own deadline
	UseRequestExpiryHours int           `toml:"use_request_expiry_hours"` // use_requested tickets older than this are refunded

	// Screen time defaults
	ScreenTimeBaseMinutes       int          `toml:"screen_time_base_minutes"`
	ScreenTimeDailyLimitMinutes int          `toml:"screen_time_daily_limit_minutes"`
	WeekStartDay                time.Weekday `toml:"-"`

	// Public lookup rate limiting
	RateLimitMaxAttempts int           `toml:"rate_limit_max_attempts"`
	RateLimitWindow      time.Duration `toml:"-"`

	// Logging
	LogLevel string `toml:"log_level"`

	// Environment
	Environment string `toml:"environment"` // "development", "production" or "test"
}

// fileConfig mirrors the duration and weekday fields as strings for TOML decoding
type fileConfig struct {
	Config
	SweepInterval   string `toml:"sweep_interval"`
	WeekStartDay    string `toml:"week_start_day"`
	RateLimitWindow string `toml:"rate_limit_window"`
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

func defaults() *Config {
	return &Config{
		HTTPAddr:                    ":8080",
		SweepInterval:               time.Hour,
		AutoApproveHours:            48,
		UseRequestExpiryHours:       72,
		ScreenTimeBaseMinutes:       420,
		ScreenTimeDailyLimitMinutes: 120,
		WeekStartDay:                time.Monday,
		RateLimitMaxAttempts:        5,
		RateLimitWindow:             15 * time.Minute,
		LogLevel:                    "info",
	}
}

// load loads configuration from an optional TOML file and then environment variables
func load() (*Config, error) {
	config := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, err
		}
	}

	overrideString(&config.DatabaseURL, "DATABASE_URL")
	overrideString(&config.DatabaseName, "DATABASE_NAME")
	overrideString(&config.HTTPAddr, "HTTP_ADDR")
	overrideString(&config.JWTSecret, "JWT_SECRET")
	overrideString(&config.AdminToken, "ADMIN_TOKEN")
	overrideString(&config.RedisAddr, "REDIS_ADDR")
	overrideString(&config.NATSServers, "NATS_SERVERS")
	overrideString(&config.DiscordToken, "DISCORD_TOKEN")
	overrideString(&config.DiscordChannelID, "DISCORD_CHANNEL_ID")
	overrideString(&config.LogLevel, "LOG_LEVEL")
	overrideString(&config.Environment, "ENVIRONMENT")

	overrideInt(&config.AutoApproveHours, "AUTO_APPROVE_HOURS")
	overrideInt(&config.UseRequestExpiryHours, "USE_REQUEST_EXPIRY_HOURS")
	overrideInt(&config.ScreenTimeBaseMinutes, "SCREEN_TIME_BASE_MINUTES")
	overrideInt(&config.ScreenTimeDailyLimitMinutes, "SCREEN_TIME_DAILY_LIMIT_MINUTES")
	overrideInt(&config.RateLimitMaxAttempts, "RATE_LIMIT_MAX_ATTEMPTS")

	if err := overrideDuration(&config.SweepInterval, "SWEEP_INTERVAL"); err != nil {
		return nil, err
	}
	if err := overrideDuration(&config.RateLimitWindow, "RATE_LIMIT_WINDOW"); err != nil {
		return nil, err
	}
	if day := os.Getenv("WEEK_START_DAY"); day != "" {
		weekday, err := ParseWeekday(day)
		if err != nil {
			return nil, err
		}
		config.WeekStartDay = weekday
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required")
		}
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}
	if config.SweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if config.RateLimitMaxAttempts <= 0 || config.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("rate limit attempts and window must be positive")
	}

	return config, nil
}

// loadFile decodes a TOML file on top of the defaults already present in config
func loadFile(path string, config *Config) error {
	fc := fileConfig{Config: *config}
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	*config = fc.Config

	if fc.SweepInterval != "" {
		d, err := time.ParseDuration(fc.SweepInterval)
		if err != nil {
			return fmt.Errorf("invalid sweep_interval %q: %w", fc.SweepInterval, err)
		}
		config.SweepInterval = d
	}
	if fc.RateLimitWindow != "" {
		d, err := time.ParseDuration(fc.RateLimitWindow)
		if err != nil {
			return fmt.Errorf("invalid rate_limit_window %q: %w", fc.RateLimitWindow, err)
		}
		config.RateLimitWindow = d
	}
	if fc.WeekStartDay != "" {
		weekday, err := ParseWeekday(fc.WeekStartDay)
		if err != nil {
			return err
		}
		config.WeekStartDay = weekday
	}
	return nil
}

// ParseWeekday parses an English weekday name (case-insensitive, "mon" or "monday")
func ParseWeekday(value string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if v == name || v == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid week start day %q", value)
}

func overrideString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func overrideInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*dst = parsed
		}
	}
}

func overrideDuration(dst *time.Duration, key string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = d
	return nil
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	cfg := defaults()
	cfg.Environment = "test"
	cfg.JWTSecret = "test-secret"
	cfg.SweepInterval = time.Minute
	return cfg
}
