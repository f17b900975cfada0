// Package config provides configuration management for the application.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Twilio     TwilioConfig     `mapstructure:"twilio"`
	Phone      PhoneConfig      `mapstructure:"phone"`
	Events     EventsConfig     `mapstructure:"events"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

type ServerConfig struct {
	Port         string `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TwilioConfig struct {
	AccountSID     string               `mapstructure:"account_sid"`
	AuthToken      string               `mapstructure:"auth_token"`
	FromNumber     string               `mapstructure:"from_number"`
	MediaRegion    string               `mapstructure:"media_region"`
	Timeout        int                  `mapstructure:"timeout"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"`
	Timeout          int     `mapstructure:"timeout"`
	FailureRatio     float64 `mapstructure:"failure_ratio"`
	ConsecutiveFails uint32  `mapstructure:"consecutive_fails"`
}

type PhoneConfig struct {
	DefaultCountryCode string `mapstructure:"default_country_code"`
}

type EventsConfig struct {
	KeepAliveSeconds int `mapstructure:"keep_alive_seconds"`
	RetryMillis      int `mapstructure:"retry_millis"`
}

type RetentionConfig struct {
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
	AuditKeep            int `mapstructure:"audit_keep"`
}

type MiddlewareConfig struct {
	RateLimit      int      `mapstructure:"rate_limit"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	EnableCORS     bool     `mapstructure:"enable_cors"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", 10)
	viper.SetDefault("server.write_timeout", 10)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("twilio.media_region", "us1")
	viper.SetDefault("twilio.timeout", 30)
	viper.SetDefault("twilio.circuit_breaker.max_requests", 3)
	viper.SetDefault("twilio.circuit_breaker.interval", 60)
	viper.SetDefault("twilio.circuit_breaker.timeout", 60)
	viper.SetDefault("twilio.circuit_breaker.failure_ratio", 0.6)
	viper.SetDefault("twilio.circuit_breaker.consecutive_fails", 5)
	viper.SetDefault("phone.default_country_code", "39")
	viper.SetDefault("events.keep_alive_seconds", 25)
	viper.SetDefault("events.retry_millis", 5000)
	viper.SetDefault("retention.sweep_interval_minutes", 60)
	viper.SetDefault("retention.audit_keep", 1000)
	viper.SetDefault("middleware.rate_limit", 100)
	viper.SetDefault("middleware.rate_limit_burst", 1000)
	viper.SetDefault("middleware.enable_cors", true)
	viper.SetDefault("middleware.allowed_origins", []string{"*"})

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// GetDSN returns PostgreSQL connection string.
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}
