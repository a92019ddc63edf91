// Package config loads settings from an optional .env file, an optional
// config file and WATERHQ_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "WATERHQ"

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Configured reports whether enough is set to upload backups.
func (c S3Config) Configured() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Config struct {
	Port      string `mapstructure:"port"`
	DBPath    string `mapstructure:"db_path"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	BaseURL   string `mapstructure:"base_url"`
	// Extra origins allowed to open the live-update socket.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	TokenSecret string        `mapstructure:"token_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`

	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
	VAPIDSubscriber string `mapstructure:"vapid_subscriber"`

	TurnstileSecret    string `mapstructure:"turnstile_secret"`
	TurnstileVerifyURL string `mapstructure:"turnstile_verify_url"`

	PostmarkToken string `mapstructure:"postmark_token"`
	FromEmail     string `mapstructure:"from_email"`

	SchedulerInterval time.Duration `mapstructure:"scheduler_interval"`
	// IANA zone used for "today" and slot start times.
	Location string `mapstructure:"location"`

	// Chat-completions endpoint behind "Ask AI". No key disables it.
	InsightsURL    string `mapstructure:"insights_url"`
	InsightsAPIKey string `mapstructure:"insights_api_key"`
	InsightsModel  string `mapstructure:"insights_model"`

	S3               S3Config `mapstructure:"s3"`
	BackupPassphrase string   `mapstructure:"backup_passphrase"`
	// Zero disables scheduled backups; manual runs still work.
	BackupInterval time.Duration `mapstructure:"backup_interval"`
}

// Defaults returns every known key with its default. Keys must be listed
// here for AutomaticEnv to pick them up on Unmarshal.
func Defaults() map[string]any {
	return map[string]any{
		"port":                 "8080",
		"db_path":              "waterhq.db",
		"log_level":            "info",
		"log_format":           "text",
		"base_url":             "http://localhost:8080",
		"allowed_origins":      []string{},
		"token_secret":         "",
		"token_ttl":            30 * 24 * time.Hour,
		"vapid_public_key":     "",
		"vapid_private_key":    "",
		"vapid_subscriber":     "",
		"turnstile_secret":     "",
		"turnstile_verify_url": "",
		"postmark_token":       "",
		"from_email":           "noreply@waterhq.app",
		"scheduler_interval":   30 * time.Second,
		"location":             "Local",
		"insights_url":         "https://api.openai.com/v1/chat/completions",
		"insights_api_key":     "",
		"insights_model":       "gpt-4o-mini",
		"s3.endpoint":          "",
		"s3.bucket":            "",
		"s3.region":            "us-east-1",
		"s3.access_key":        "",
		"s3.secret_key":        "",
		"backup_passphrase":    "",
		"backup_interval":      24 * time.Hour,
	}
}

// Load reads envFile (when it exists) into the process environment, then
// configFile (when non-empty), then the environment.
func Load(envFile, configFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", envFile, err)
	}

	v := viper.New()
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings the server cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if len(c.TokenSecret) < 16 {
		errs = append(errs, errors.New("token_secret must be at least 16 characters"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token_ttl must be positive"))
	}
	if c.SchedulerInterval < time.Second {
		errs = append(errs, errors.New("scheduler_interval must be at least 1s"))
	}
	if c.BackupInterval < 0 {
		errs = append(errs, errors.New("backup_interval must not be negative"))
	}
	if _, err := c.Loc(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Loc resolves Location.
func (c *Config) Loc() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, fmt.Errorf("location %q: %w", c.Location, err)
	}
	return loc, nil
}
