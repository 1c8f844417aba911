package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Path string
}

type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	SessionTTL time.Duration
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

type EmailConfig struct {
	PostmarkToken string
	FromEmail     string
}

type Config struct {
	LogLevel string
	HTTP     HTTPConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Stripe   StripeConfig
	Email    EmailConfig
}

// Load reads configuration from an optional config.yaml and STOREFRONT_*
// environment variables. Environment values override file values.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("STOREFRONT")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects configurations that cannot serve requests safely.
// A missing signing secret or missing Stripe credentials is fatal at startup.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtsecret is required")
	}
	if c.Stripe.SecretKey == "" {
		return fmt.Errorf("stripe.secretkey is required")
	}
	if c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("stripe.webhooksecret is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("loglevel", "info")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "120s")

	v.SetDefault("database.path", "storefront.db")

	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttl", "168h") // 7 days, matches session expiry
	v.SetDefault("auth.sessionttl", "168h")

	v.SetDefault("stripe.secretkey", "")
	v.SetDefault("stripe.webhooksecret", "")
	v.SetDefault("stripe.currency", "inr")

	v.SetDefault("email.postmarktoken", "")
	v.SetDefault("email.fromemail", "")
}
