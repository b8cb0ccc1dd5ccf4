package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env      string // "dev" | "prod"
	LogLevel string
	HTTPAddr string
	DBPath   string

	Nuki     NukiConfig
	API      APIConfig
	Session  SessionConfig
	Sentry   SentryConfig
	Requests RequestsConfig
	Phone    PhoneConfig
	MQTT     MQTTConfig
}

type NukiConfig struct {
	BaseURL      string
	APIKey       string
	ClientSecret string // webhook HMAC secret
	Timeout      time.Duration
	CacheTTL     time.Duration
}

type APIConfig struct {
	Secret string // shared with the telephony integration and the poller
}

type SessionConfig struct {
	Secret string
}

type SentryConfig struct {
	DSN string
}

type RequestsConfig struct {
	Retention     time.Duration
	EchoWindow    time.Duration
	SweepInterval time.Duration // 0 disables the periodic sweeper
}

type PhoneConfig struct {
	RatePerMinute int
}

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// SetDefaults registers every key with its default so AutomaticEnv can
// resolve it (NUKI_API_KEY for nuki.api_key, and so on).
func SetDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("db.path", "./data/lockcrf.db")

	v.SetDefault("nuki.base_url", "https://api.nuki.io")
	v.SetDefault("nuki.api_key", "")
	v.SetDefault("nuki.client_secret", "")
	v.SetDefault("nuki.timeout", 5*time.Second)
	v.SetDefault("nuki.cache_ttl", 60*time.Second)

	v.SetDefault("api.secret", "")
	v.SetDefault("session.secret", "")
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("requests.retention", 60*time.Second)
	v.SetDefault("requests.echo_window", 10*time.Second)
	v.SetDefault("requests.sweep_interval", time.Minute)

	v.SetDefault("phone.rate_per_minute", 30)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "lockcrf")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "lockcrf")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// ReadFile loads path, or searches ./lockcrf.yaml and
// /etc/lockcrf/lockcrf.yaml when path is empty.  A missing file is not an
// error in search mode.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		return v.ReadInConfig()
	}
	v.SetConfigName("lockcrf")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/lockcrf")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	env := strings.ToLower(strings.TrimSpace(v.GetString("env")))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	cfg := Config{
		Env:      env,
		LogLevel: v.GetString("log.level"),
		HTTPAddr: v.GetString("http.addr"),
		DBPath:   v.GetString("db.path"),
		Nuki: NukiConfig{
			BaseURL:      v.GetString("nuki.base_url"),
			APIKey:       v.GetString("nuki.api_key"),
			ClientSecret: v.GetString("nuki.client_secret"),
			Timeout:      v.GetDuration("nuki.timeout"),
			CacheTTL:     v.GetDuration("nuki.cache_ttl"),
		},
		API:     APIConfig{Secret: v.GetString("api.secret")},
		Session: SessionConfig{Secret: v.GetString("session.secret")},
		Sentry:  SentryConfig{DSN: v.GetString("sentry.dsn")},
		Requests: RequestsConfig{
			Retention:     v.GetDuration("requests.retention"),
			EchoWindow:    v.GetDuration("requests.echo_window"),
			SweepInterval: v.GetDuration("requests.sweep_interval"),
		},
		Phone: PhoneConfig{RatePerMinute: v.GetInt("phone.rate_per_minute")},
		MQTT: MQTTConfig{
			Broker:      v.GetString("mqtt.broker"),
			ClientID:    v.GetString("mqtt.client_id"),
			Username:    v.GetString("mqtt.username"),
			Password:    v.GetString("mqtt.password"),
			TopicPrefix: v.GetString("mqtt.topic_prefix"),
		},
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Nuki.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("nuki.timeout must be positive, got %s", c.Nuki.Timeout))
	}
	if c.Nuki.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("nuki.cache_ttl must be positive, got %s", c.Nuki.CacheTTL))
	}
	if c.Requests.EchoWindow <= 0 {
		errs = append(errs, fmt.Errorf("requests.echo_window must be positive, got %s", c.Requests.EchoWindow))
	}
	if c.Requests.Retention < c.Requests.EchoWindow {
		errs = append(errs, fmt.Errorf("requests.retention (%s) must cover requests.echo_window (%s)",
			c.Requests.Retention, c.Requests.EchoWindow))
	}
	if c.Requests.SweepInterval < 0 {
		errs = append(errs, errors.New("requests.sweep_interval must not be negative"))
	}
	if c.Phone.RatePerMinute < 0 {
		errs = append(errs, errors.New("phone.rate_per_minute must not be negative"))
	}
	if c.Env == "prod" {
		if c.Nuki.ClientSecret == "" {
			errs = append(errs, errors.New("nuki.client_secret is required in prod"))
		}
		if c.API.Secret == "" {
			errs = append(errs, errors.New("api.secret is required in prod"))
		}
		if c.Session.Secret == "" {
			errs = append(errs, errors.New("session.secret is required in prod"))
		}
	}
	return errors.Join(errs...)
}
